package lookup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/domain/item"
)

// maxAnswers caps how many items a query answer lists.
const maxAnswers = 5

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"we": {}, "i": {}, "you": {}, "it": {}, "they": {}, "our": {}, "my": {},
	"what": {}, "which": {}, "when": {}, "where": {}, "who": {}, "why": {}, "how": {},
	"about": {}, "on": {}, "in": {}, "at": {}, "to": {}, "of": {}, "for": {},
	"with": {}, "from": {}, "by": {}, "any": {}, "some": {}, "that": {}, "this": {},
	"can": {}, "could": {}, "should": {}, "would": {}, "will": {}, "there": {},
}

// Match is one scored answer to a query.
type Match struct {
	Item  *item.Item
	Score float64
}

// Service answers lookup queries from the item index without touching the
// repository.
type Service struct {
	items  item.Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(items item.Repository, logger *zap.Logger) *Service {
	return &Service{
		items:  items,
		logger: logger.Named("lookup"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Keywords extracts the meaningful terms of a query: lowercase, stopwords
// removed, punctuation stripped, duplicates dropped.
func Keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	var out []string
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.Trim(field, "-")
		if len(field) < 2 {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

// Query scores every indexed item against the query keywords and returns the
// best matches, strongest first. Scoring favors tag overlap, then title
// terms, with a small recency boost to break ties toward newer items.
func (s *Service) Query(ctx context.Context, query string) ([]Match, error) {
	keywords := Keywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	items, err := s.items.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}

	now := s.now()
	var matches []Match
	for _, it := range items {
		score := scoreItem(it, keywords, now)
		if score > 0 {
			matches = append(matches, Match{Item: it, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Item.UpdatedAt.After(matches[j].Item.UpdatedAt)
	})
	if len(matches) > maxAnswers {
		matches = matches[:maxAnswers]
	}

	s.logger.Info("query_answered",
		zap.Strings("keywords", keywords),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// Answer renders matches as a chat-ready reply.
func (s *Service) Answer(ctx context.Context, query string) (string, error) {
	matches, err := s.Query(ctx, query)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "I couldn't find anything matching that in your knowledge base.", nil
	}

	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", m.Item.Title, m.Item.Type, m.Item.Path)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func scoreItem(it *item.Item, keywords []string, now time.Time) float64 {
	tagSet := make(map[string]struct{}, len(it.Tags))
	for _, tag := range it.Tags {
		tagSet[strings.ToLower(tag)] = struct{}{}
	}
	title := strings.ToLower(it.Title)

	var score float64
	for _, kw := range keywords {
		if _, ok := tagSet[kw]; ok {
			score += 3
		}
		if containsWord(title, kw) {
			score += 2
		}
	}
	if score == 0 {
		return 0
	}

	// Recency boost: up to one point, fading over ninety days.
	age := now.Sub(it.UpdatedAt)
	if age < 0 {
		age = 0
	}
	const window = 90 * 24 * time.Hour
	if age < window {
		score += 1 - float64(age)/float64(window)
	}
	return score
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	for idx >= 0 {
		before := idx == 0 || !isWordRune(rune(text[idx-1]))
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isWordRune(rune(text[afterIdx]))
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
