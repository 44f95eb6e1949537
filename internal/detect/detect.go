package detect

import (
	"regexp"
	"strings"
)

// Intent is a pre-classification shortcut recognized from message shape
// alone, without a model call.
type Intent string

const (
	IntentNone         Intent = "none"
	IntentFixCommand   Intent = "fix_command"
	IntentStatusUpdate Intent = "status_update"
	IntentQuery        Intent = "query"
)

// FixCommand is a request to rewrite the most recently filed note.
type FixCommand struct {
	Correction string
}

// StatusUpdate patches the status field of a project note by its note id.
type StatusUpdate struct {
	NoteID string
	Status string
}

// Result is the detected intent plus its parsed payload; at most one payload
// field is set, matching the intent.
type Result struct {
	Intent Intent
	Fix    *FixCommand
	Status *StatusUpdate
	Query  string
}

var (
	fixPrefix     = regexp.MustCompile(`(?i)^(?:fix|correction)\s*:\s*`)
	statusPattern = regexp.MustCompile(`(?i)^status\s+(sb-[a-f0-9]{7})\s+(\S+)\s*$`)
	interrogative = regexp.MustCompile(`(?i)^(?:what|which|when|where|who|why|how|did|do|does|is|are|was|were|have|has|can|could|should|would)\b`)

	validStatuses = map[string]struct{}{
		"active": {}, "paused": {}, "done": {}, "dropped": {},
	}
)

// Detect inspects a message for shortcut intents. Precedence is fix, then
// status update, then query; the first match wins and later patterns are
// never consulted.
func Detect(message string) Result {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return Result{Intent: IntentNone}
	}

	if loc := fixPrefix.FindStringIndex(msg); loc != nil {
		correction := strings.TrimSpace(msg[loc[1]:])
		if correction != "" {
			return Result{Intent: IntentFixCommand, Fix: &FixCommand{Correction: correction}}
		}
	}

	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		status := strings.ToLower(m[2])
		if _, ok := validStatuses[status]; ok {
			return Result{Intent: IntentStatusUpdate, Status: &StatusUpdate{
				NoteID: strings.ToLower(m[1]),
				Status: status,
			}}
		}
	}

	if strings.HasSuffix(msg, "?") || interrogative.MatchString(msg) {
		return Result{Intent: IntentQuery, Query: msg}
	}

	return Result{Intent: IntentNone}
}
