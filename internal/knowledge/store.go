package knowledge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/vcs"
)

// MaxWriteRetries bounds every optimistic-concurrency loop. The budget is
// attempt-count-bounded, not wall-clock-bounded; callers layer their own
// deadline via ctx.
const MaxWriteRetries = 3

// Store is the branch-consistent write layer over the versioned repository.
// There is no locking of the branch: concurrent writers are reconciled here
// and nowhere else, by retrying against the refreshed tip.
type Store struct {
	repo        vcs.RepoAPI
	branch      string
	authorName  string
	authorEmail string
	logger      *zap.Logger
}

func NewStore(repo vcs.RepoAPI, cfg *config.Config, logger *zap.Logger) *Store {
	return &Store{
		repo:        repo,
		branch:      cfg.KnowledgeBranch,
		authorName:  cfg.CommitAuthorName,
		authorEmail: cfg.CommitAuthorEmail,
		logger:      logger.Named("knowledge"),
	}
}

// LatestCommitID returns the branch tip, "" when the branch has no commits.
func (s *Store) LatestCommitID(ctx context.Context) (string, error) {
	return s.repo.LatestCommitID(ctx, s.branch)
}

// ReadFile returns the file content at the branch tip, nil when absent.
func (s *Store) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return s.repo.GetFile(ctx, path)
}

// WriteFile commits file against parentCommitID. When a concurrent writer
// moved the tip first, the same logical write is retried against the new
// parent, up to MaxWriteRetries attempts total.
func (s *Store) WriteFile(ctx context.Context, file vcs.FileContent, message, parentCommitID string) (vcs.CommitResult, error) {
	parent := parentCommitID
	for attempt := 1; attempt <= MaxWriteRetries; attempt++ {
		result, err := s.writeOnce(ctx, file, message, parent)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, vcs.ErrStaleParent) {
			return vcs.CommitResult{}, err
		}

		s.logger.Warn("repo_write_conflict",
			zap.String("path", file.Path),
			zap.Int("attempt", attempt),
		)

		tip, tipErr := s.repo.LatestCommitID(ctx, s.branch)
		if tipErr != nil {
			return vcs.CommitResult{}, fmt.Errorf("refresh branch tip: %w", tipErr)
		}
		parent = tip
	}
	return vcs.CommitResult{}, &vcs.ConflictError{Path: file.Path, Attempts: MaxWriteRetries}
}

// AppendToFile appends content to path, creating the file when absent. The
// read and the write are two separate store operations, so the whole
// read-modify-write carries its own retry loop: a conflict re-reads the file,
// not just the tip, because the content itself may have changed underneath.
// The tip is resolved first and the content read at that exact commit, so a
// commit interleaving anywhere after the read fails the parent check instead
// of being overwritten by a merge computed from stale content.
func (s *Store) AppendToFile(ctx context.Context, path, content, message string) (vcs.CommitResult, error) {
	for attempt := 1; attempt <= MaxWriteRetries; attempt++ {
		parent, err := s.repo.LatestCommitID(ctx, s.branch)
		if err != nil {
			return vcs.CommitResult{}, err
		}

		var existing []byte
		if parent != "" {
			existing, err = s.repo.GetFileAt(ctx, path, parent)
			if err != nil {
				return vcs.CommitResult{}, err
			}
		}

		merged := content
		if existing != nil {
			merged = string(existing) + "\n" + content
		}

		file := vcs.FileContent{Path: path, Content: merged, Mode: vcs.ModeAppend}
		result, err := s.writeOnce(ctx, file, message, parent)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, vcs.ErrStaleParent) {
			return vcs.CommitResult{}, err
		}

		s.logger.Warn("repo_append_conflict",
			zap.String("path", path),
			zap.Int("attempt", attempt),
		)
	}
	return vcs.CommitResult{}, &vcs.ConflictError{Path: path, Attempts: MaxWriteRetries}
}

func (s *Store) writeOnce(ctx context.Context, file vcs.FileContent, message, parentCommitID string) (vcs.CommitResult, error) {
	return s.repo.PutFile(ctx, vcs.PutFileInput{
		Branch:         s.branch,
		Path:           file.Path,
		Content:        []byte(file.Content),
		Message:        message,
		ParentCommitID: parentCommitID,
		AuthorName:     s.authorName,
		AuthorEmail:    s.authorEmail,
	})
}
