package vcs

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleParent signals that the parent commit of a write is no longer
	// the branch tip. It is the retryable-conflict kind the optimistic write
	// loop checks for explicitly; every other error aborts the loop.
	ErrStaleParent = errors.New("parent commit is no longer the branch tip")

	// ErrConflictExhausted matches ConflictError via errors.Is.
	ErrConflictExhausted = errors.New("write conflict retries exhausted")

	// ErrSlugRequired indicates a classification that files into a slug-named
	// note was given no slug.
	ErrSlugRequired = errors.New("slug required for this classification")
)

// ConflictError is returned when the optimistic-concurrency loop used up its
// retry budget without landing a commit.
type ConflictError struct {
	Path     string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write to %s conflicted on all %d attempts", e.Path, e.Attempts)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflictExhausted
}
