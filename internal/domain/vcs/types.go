package vcs

import "context"

// FileMode describes how a write treats existing content. Create and update
// replace the file in full; append means the caller already performed the
// read-then-concatenate, the underlying store has no partial-append primitive.
type FileMode string

const (
	ModeCreate FileMode = "create"
	ModeAppend FileMode = "append"
	ModeUpdate FileMode = "update"
)

// FileContent is one logical file write.
type FileContent struct {
	Path    string
	Content string
	Mode    FileMode
}

// CommitResult is the outcome of one versioned-store write. ParentCommitID is
// the branch tip the write was based on, empty for the branch's first commit.
type CommitResult struct {
	CommitID       string `json:"commit_id"`
	FilePath       string `json:"file_path"`
	ParentCommitID string `json:"parent_commit_id,omitempty"`
}

// ChangeType classifies one entry of a commit-range diff.
type ChangeType string

const (
	ChangeAdded    ChangeType = "A"
	ChangeModified ChangeType = "M"
	ChangeDeleted  ChangeType = "D"
)

// Change is one file-level difference between two commits.
type Change struct {
	Path string
	Type ChangeType
}

// PutFileInput is a single-file commit request against a branch.
type PutFileInput struct {
	Branch         string
	Path           string
	Content        []byte
	Message        string
	ParentCommitID string
	AuthorName     string
	AuthorEmail    string
}

// RepoAPI is the low-level surface of the commit-chained file store. Absence
// is modeled as zero values, never as errors: a missing branch yields an empty
// commit id and a missing file a nil byte slice, because "this is the first
// write" is a normal case.
type RepoAPI interface {
	// LatestCommitID returns the branch tip, or "" if the branch does not
	// exist yet.
	LatestCommitID(ctx context.Context, branch string) (string, error)

	// GetFile reads a file at the branch tip. A nil slice with nil error
	// means the file does not exist.
	GetFile(ctx context.Context, path string) ([]byte, error)

	// GetFileAt reads a file at a specific commit.
	GetFileAt(ctx context.Context, path, commitID string) ([]byte, error)

	// PutFile commits one file whose parent is input.ParentCommitID. When the
	// parent is no longer the branch tip it fails with ErrStaleParent.
	PutFile(ctx context.Context, input PutFileInput) (CommitResult, error)

	// ListFolder returns the file paths directly under folder at a commit.
	// A missing folder yields an empty slice.
	ListFolder(ctx context.Context, folder, commitID string) ([]string, error)

	// Diff lists file changes between two commits.
	Diff(ctx context.Context, beforeCommitID, afterCommitID string) ([]Change, error)
}
