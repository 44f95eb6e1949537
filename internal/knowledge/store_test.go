package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/vcs"
	"github.com/loretree/loretree/pkg/testhelper"
)

func newStoreFixture() (*Store, *testhelper.MockRepoAPI) {
	repo := testhelper.NewMockRepoAPI()
	cfg := &config.Config{
		KnowledgeBranch:   "main",
		CommitAuthorName:  "Loretree",
		CommitAuthorEmail: "bot@loretree.dev",
	}
	return NewStore(repo, cfg, zap.NewNop()), repo
}

func TestWriteFileFirstCommitOnEmptyBranch(t *testing.T) {
	store, repo := newStoreFixture()
	ctx := context.Background()

	tip, err := store.LatestCommitID(ctx)
	require.NoError(t, err)
	assert.Empty(t, tip)

	result, err := store.WriteFile(ctx,
		vcs.FileContent{Path: "10-ideas/note.md", Content: "hello", Mode: vcs.ModeCreate},
		"Add note", tip)
	require.NoError(t, err)
	assert.NotEmpty(t, result.CommitID)
	assert.Empty(t, result.ParentCommitID)
	assert.Equal(t, "hello", repo.FileContent("10-ideas/note.md"))
}

func TestWriteFileRetriesPastConflicts(t *testing.T) {
	store, repo := newStoreFixture()
	ctx := context.Background()
	repo.Seed("seed.md", "x")

	// Two concurrent writers beat us; the third attempt lands.
	repo.ConflictsRemaining = MaxWriteRetries - 1

	tip, err := store.LatestCommitID(ctx)
	require.NoError(t, err)

	result, err := store.WriteFile(ctx,
		vcs.FileContent{Path: "10-ideas/note.md", Content: "hello", Mode: vcs.ModeCreate},
		"Add note", tip)
	require.NoError(t, err)
	assert.NotEmpty(t, result.CommitID)
	assert.Len(t, repo.PutCalls, MaxWriteRetries)
}

func TestWriteFilePersistentConflictIsTypedError(t *testing.T) {
	store, repo := newStoreFixture()
	ctx := context.Background()
	repo.ConflictsRemaining = MaxWriteRetries + 5

	_, err := store.WriteFile(ctx,
		vcs.FileContent{Path: "10-ideas/note.md", Content: "hello", Mode: vcs.ModeCreate},
		"Add note", "")
	require.Error(t, err)

	var conflict *vcs.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "10-ideas/note.md", conflict.Path)
	assert.Equal(t, MaxWriteRetries, conflict.Attempts)
	assert.True(t, errors.Is(err, vcs.ErrConflictExhausted))

	// Exactly MaxWriteRetries puts, no more.
	assert.Len(t, repo.PutCalls, MaxWriteRetries)
}

func TestWriteFileNonConflictErrorIsNotRetried(t *testing.T) {
	store, repo := newStoreFixture()
	ctx := context.Background()
	repo.FailPuts = true

	_, err := store.WriteFile(ctx,
		vcs.FileContent{Path: "x.md", Content: "y", Mode: vcs.ModeCreate},
		"Add", "")
	require.Error(t, err)
	assert.Len(t, repo.PutCalls, 1)
}

func TestAppendToFileCreatesThenAppends(t *testing.T) {
	store, repo := newStoreFixture()
	ctx := context.Background()

	_, err := store.AppendToFile(ctx, "00-inbox/2026-08-31.md", "- first", "Capture")
	require.NoError(t, err)
	assert.Equal(t, "- first", repo.FileContent("00-inbox/2026-08-31.md"))

	_, err = store.AppendToFile(ctx, "00-inbox/2026-08-31.md", "- second", "Capture")
	require.NoError(t, err)
	assert.Equal(t, "- first\n- second", repo.FileContent("00-inbox/2026-08-31.md"))
}

func TestAppendToFilePreservesConcurrentAppend(t *testing.T) {
	store, repo := newStoreFixture()
	ctx := context.Background()

	repo.Seed("00-inbox/2026-08-31.md", "first line")

	// A concurrent writer lands its own append after we resolved the tip but
	// before our write. The stale parent must force a re-read, never an
	// overwrite of the interleaved line.
	repo.BeforePut = func() {
		repo.Seed("00-inbox/2026-08-31.md", "first line\nconcurrent line")
	}

	_, err := store.AppendToFile(ctx, "00-inbox/2026-08-31.md", "my line", "Capture")
	require.NoError(t, err)

	assert.Equal(t, "first line\nconcurrent line\nmy line",
		repo.FileContent("00-inbox/2026-08-31.md"))
	assert.Len(t, repo.PutCalls, 2)
}

func TestAppendToFileRereadsContentOnConflict(t *testing.T) {
	store, repo := newStoreFixture()
	ctx := context.Background()

	repo.Seed("00-inbox/2026-08-31.md", "- existing")
	repo.ConflictsRemaining = 1

	_, err := store.AppendToFile(ctx, "00-inbox/2026-08-31.md", "- mine", "Capture")
	require.NoError(t, err)

	// The final content is based on a fresh read, not the first one.
	assert.Equal(t, "- existing\n- mine", repo.FileContent("00-inbox/2026-08-31.md"))
	assert.Len(t, repo.PutCalls, 2)
}
