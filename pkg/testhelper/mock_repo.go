package testhelper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/loretree/loretree/internal/domain/vcs"
)

// MockRepoAPI is an in-memory implementation of vcs.RepoAPI with conflict
// injection. It enforces the real parent-commit check: a PutFile whose
// ParentCommitID is not the current tip fails with ErrStaleParent, so the
// retry loops in the knowledge store can be exercised without a real backend.
type MockRepoAPI struct {
	mu sync.Mutex

	files   map[string][]byte
	history map[string]map[string][]byte // commitID -> snapshot
	tip     string
	seq     int

	// ConflictsRemaining injects that many stale-parent failures before
	// writes start succeeding again. Each injected failure still advances
	// the tip, simulating a concurrent writer.
	ConflictsRemaining int

	// FailPuts makes every PutFile fail with a generic error.
	FailPuts bool

	// BeforePut runs once immediately before the next PutFile, outside the
	// lock, then clears itself. It lets a test land a concurrent commit in
	// the window between a caller's read and its write.
	BeforePut func()

	PutCalls []vcs.PutFileInput
}

func NewMockRepoAPI() *MockRepoAPI {
	return &MockRepoAPI{
		files:   make(map[string][]byte),
		history: make(map[string]map[string][]byte),
	}
}

func (m *MockRepoAPI) LatestCommitID(ctx context.Context, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, nil
}

func (m *MockRepoAPI) GetFile(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

func (m *MockRepoAPI) GetFileAt(ctx context.Context, path, commitID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.history[commitID]
	if !ok {
		return nil, fmt.Errorf("unknown commit %q", commitID)
	}
	content, ok := snapshot[path]
	if !ok {
		return nil, nil
	}
	return content, nil
}

func (m *MockRepoAPI) PutFile(ctx context.Context, input vcs.PutFileInput) (vcs.CommitResult, error) {
	if hook := m.takeBeforePut(); hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls = append(m.PutCalls, input)

	if m.FailPuts {
		return vcs.CommitResult{}, fmt.Errorf("mock repo: put failed")
	}
	if m.ConflictsRemaining > 0 {
		m.ConflictsRemaining--
		m.advanceTip() // a concurrent writer moved the branch
		return vcs.CommitResult{}, fmt.Errorf("mock repo: %w", vcs.ErrStaleParent)
	}
	if input.ParentCommitID != m.tip {
		return vcs.CommitResult{}, fmt.Errorf("mock repo: %w", vcs.ErrStaleParent)
	}

	parent := m.tip
	m.files[input.Path] = append([]byte(nil), input.Content...)
	m.advanceTip()
	return vcs.CommitResult{
		CommitID:       m.tip,
		FilePath:       input.Path,
		ParentCommitID: parent,
	}, nil
}

func (m *MockRepoAPI) ListFolder(ctx context.Context, folder, commitID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source := m.files
	if commitID != "" && commitID != m.tip {
		snapshot, ok := m.history[commitID]
		if !ok {
			return nil, fmt.Errorf("unknown commit %q", commitID)
		}
		source = snapshot
	}

	var paths []string
	prefix := strings.TrimSuffix(folder, "/") + "/"
	for path := range source {
		if strings.HasPrefix(path, prefix) && !strings.Contains(strings.TrimPrefix(path, prefix), "/") {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (m *MockRepoAPI) Diff(ctx context.Context, beforeCommitID, afterCommitID string) ([]vcs.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, ok := m.history[beforeCommitID]
	if beforeCommitID != "" && !ok {
		return nil, fmt.Errorf("unknown commit %q", beforeCommitID)
	}
	after, ok := m.history[afterCommitID]
	if !ok {
		return nil, fmt.Errorf("unknown commit %q", afterCommitID)
	}

	var changes []vcs.Change
	for path, content := range after {
		prev, existed := before[path]
		switch {
		case !existed:
			changes = append(changes, vcs.Change{Path: path, Type: vcs.ChangeAdded})
		case string(prev) != string(content):
			changes = append(changes, vcs.Change{Path: path, Type: vcs.ChangeModified})
		}
	}
	for path := range before {
		if _, still := after[path]; !still {
			changes = append(changes, vcs.Change{Path: path, Type: vcs.ChangeDeleted})
		}
	}
	return changes, nil
}

// Tip returns the current branch head.
func (m *MockRepoAPI) Tip() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip
}

// FileContent returns the current content of path, or "" when absent.
func (m *MockRepoAPI) FileContent(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.files[path])
}

// Seed writes a file directly, bypassing the parent check.
func (m *MockRepoAPI) Seed(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = []byte(content)
	m.advanceTip()
}

func (m *MockRepoAPI) takeBeforePut() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	hook := m.BeforePut
	m.BeforePut = nil
	return hook
}

func (m *MockRepoAPI) advanceTip() {
	m.seq++
	m.tip = fmt.Sprintf("commit-%04d", m.seq)
	snapshot := make(map[string][]byte, len(m.files))
	for path, content := range m.files {
		snapshot[path] = append([]byte(nil), content...)
	}
	m.history[m.tip] = snapshot
}
