package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/internal/domain/execution"
	"github.com/loretree/loretree/internal/guard"
	"github.com/loretree/loretree/internal/knowledge"
	"github.com/loretree/loretree/pkg/testhelper"
)

type executorFixture struct {
	executor *Executor
	guard    *guard.Guard
	repo     *testhelper.MockRepoAPI
	mailer   *testhelper.MockMailer
	replier  *testhelper.MockChatReplier
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	cfg := &config.Config{
		KnowledgeBranch:           "main",
		CommitAuthorName:          "Loretree",
		CommitAuthorEmail:         "bot@loretree.dev",
		ExecutionTTLSeconds:       7 * 24 * 3600,
		EmailRouteClassifications: []string{"task"},
	}
	logger := zap.NewNop()

	repo := testhelper.NewMockRepoAPI()
	store := knowledge.NewStore(repo, cfg, logger)
	g := guard.NewGuard(testhelper.NewMemoryExecutionStore(), cfg, logger)
	mailer := &testhelper.MockMailer{}
	replier := &testhelper.MockChatReplier{}

	return &executorFixture{
		executor: NewExecutor(g, store, NewReceiptWriter(store, logger), mailer, replier, cfg, logger),
		guard:    g,
		repo:     repo,
		mailer:   mailer,
		replier:  replier,
	}
}

func (f *executorFixture) acquire(t *testing.T, eventID string) {
	t.Helper()
	acquired, err := f.guard.TryAcquire(context.Background(), eventID)
	require.NoError(t, err)
	require.True(t, acquired)
}

func ideaDecision(t *testing.T) *decision.Decision {
	t.Helper()
	dec, err := decision.New(decision.ClassIdea, 0.92, "Swap cache for bloom filter", "We could replace the LRU cache with a bloom filter on the hot path.")
	require.NoError(t, err)
	return dec
}

func taskDecision(t *testing.T) *decision.Decision {
	t.Helper()
	dec, err := decision.New(decision.ClassTask, 0.88, "Renew the TLS certificates", "The staging certificates expire next month.")
	require.NoError(t, err)
	return dec.WithTask(decision.TaskDetails{Assignee: "ops", Due: "2026-09-15", Priority: "high"})
}

func chatCtx() decision.ChatContext {
	return decision.ChatContext{UserID: "u-1", ChannelID: "c-1", MessageID: "m-1"}
}

func TestExecuteIdeaHappyPath(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	f.acquire(t, "evt-1")
	err := f.executor.Execute(ctx, "evt-1", ideaDecision(t), chatCtx())
	require.NoError(t, err)

	state, err := f.guard.Get(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, execution.StatusSucceeded, state.Status)
	assert.NotEmpty(t, state.CommitID)
	assert.NotEmpty(t, state.ReceiptCommitID)
	assert.Empty(t, state.LastError)

	// Note landed under 10-ideas with the dated slug name.
	var notePath string
	for _, call := range f.repo.PutCalls {
		if strings.HasPrefix(call.Path, knowledge.FolderIdeas+"/") {
			notePath = call.Path
		}
	}
	require.NotEmpty(t, notePath)
	assert.Regexp(t, `^10-ideas/\d{4}-\d{2}-\d{2}__[a-z0-9-]+__sb-[a-f0-9]{7}\.md$`, notePath)
	assert.Contains(t, f.repo.FileContent(notePath), "title: Swap cache for bloom filter")

	// Idea is not a routed classification, so no email; one confirmation.
	assert.Empty(t, f.mailer.SentEmails)
	require.Len(t, f.replier.Replies, 1)
	assert.Contains(t, f.replier.Replies[0], "Filed as idea")

	// Receipt appended under 90-receipts for today.
	receiptPath := knowledge.ReceiptPath(time.Now().UTC())
	receipt := f.repo.FileContent(receiptPath)
	assert.Contains(t, receipt, `"event_id":"evt-1"`)
	assert.Contains(t, receipt, `"classification":"idea"`)
}

func TestExecuteRepositoryFailureIsPermanent(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.repo.FailPuts = true

	f.acquire(t, "evt-broken")
	err := f.executor.Execute(ctx, "evt-broken", ideaDecision(t), chatCtx())
	require.Error(t, err)

	state, err := f.guard.Get(ctx, "evt-broken")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailedPermanent, state.Status)
	assert.NotEmpty(t, state.LastError)
	assert.True(t, state.Terminal())
	assert.False(t, state.CanRetry())

	// The user got an error message, not silence, and no email went out.
	require.Len(t, f.replier.Replies, 1)
	assert.Contains(t, f.replier.Replies[0], "couldn't file")
	assert.Empty(t, f.mailer.SentEmails)
}

func TestExecuteChatFailureThenRetrySkipsCompletedSteps(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.replier.FailuresRemaining = 1

	f.acquire(t, "evt-2")
	err := f.executor.Execute(ctx, "evt-2", taskDecision(t), chatCtx())
	require.Error(t, err)

	state, err := f.guard.Get(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusPartialFailure, state.Status)
	assert.Equal(t, execution.StepSucceeded, state.RepositoryStep)
	assert.Equal(t, execution.StepSucceeded, state.EmailStep)
	assert.Equal(t, execution.StepPending, state.ChatReplyStep)
	assert.True(t, state.CanRetry())

	require.Len(t, f.mailer.SentEmails, 1)
	taskPuts := countPuts(f.repo, knowledge.FolderInbox)

	// Redelivery: the guard rejects a fresh acquire but allows a retry.
	acquired, err := f.guard.TryAcquire(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, acquired)

	err = f.executor.Execute(ctx, "evt-2", taskDecision(t), chatCtx())
	require.NoError(t, err)

	state, err = f.guard.Get(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusSucceeded, state.Status)

	// Completed steps were not redone: same email count, same task writes.
	assert.Len(t, f.mailer.SentEmails, 1)
	assert.Equal(t, taskPuts, countPuts(f.repo, knowledge.FolderInbox))
	require.Len(t, f.replier.Replies, 1)

	// The retried confirmation still names the file from the first pass.
	assert.Contains(t, f.replier.Replies[0], knowledge.FolderInbox+"/")
}

func TestExecuteResumesAfterCrashWithoutRewritingNote(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	// A worker died right after the repository step landed: the note exists,
	// the state is still executing, and only the repository step is recorded.
	notePath := "10-ideas/2026-08-31__swap-cache-for-bloom-filter__sb-1a2b3c4.md"
	f.repo.Seed(notePath, "---\nid: sb-1a2b3c4\n---\n\nbody\n")

	f.acquire(t, "evt-crashed")
	require.NoError(t, f.guard.Update(ctx, "evt-crashed", execution.Patch{
		Status:         execution.StatusPtr(execution.StatusExecuting),
		RepositoryStep: execution.StepPtr(execution.StepSucceeded),
		CommitID:       execution.StrPtr(f.repo.Tip()),
		NotePath:       execution.StrPtr(notePath),
	}))

	err := f.executor.Execute(ctx, "evt-crashed", ideaDecision(t), chatCtx())
	require.NoError(t, err)

	// The note must not be written a second time on redelivery.
	assert.Zero(t, countPuts(f.repo, knowledge.FolderIdeas))

	state, err := f.guard.Get(ctx, "evt-crashed")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusSucceeded, state.Status)
	assert.Equal(t, notePath, state.NotePath)

	// The remaining steps still reference the note filed before the crash.
	require.Len(t, f.replier.Replies, 1)
	assert.Contains(t, f.replier.Replies[0], notePath)
	receipt := f.repo.FileContent(knowledge.ReceiptPath(time.Now().UTC()))
	assert.Contains(t, receipt, `"event_id":"evt-crashed"`)
	assert.Contains(t, receipt, notePath)
	assert.Empty(t, f.mailer.SentEmails)
}

func TestExecuteSurvivesWriteConflicts(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	f.repo.ConflictsRemaining = knowledge.MaxWriteRetries - 1

	f.acquire(t, "evt-racy")
	err := f.executor.Execute(ctx, "evt-racy", ideaDecision(t), chatCtx())
	require.NoError(t, err)

	state, err := f.guard.Get(ctx, "evt-racy")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusSucceeded, state.Status)
}

func TestExecuteTaskRoutesEmailWithDetails(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	f.acquire(t, "evt-task")
	err := f.executor.Execute(ctx, "evt-task", taskDecision(t), chatCtx())
	require.NoError(t, err)

	require.Len(t, f.mailer.SentEmails, 1)
	email := f.mailer.SentEmails[0]
	assert.Equal(t, "Renew the TLS certificates", email.Title)
	assert.Equal(t, "ops", email.Task.Assignee)
	assert.NotEmpty(t, email.FilePath)
	assert.NotEmpty(t, email.CommitID)

	// Tasks append to the daily inbox file as unchecked checklist items.
	dailyPath := email.FilePath
	assert.Contains(t, f.repo.FileContent(dailyPath), "- [ ] Renew the TLS certificates (due 2026-09-15)")
}

func countPuts(repo *testhelper.MockRepoAPI, folder string) int {
	n := 0
	for _, call := range repo.PutCalls {
		if strings.HasPrefix(call.Path, folder+"/") {
			n++
		}
	}
	return n
}
