package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/domain/item"
	"github.com/loretree/loretree/pkg/testhelper"
)

func TestKeywords(t *testing.T) {
	assert.Equal(t,
		[]string{"decide", "caching"},
		Keywords("What did we decide about caching?"),
	)
	assert.Equal(t,
		[]string{"updates", "billing", "migration"},
		Keywords("any updates on the billing migration"),
	)
	assert.Empty(t, Keywords("what is it?"))
	assert.Equal(t, []string{"bloom-filter"}, Keywords("the bloom-filter"))
}

func TestQueryRanksTagOverlapAboveTitleMatch(t *testing.T) {
	index := testhelper.NewMemoryItemIndex()
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, &item.Item{
		NoteID: "sb-1111111", Title: "Caching strategy notes", Type: "idea",
		Path: "10-ideas/a.md",
	}))
	require.NoError(t, index.Upsert(ctx, &item.Item{
		NoteID: "sb-2222222", Title: "Edge latency work", Type: "project",
		Path: "30-projects/b.md", Tags: []string{"caching", "cdn"},
	}))
	require.NoError(t, index.Upsert(ctx, &item.Item{
		NoteID: "sb-3333333", Title: "Hiring plan", Type: "decision",
		Path: "20-decisions/c.md",
	}))

	svc := NewService(index, zap.NewNop())
	matches, err := svc.Query(ctx, "what did we do about caching?")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Tag overlap scores above a title hit.
	assert.Equal(t, "sb-2222222", matches[0].Item.NoteID)
	assert.Equal(t, "sb-1111111", matches[1].Item.NoteID)
}

func TestQueryRecencyBreaksTies(t *testing.T) {
	index := testhelper.NewMemoryItemIndex()
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, &item.Item{
		NoteID: "sb-aaaaaaa", Title: "Billing rollout", Type: "project", Path: "30-projects/old.md",
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, index.Upsert(ctx, &item.Item{
		NoteID: "sb-bbbbbbb", Title: "Billing rewrite", Type: "project", Path: "30-projects/new.md",
	}))

	svc := NewService(index, zap.NewNop())
	matches, err := svc.Query(ctx, "billing?")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "sb-bbbbbbb", matches[0].Item.NoteID)
}

func TestAnswerWithNoMatches(t *testing.T) {
	svc := NewService(testhelper.NewMemoryItemIndex(), zap.NewNop())
	answer, err := svc.Answer(context.Background(), "did we evaluate kafka?")
	require.NoError(t, err)
	assert.Contains(t, answer, "couldn't find")
}

func TestAnswerListsMatches(t *testing.T) {
	index := testhelper.NewMemoryItemIndex()
	ctx := context.Background()
	require.NoError(t, index.Upsert(ctx, &item.Item{
		NoteID: "sb-1234567", Title: "Adopt Kafka", Type: "decision", Path: "20-decisions/k.md",
	}))

	svc := NewService(index, zap.NewNop())
	answer, err := svc.Answer(ctx, "did we evaluate kafka?")
	require.NoError(t, err)
	assert.Contains(t, answer, "Adopt Kafka")
	assert.Contains(t, answer, "20-decisions/k.md")
}
