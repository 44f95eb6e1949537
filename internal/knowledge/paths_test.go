package knowledge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/internal/domain/vcs"
)

var pathDate = time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)

func TestFilePathDailyClassifications(t *testing.T) {
	for _, class := range []decision.Classification{decision.ClassInbox, decision.ClassTask} {
		path, err := FilePath(class, "", "", pathDate)
		require.NoError(t, err)
		assert.Equal(t, "00-inbox/2026-08-31.md", path, "classification %s", class)
	}
}

func TestFilePathItemClassifications(t *testing.T) {
	cases := []struct {
		class    decision.Classification
		expected string
	}{
		{decision.ClassIdea, "10-ideas/2026-08-31__cache-warm-up__sb-1a2b3c4.md"},
		{decision.ClassDecision, "20-decisions/2026-08-31__cache-warm-up__sb-1a2b3c4.md"},
		{decision.ClassProject, "30-projects/2026-08-31__cache-warm-up__sb-1a2b3c4.md"},
	}
	for _, tc := range cases {
		path, err := FilePath(tc.class, "cache-warm-up", "sb-1a2b3c4", pathDate)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, path)
	}
}

func TestFilePathRequiresSlugForItems(t *testing.T) {
	_, err := FilePath(decision.ClassIdea, "", "sb-1a2b3c4", pathDate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vcs.ErrSlugRequired))
}

func TestFilePathUnknownClassification(t *testing.T) {
	_, err := FilePath(decision.Classification("memo"), "x", "sb-1a2b3c4", pathDate)
	assert.Error(t, err)
}

func TestFilePathNormalizesToUTC(t *testing.T) {
	east := time.FixedZone("UTC+9", 9*3600)
	// 01:30 on Sep 1 in UTC+9 is still Aug 31 in UTC.
	local := time.Date(2026, 9, 1, 1, 30, 0, 0, east)
	path, err := FilePath(decision.ClassInbox, "", "", local)
	require.NoError(t, err)
	assert.Equal(t, "00-inbox/2026-08-31.md", path)
}

func TestReceiptPath(t *testing.T) {
	assert.Equal(t, "90-receipts/2026-08-31.md", ReceiptPath(pathDate))
}
