package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFixCommand(t *testing.T) {
	r := Detect("fix: the title should say Q3, not Q2")
	require.Equal(t, IntentFixCommand, r.Intent)
	assert.Equal(t, "the title should say Q3, not Q2", r.Fix.Correction)

	r = Detect("Correction: assignee is dana")
	require.Equal(t, IntentFixCommand, r.Intent)
	assert.Equal(t, "assignee is dana", r.Fix.Correction)
}

func TestDetectFixWithoutBodyIsNotAFix(t *testing.T) {
	r := Detect("fix:   ")
	assert.Equal(t, IntentNone, r.Intent)
}

func TestDetectStatusUpdate(t *testing.T) {
	r := Detect("status sb-a7f3c2d done")
	require.Equal(t, IntentStatusUpdate, r.Intent)
	assert.Equal(t, "sb-a7f3c2d", r.Status.NoteID)
	assert.Equal(t, "done", r.Status.Status)
}

func TestDetectStatusUpdateRejectsUnknownState(t *testing.T) {
	r := Detect("status sb-a7f3c2d finished")
	assert.Equal(t, IntentNone, r.Intent)
}

func TestDetectStatusUpdateRejectsMalformedID(t *testing.T) {
	r := Detect("status sb-xyz done")
	assert.Equal(t, IntentNone, r.Intent)
}

func TestDetectQuery(t *testing.T) {
	for _, msg := range []string{
		"what did we decide about caching?",
		"did we ship the billing change",
		"How does the sync marker work",
		"any updates on the migration?",
	} {
		r := Detect(msg)
		assert.Equal(t, IntentQuery, r.Intent, "message %q", msg)
		assert.Equal(t, msg, r.Query)
	}
}

func TestDetectPrecedenceFixBeatsQuery(t *testing.T) {
	// A fix command phrased as a question is still a fix command.
	r := Detect("fix: should the due date be friday?")
	assert.Equal(t, IntentFixCommand, r.Intent)
}

func TestDetectPlainMessage(t *testing.T) {
	r := Detect("we decided to adopt go for new services")
	assert.Equal(t, IntentNone, r.Intent)
}

func TestDetectEmpty(t *testing.T) {
	assert.Equal(t, IntentNone, Detect("   ").Intent)
}
