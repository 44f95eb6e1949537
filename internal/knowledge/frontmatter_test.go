package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAndParseNoteRoundTrip(t *testing.T) {
	fm := FrontMatter{
		ID:      "sb-1a2b3c4",
		Title:   "Cache warm-up",
		Type:    "idea",
		Tags:    []string{"performance", "cache"},
		Status:  "active",
		Created: "2026-08-31",
	}

	rendered, err := RenderNote(fm, "Warm the cache before peak traffic.\n")
	require.NoError(t, err)
	assert.True(t, len(rendered) > 0)

	parsed, body := ParseNote(rendered)
	require.NotNil(t, parsed)
	assert.Equal(t, fm, *parsed)
	assert.Equal(t, "Warm the cache before peak traffic.\n", body)
}

func TestRenderNoteStampsCreatedWhenEmpty(t *testing.T) {
	rendered, err := RenderNote(FrontMatter{ID: "sb-1a2b3c4", Title: "T", Type: "idea"}, "body")
	require.NoError(t, err)

	parsed, _ := ParseNote(rendered)
	require.NotNil(t, parsed)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, parsed.Created)
}

func TestParseNoteWithoutFrontMatter(t *testing.T) {
	content := "Just a plain note from before the format existed.\n"
	fm, body := ParseNote(content)
	assert.Nil(t, fm)
	assert.Equal(t, content, body)
}

func TestParseNoteMalformedFrontMatter(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"unterminated block", "---\nid: sb-1a2b3c4\ntitle: T"},
		{"invalid yaml", "---\nid: [unclosed\n---\n\nbody"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fm, body := ParseNote(tc.content)
			assert.Nil(t, fm)
			assert.Equal(t, tc.content, body)
		})
	}
}

func TestNoteIDFromPath(t *testing.T) {
	assert.Equal(t, "sb-1a2b3c4", NoteIDFromPath("10-ideas/2026-08-31__cache-warm-up__sb-1a2b3c4.md"))
	assert.Empty(t, NoteIDFromPath("00-inbox/2026-08-31.md"))
	assert.Empty(t, NoteIDFromPath("10-ideas/2026-08-31__note__sb-ZZZZZZZ.md"))
}

func TestNoteIDPattern(t *testing.T) {
	assert.True(t, NoteIDPattern.MatchString("sb-0f9e8d7"))
	assert.False(t, NoteIDPattern.MatchString("sb-0F9E8D7"))
	assert.False(t, NoteIDPattern.MatchString("sb-123"))
	assert.False(t, NoteIDPattern.MatchString("xsb-0f9e8d7"))
}
