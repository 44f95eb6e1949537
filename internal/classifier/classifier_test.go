package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/pkg/llmclient"
)

type stubCompleter struct {
	response string
	err      error
	requests []llmclient.CompletionRequest
}

func (s *stubCompleter) Complete(ctx context.Context, req llmclient.CompletionRequest) (*llmclient.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llmclient.CompletionResponse{Content: s.response}, nil
}

func TestClassifyFencedJSONResponse(t *testing.T) {
	stub := &stubCompleter{response: "Here is the plan:\n```json\n" + `{
		"classification": "idea",
		"confidence": 0.9,
		"reasoning": "speculative improvement",
		"title": "Use a bloom filter",
		"content": "Swap the LRU cache for a bloom filter.",
		"tags": ["Perf", "perf", " caching "]
	}` + "\n```\nLet me know if you need anything else."}

	c := NewLLMClassifier(stub, zap.NewNop())
	dec, err := c.Classify(context.Background(), "what if we used a bloom filter here")
	require.NoError(t, err)

	assert.Equal(t, decision.ClassIdea, dec.Classification)
	assert.InDelta(t, 0.9, dec.Confidence, 0.001)
	assert.Equal(t, "Use a bloom filter", dec.Title)
	assert.Equal(t, []string{"perf", "caching"}, dec.Tags)
	assert.Nil(t, dec.Task)
}

func TestClassifyBareJSONResponse(t *testing.T) {
	stub := &stubCompleter{response: `{"classification":"inbox","confidence":0.5,"title":"Random thought","content":"something to triage later"}`}

	c := NewLLMClassifier(stub, zap.NewNop())
	dec, err := c.Classify(context.Background(), "hmm")
	require.NoError(t, err)
	assert.Equal(t, decision.ClassInbox, dec.Classification)
}

func TestClassifyJSONEmbeddedInProse(t *testing.T) {
	stub := &stubCompleter{response: `Sure! The classification is {"classification":"decision","confidence":0.8,"title":"Adopt Go","content":"We will adopt Go for services."} as requested.`}

	c := NewLLMClassifier(stub, zap.NewNop())
	dec, err := c.Classify(context.Background(), "we decided to adopt go")
	require.NoError(t, err)
	assert.Equal(t, decision.ClassDecision, dec.Classification)
}

func TestClassifyRejectsInvalidPlans(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"not json", "I could not classify that message, sorry."},
		{"unknown classification", `{"classification":"memo","confidence":0.9,"title":"t","content":"c"}`},
		{"confidence out of range", `{"classification":"idea","confidence":1.4,"title":"t","content":"c"}`},
		{"missing title", `{"classification":"idea","confidence":0.9,"content":"c"}`},
		{"task without details", `{"classification":"task","confidence":0.9,"title":"t","content":"c"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewLLMClassifier(&stubCompleter{response: tc.response}, zap.NewNop())
			_, err := c.Classify(context.Background(), "message")
			assert.Error(t, err)
		})
	}
}

func TestClassifyEmptyMessage(t *testing.T) {
	c := NewLLMClassifier(&stubCompleter{}, zap.NewNop())
	_, err := c.Classify(context.Background(), "   ")
	assert.Error(t, err)
}

func TestClassifyTaskCarriesDetails(t *testing.T) {
	stub := &stubCompleter{response: `{"classification":"task","confidence":0.95,"title":"Rotate keys","content":"Rotate the signing keys.","task_details":{"assignee":"ops","due":"2026-09-01","priority":"high"}}`}

	c := NewLLMClassifier(stub, zap.NewNop())
	dec, err := c.Classify(context.Background(), "remind ops to rotate keys by sept 1")
	require.NoError(t, err)
	require.NotNil(t, dec.Task)
	assert.Equal(t, "ops", dec.Task.Assignee)
	assert.Equal(t, "2026-09-01", dec.Task.Due)
}
