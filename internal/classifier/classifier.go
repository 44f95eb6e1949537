package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/pkg/llmclient"
)

const systemPrompt = `You are a knowledge-filing classifier. Classify the user's message and return a JSON action plan with:
- classification: one of inbox, idea, decision, project, task
- confidence: 0.0 to 1.0
- reasoning: brief explanation
- title: short title
- content: formatted markdown content
- tags: optional array of lowercase tags
- task_details: for tasks, an object with assignee, due, priority
- linked_project: optional path of a related project note
- file_operations: optional array of {path, content, append} extra writes
Return only valid JSON.`

// Completer is the single model call the classifier needs; satisfied by
// *llmclient.Client.
type Completer interface {
	Complete(ctx context.Context, req llmclient.CompletionRequest) (*llmclient.CompletionResponse, error)
}

// Classifier turns a raw chat message into a validated decision.
type Classifier interface {
	Classify(ctx context.Context, message string) (*decision.Decision, error)
}

// actionPlan is the raw, untrusted model output before validation.
type actionPlan struct {
	Classification string                   `json:"classification"`
	Confidence     float64                  `json:"confidence"`
	Reasoning      string                   `json:"reasoning"`
	Title          string                   `json:"title"`
	Content        string                   `json:"content"`
	Tags           []string                 `json:"tags"`
	TaskDetails    *decision.TaskDetails    `json:"task_details"`
	LinkedProject  string                   `json:"linked_project"`
	FileOperations []decision.FileOperation `json:"file_operations"`
}

type LLMClassifier struct {
	llm    Completer
	logger *zap.Logger
}

func NewLLMClassifier(llm Completer, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{
		llm:    llm,
		logger: logger.Named("classifier"),
	}
}

// Classify sends the message to the model and validates the returned action
// plan. A plan that fails validation is an error, never a best-effort
// decision: everything downstream trusts the decision without re-checking.
func (c *LLMClassifier) Classify(ctx context.Context, message string) (*decision.Decision, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("empty message")
	}

	resp, err := c.llm.Complete(ctx, llmclient.CompletionRequest{
		System:   systemPrompt,
		Messages: []llmclient.Message{{Role: "user", Content: message}},
	})
	if err != nil {
		return nil, fmt.Errorf("model invocation: %w", err)
	}

	var plan actionPlan
	if !ExtractJSON(resp.Content, &plan) {
		c.logger.Warn("classifier_response_unparseable",
			zap.String("raw", truncate(resp.Content, 500)),
		)
		return nil, fmt.Errorf("no valid JSON in model response")
	}

	dec, err := c.validate(plan)
	if err != nil {
		return nil, fmt.Errorf("action plan rejected: %w", err)
	}

	c.logger.Info("message_classified",
		zap.String("classification", string(dec.Classification)),
		zap.Float64("confidence", dec.Confidence),
	)
	return dec, nil
}

func (c *LLMClassifier) validate(plan actionPlan) (*decision.Decision, error) {
	if plan.Title == "" {
		return nil, fmt.Errorf("missing required field: title")
	}
	if plan.Content == "" {
		return nil, fmt.Errorf("missing required field: content")
	}

	dec, err := decision.New(decision.Classification(plan.Classification), plan.Confidence, plan.Title, plan.Content)
	if err != nil {
		return nil, err
	}

	dec.Reasoning = plan.Reasoning
	dec.Tags = normalizeTags(plan.Tags)
	dec.LinkedProject = plan.LinkedProject
	dec.FileOps = plan.FileOperations

	if dec.Classification == decision.ClassTask {
		if plan.TaskDetails == nil {
			return nil, decision.ErrMissingTaskDetails
		}
		dec.WithTask(*plan.TaskDetails)
	}
	return dec, nil
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
