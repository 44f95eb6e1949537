package decision

import (
	"errors"
	"fmt"
	"time"
)

// Classification is the closed set of note kinds the classifier may emit.
type Classification string

const (
	ClassInbox    Classification = "inbox"
	ClassIdea     Classification = "idea"
	ClassDecision Classification = "decision"
	ClassProject  Classification = "project"
	ClassTask     Classification = "task"
)

// All lists every valid classification.
var All = []Classification{ClassInbox, ClassIdea, ClassDecision, ClassProject, ClassTask}

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassInbox, ClassIdea, ClassDecision, ClassProject, ClassTask:
		return true
	}
	return false
}

var (
	ErrUnknownClassification = errors.New("unknown classification")
	ErrMissingTaskDetails    = errors.New("task decision requires task details")
)

// TaskDetails carries the routing payload for a task decision.
type TaskDetails struct {
	Assignee string `json:"assignee,omitempty"`
	Due      string `json:"due,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// FileOperation is an explicit extra write requested by the classifier,
// e.g. appending a cross-link to a related project note.
type FileOperation struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// Decision is a fully validated classifier output. It is only constructed
// through New, after upstream validation has accepted the raw action plan;
// the executor trusts it and does not re-validate.
type Decision struct {
	Classification Classification  `json:"classification"`
	Confidence     float64         `json:"confidence"`
	Reasoning      string          `json:"reasoning,omitempty"`
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	Tags           []string        `json:"tags,omitempty"`
	Task           *TaskDetails    `json:"task_details,omitempty"`
	LinkedProject  string          `json:"linked_project,omitempty"`
	FileOps        []FileOperation `json:"file_operations,omitempty"`
	DecidedAt      time.Time       `json:"decided_at"`
}

// ChatContext is opaque addressing data for the chat-reply step.
type ChatContext struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// New builds a Decision, enforcing the closed variant per classification.
func New(class Classification, confidence float64, title, content string) (*Decision, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClassification, class)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence out of range [0, 1]: %v", confidence)
	}
	return &Decision{
		Classification: class,
		Confidence:     confidence,
		Title:          title,
		Content:        content,
		DecidedAt:      time.Now().UTC(),
	}, nil
}

// WithTask attaches task details; only meaningful for task decisions.
func (d *Decision) WithTask(details TaskDetails) *Decision {
	d.Task = &details
	return d
}

// RequiresSlug reports whether filing this decision needs a slug-named file.
// Inbox and task entries land in the date-stamped daily file instead.
func (d *Decision) RequiresSlug() bool {
	switch d.Classification {
	case ClassIdea, ClassDecision, ClassProject:
		return true
	default:
		return false
	}
}
