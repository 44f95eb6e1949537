package execution

import (
	"errors"
	"time"
)

// Status is the lifecycle state of one event's processing.
type Status string

const (
	StatusReceived        Status = "received"
	StatusPlanned         Status = "planned"
	StatusExecuting       Status = "executing"
	StatusPartialFailure  Status = "partial_failure"
	StatusSucceeded       Status = "succeeded"
	StatusFailedPermanent Status = "failed_permanent"
)

// StepStatus tracks one side effect within an execution.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepSucceeded  StepStatus = "succeeded"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

var ErrInvalidTransition = errors.New("invalid execution state transition")

// CompletedSteps is the per-step completion map consulted on retry.
type CompletedSteps struct {
	Repository bool `json:"repository"`
	Email      bool `json:"email"`
	ChatReply  bool `json:"chat_reply"`
}

// State is the idempotency record for one event identifier. Exactly one
// exists per event id for its lifetime; it is created by the atomic acquire
// and becomes immutable once succeeded or failed_permanent.
type State struct {
	EventID string `json:"event_id"`
	Status  Status `json:"status"`

	RepositoryStep StepStatus `json:"repository_step"`
	EmailStep      StepStatus `json:"email_step"`
	ChatReplyStep  StepStatus `json:"chat_reply_step"`

	LastError       string `json:"last_error,omitempty"`
	CommitID        string `json:"commit_id,omitempty"`
	NotePath        string `json:"note_path,omitempty"`
	ReceiptCommitID string `json:"receipt_commit_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewState seeds a fresh record for an event that just arrived.
func NewState(eventID string, ttl time.Duration) *State {
	now := time.Now().UTC()
	return &State{
		EventID:        eventID,
		Status:         StatusReceived,
		RepositoryStep: StepPending,
		EmailStep:      StepPending,
		ChatReplyStep:  StepPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}

// Terminal reports whether no further mutation is expected.
func (s *State) Terminal() bool {
	return s.Status == StatusSucceeded || s.Status == StatusFailedPermanent
}

// CanRetry reports whether a redelivery should resume this execution.
func (s *State) CanRetry() bool {
	return s.Status == StatusPartialFailure
}

// Processed reports final success.
func (s *State) Processed() bool {
	return s.Status == StatusSucceeded
}

// Expired reports whether the record is eligible for garbage collection,
// which also bounds the duplicate-recognition window.
func (s *State) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Completed derives the per-step completion map from current step statuses.
func (s *State) Completed() CompletedSteps {
	return CompletedSteps{
		Repository: s.RepositoryStep == StepSucceeded,
		Email:      s.EmailStep == StepSucceeded,
		ChatReply:  s.ChatReplyStep == StepSucceeded,
	}
}

// Patch is a partial update merged into a stored State. Nil fields are left
// untouched; created_at and expires_at are never written through a patch.
type Patch struct {
	Status          *Status
	RepositoryStep  *StepStatus
	EmailStep       *StepStatus
	ChatReplyStep   *StepStatus
	LastError       *string
	CommitID        *string
	NotePath        *string
	ReceiptCommitID *string
}

// Apply merges the patch into s and bumps updated_at.
func (s *State) Apply(p Patch) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.RepositoryStep != nil {
		s.RepositoryStep = *p.RepositoryStep
	}
	if p.EmailStep != nil {
		s.EmailStep = *p.EmailStep
	}
	if p.ChatReplyStep != nil {
		s.ChatReplyStep = *p.ChatReplyStep
	}
	if p.LastError != nil {
		s.LastError = *p.LastError
	}
	if p.CommitID != nil {
		s.CommitID = *p.CommitID
	}
	if p.NotePath != nil {
		s.NotePath = *p.NotePath
	}
	if p.ReceiptCommitID != nil {
		s.ReceiptCommitID = *p.ReceiptCommitID
	}
	s.UpdatedAt = time.Now().UTC()
}

// StatusPtr is a convenience for building patches.
func StatusPtr(v Status) *Status { return &v }

// StepPtr is a convenience for building patches.
func StepPtr(v StepStatus) *StepStatus { return &v }

// StrPtr is a convenience for building patches.
func StrPtr(v string) *string { return &v }
