package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/execution"
)

// Guard is the exactly-once admission gate for inbound events. Mutual
// exclusion comes entirely from the store's conditional insert; the guard
// holds no in-process locks.
type Guard struct {
	store  execution.Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewGuard(store execution.Store, cfg *config.Config, logger *zap.Logger) *Guard {
	return &Guard{
		store:  store,
		ttl:    time.Duration(cfg.ExecutionTTLSeconds) * time.Second,
		logger: logger.Named("guard"),
	}
}

// TryAcquire attempts the atomic insert-if-absent for the event id. True
// means this caller owns processing; false means a live record already exists
// and the delivery is a duplicate to be skipped entirely.
func (g *Guard) TryAcquire(ctx context.Context, eventID string) (bool, error) {
	state := execution.NewState(eventID, g.ttl)
	acquired, err := g.store.Create(ctx, state)
	if err != nil {
		return false, fmt.Errorf("acquire execution lock: %w", err)
	}
	if !acquired {
		g.logger.Info("duplicate_event_skipped", zap.String("event_id", eventID))
	}
	return acquired, nil
}

// Update merges a partial patch into the stored state.
func (g *Guard) Update(ctx context.Context, eventID string, patch execution.Patch) error {
	return g.store.Update(ctx, eventID, patch)
}

// MarkCompleted records terminal success: every step succeeded or was skipped.
func (g *Guard) MarkCompleted(ctx context.Context, eventID, commitID, receiptCommitID string) error {
	patch := execution.Patch{
		Status:         execution.StatusPtr(execution.StatusSucceeded),
		RepositoryStep: execution.StepPtr(execution.StepSucceeded),
		EmailStep:      execution.StepPtr(execution.StepSucceeded),
		ChatReplyStep:  execution.StepPtr(execution.StepSucceeded),
		LastError:      execution.StrPtr(""),
	}
	if commitID != "" {
		patch.CommitID = execution.StrPtr(commitID)
	}
	if receiptCommitID != "" {
		patch.ReceiptCommitID = execution.StrPtr(receiptCommitID)
	}
	return g.store.Update(ctx, eventID, patch)
}

// MarkFailed records a permanent failure. The record stays until it expires,
// so redeliveries of the same event keep getting rejected by TryAcquire.
func (g *Guard) MarkFailed(ctx context.Context, eventID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return g.store.Update(ctx, eventID, execution.Patch{
		Status:    execution.StatusPtr(execution.StatusFailedPermanent),
		LastError: execution.StrPtr(msg),
	})
}

// MarkPartialFailure records which steps durably completed so a retry skips
// them. Incomplete retryable steps go back to pending.
func (g *Guard) MarkPartialFailure(ctx context.Context, eventID string, cause error, completed execution.CompletedSteps) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	patch := execution.Patch{
		Status:    execution.StatusPtr(execution.StatusPartialFailure),
		LastError: execution.StrPtr(msg),
	}
	if completed.Repository {
		patch.RepositoryStep = execution.StepPtr(execution.StepSucceeded)
	}
	if completed.Email {
		patch.EmailStep = execution.StepPtr(execution.StepSucceeded)
	} else {
		patch.EmailStep = execution.StepPtr(execution.StepPending)
	}
	if completed.ChatReply {
		patch.ChatReplyStep = execution.StepPtr(execution.StepSucceeded)
	} else {
		patch.ChatReplyStep = execution.StepPtr(execution.StepPending)
	}
	return g.store.Update(ctx, eventID, patch)
}

// CompletedSteps derives the per-step completion map for resumption.
func (g *Guard) CompletedSteps(ctx context.Context, eventID string) (execution.CompletedSteps, error) {
	state, err := g.store.Get(ctx, eventID)
	if err != nil {
		return execution.CompletedSteps{}, err
	}
	if state == nil {
		return execution.CompletedSteps{}, fmt.Errorf("no execution state for event %s", eventID)
	}
	return state.Completed(), nil
}

// CanRetry reports whether the event is resumable.
func (g *Guard) CanRetry(ctx context.Context, eventID string) (bool, error) {
	state, err := g.store.Get(ctx, eventID)
	if err != nil {
		return false, err
	}
	return state != nil && state.CanRetry(), nil
}

// IsProcessed reports final success for callers that only care about the
// terminal outcome, not resumability.
func (g *Guard) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	state, err := g.store.Get(ctx, eventID)
	if err != nil {
		return false, err
	}
	return state != nil && state.Processed(), nil
}

// Get exposes the raw state for operational inspection.
func (g *Guard) Get(ctx context.Context, eventID string) (*execution.State, error) {
	return g.store.Get(ctx, eventID)
}
