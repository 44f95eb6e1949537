package executor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/internal/domain/execution"
	"github.com/loretree/loretree/internal/domain/notify"
	"github.com/loretree/loretree/internal/domain/vcs"
	"github.com/loretree/loretree/internal/guard"
	"github.com/loretree/loretree/internal/knowledge"
	"github.com/loretree/loretree/pkg/noteid"
)

var executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "loretree_executions_total",
	Help: "Pipeline executions by terminal outcome.",
}, []string{"outcome"})

// Executor turns one validated decision into durable effects exactly once,
// with step-level resumability. It is the only component that catches
// dependency errors and converts them into execution-state transitions; no
// error leaves Execute without a terminal or resumable state behind it.
type Executor struct {
	guard    *guard.Guard
	store    *knowledge.Store
	receipts *ReceiptWriter
	mailer   notify.Mailer
	replier  notify.ChatReplier
	cfg      *config.Config
	logger   *zap.Logger
}

func NewExecutor(
	g *guard.Guard,
	store *knowledge.Store,
	receipts *ReceiptWriter,
	mailer notify.Mailer,
	replier notify.ChatReplier,
	cfg *config.Config,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		guard:    g,
		store:    store,
		receipts: receipts,
		mailer:   mailer,
		replier:  replier,
		cfg:      cfg,
		logger:   logger.Named("executor"),
	}
}

// Execute runs the side-effect sequence for one event. The caller must have
// won TryAcquire for a fresh delivery, or confirmed CanRetry for a resumed
// one; Execute is never invoked for a duplicate.
func (e *Executor) Execute(ctx context.Context, eventID string, dec *decision.Decision, chat decision.ChatContext) error {
	state, err := e.guard.Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load execution state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("no execution state for event %s", eventID)
	}

	// A redelivery may arrive with the state in any non-terminal status: a
	// worker that died mid-execution leaves executing behind, not only
	// partial_failure. The per-step statuses, not the overall status, decide
	// what still has to run; a fresh record has every step pending.
	completed := state.Completed()
	if completed.Repository || completed.Email || completed.ChatReply || state.CanRetry() {
		e.logger.Info("execution_resumed",
			zap.String("event_id", eventID),
			zap.String("status", string(state.Status)),
			zap.Bool("repository_done", completed.Repository),
			zap.Bool("email_done", completed.Email),
			zap.Bool("chat_done", completed.ChatReply),
		)
	} else if err := e.guard.Update(ctx, eventID, execution.Patch{
		Status: execution.StatusPtr(execution.StatusPlanned),
	}); err != nil {
		return fmt.Errorf("mark planned: %w", err)
	}

	if err := e.guard.Update(ctx, eventID, execution.Patch{
		Status: execution.StatusPtr(execution.StatusExecuting),
	}); err != nil {
		return fmt.Errorf("mark executing: %w", err)
	}

	// Repository step. Every later step is about the committed artifact, so
	// a repository failure is permanent: retrying email or chat for a note
	// that was never created would be wrong.
	commitID := state.CommitID
	notePath := state.NotePath
	var filesModified []string
	if notePath != "" {
		filesModified = append(filesModified, notePath)
	}
	if completed.Repository {
		e.logger.Info("repository_step_skipped", zap.String("event_id", eventID))
	} else {
		if err := e.guard.Update(ctx, eventID, execution.Patch{
			RepositoryStep: execution.StepPtr(execution.StepInProgress),
		}); err != nil {
			return err
		}

		result, paths, writeErr := e.writeNote(ctx, dec)
		if writeErr != nil {
			e.logger.Error("repository_step_failed", zap.Error(writeErr), zap.String("event_id", eventID))
			_ = e.guard.Update(ctx, eventID, execution.Patch{
				RepositoryStep: execution.StepPtr(execution.StepFailed),
			})
			e.replyBestEffort(ctx, chat, "Sorry, I couldn't file your message. It has been recorded as failed; please resend it later.")
			if markErr := e.guard.MarkFailed(ctx, eventID, writeErr); markErr != nil {
				return fmt.Errorf("mark failed: %w (write error: %v)", markErr, writeErr)
			}
			executionsTotal.WithLabelValues("failed_permanent").Inc()
			return writeErr
		}

		commitID = result.CommitID
		filesModified = paths
		if len(paths) > 0 {
			notePath = paths[0]
		}
		completed.Repository = true
		// The path is persisted with the commit id so a resumed delivery can
		// still reference the filed note in its email, reply, and receipt.
		if err := e.guard.Update(ctx, eventID, execution.Patch{
			RepositoryStep: execution.StepPtr(execution.StepSucceeded),
			CommitID:       execution.StrPtr(commitID),
			NotePath:       execution.StrPtr(notePath),
		}); err != nil {
			return err
		}
	}

	// Email step. Applicability is configuration, not a hard-coded rule.
	var emailErr error
	emailDone := completed.Email
	emailLabel := "succeeded"
	if !emailDone {
		if !e.cfg.RoutesEmail(string(dec.Classification)) {
			_ = e.guard.Update(ctx, eventID, execution.Patch{
				EmailStep: execution.StepPtr(execution.StepSkipped),
			})
			emailDone = true
			emailLabel = "skipped"
		} else {
			emailErr = e.sendEmail(ctx, dec, notePath, commitID)
			if emailErr == nil {
				emailDone = true
				_ = e.guard.Update(ctx, eventID, execution.Patch{
					EmailStep: execution.StepPtr(execution.StepSucceeded),
				})
			} else {
				e.logger.Error("email_step_failed", zap.Error(emailErr), zap.String("event_id", eventID))
				_ = e.guard.Update(ctx, eventID, execution.Patch{
					EmailStep: execution.StepPtr(execution.StepFailed),
				})
			}
		}
	}

	// Chat-reply step.
	var chatErr error
	chatDone := completed.ChatReply
	if !chatDone {
		chatErr = e.replier.Reply(ctx, chat, e.confirmationText(dec, notePath))
		if chatErr == nil {
			chatDone = true
			_ = e.guard.Update(ctx, eventID, execution.Patch{
				ChatReplyStep: execution.StepPtr(execution.StepSucceeded),
			})
		} else {
			e.logger.Error("chat_step_failed", zap.Error(chatErr), zap.String("event_id", eventID))
			_ = e.guard.Update(ctx, eventID, execution.Patch{
				ChatReplyStep: execution.StepPtr(execution.StepFailed),
			})
		}
	}

	// Receipt step: one immutable audit record per processed event, going
	// through the same optimistic-concurrency write path as the note itself.
	// A retry must not append a second line, so the receipt commit id is
	// persisted as soon as the append lands.
	receiptCommitID := state.ReceiptCommitID
	var receiptErr error
	if receiptCommitID == "" {
		receipt := Receipt{
			EventID:        eventID,
			Classification: string(dec.Classification),
			Confidence:     dec.Confidence,
			FilesModified:  filesModified,
			CommitID:       commitID,
			Summary:        dec.Title,
			Steps: []StepOutcome{
				{Type: "repository", Status: "succeeded", Details: commitID},
				{Type: "email", Status: stepStatusLabel(emailDone, emailErr, emailLabel)},
				{Type: "chat_reply", Status: stepStatusLabel(chatDone, chatErr, "succeeded")},
			},
		}
		receiptCommitID, receiptErr = e.receipts.Append(ctx, receipt)
		if receiptErr != nil {
			e.logger.Error("receipt_step_failed", zap.Error(receiptErr), zap.String("event_id", eventID))
		} else if err := e.guard.Update(ctx, eventID, execution.Patch{
			ReceiptCommitID: execution.StrPtr(receiptCommitID),
		}); err != nil {
			return err
		}
	}

	// Reconciliation.
	if stepErr := firstErr(emailErr, chatErr, receiptErr); stepErr != nil {
		if markErr := e.guard.MarkPartialFailure(ctx, eventID, stepErr, execution.CompletedSteps{
			Repository: true,
			Email:      emailDone,
			ChatReply:  chatDone,
		}); markErr != nil {
			return fmt.Errorf("mark partial failure: %w (step error: %v)", markErr, stepErr)
		}
		executionsTotal.WithLabelValues("partial_failure").Inc()
		return stepErr
	}

	if err := e.guard.MarkCompleted(ctx, eventID, commitID, receiptCommitID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	executionsTotal.WithLabelValues("succeeded").Inc()
	e.logger.Info("execution_succeeded",
		zap.String("event_id", eventID),
		zap.String("classification", string(dec.Classification)),
		zap.String("commit_id", commitID),
	)
	return nil
}

// writeNote files the decision into the repository and returns the final
// commit plus every path touched.
func (e *Executor) writeNote(ctx context.Context, dec *decision.Decision) (vcs.CommitResult, []string, error) {
	var result vcs.CommitResult
	var paths []string

	switch dec.Classification {
	case decision.ClassInbox, decision.ClassTask:
		path, err := knowledge.FilePath(dec.Classification, "", "", dec.DecidedAt)
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}
		line := "- " + dec.Title
		if dec.Classification == decision.ClassTask {
			line = "- [ ] " + dec.Title
			if dec.Task != nil && dec.Task.Due != "" {
				line += " (due " + dec.Task.Due + ")"
			}
		}
		if dec.Content != "" && dec.Content != dec.Title {
			line += "\n  " + dec.Content
		}
		res, err := e.store.AppendToFile(ctx, path, line, fmt.Sprintf("Capture %s: %s", dec.Classification, dec.Title))
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}
		result = res
		paths = append(paths, path)

	case decision.ClassIdea, decision.ClassDecision, decision.ClassProject:
		id, err := noteid.New()
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}
		path, err := knowledge.FilePath(dec.Classification, knowledge.Slug(dec.Title), id, dec.DecidedAt)
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}

		fm := knowledge.FrontMatter{
			ID:    id,
			Title: dec.Title,
			Type:  string(dec.Classification),
			Tags:  dec.Tags,
		}
		if dec.Classification == decision.ClassProject {
			fm.Status = "active"
		}
		content, err := knowledge.RenderNote(fm, dec.Content)
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}

		parent, err := e.store.LatestCommitID(ctx)
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}
		res, err := e.store.WriteFile(ctx,
			vcs.FileContent{Path: path, Content: content, Mode: vcs.ModeCreate},
			fmt.Sprintf("Add %s: %s", dec.Classification, dec.Title),
			parent,
		)
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}
		result = res
		paths = append(paths, path)

	default:
		return vcs.CommitResult{}, nil, fmt.Errorf("%w: %q", decision.ErrUnknownClassification, dec.Classification)
	}

	// Extra writes requested by the classifier, e.g. cross-links into a
	// related project note.
	for _, op := range dec.FileOps {
		msg := fmt.Sprintf("Update %s for %s", op.Path, dec.Title)
		var err error
		var res vcs.CommitResult
		if op.Append {
			res, err = e.store.AppendToFile(ctx, op.Path, op.Content, msg)
		} else {
			res, err = e.store.WriteFile(ctx,
				vcs.FileContent{Path: op.Path, Content: op.Content, Mode: vcs.ModeUpdate},
				msg, result.CommitID)
		}
		if err != nil {
			return vcs.CommitResult{}, nil, err
		}
		result = res
		paths = append(paths, op.Path)
	}

	return result, paths, nil
}

func (e *Executor) sendEmail(ctx context.Context, dec *decision.Decision, notePath, commitID string) error {
	email := notify.TaskEmail{
		Title:    dec.Title,
		Body:     dec.Content,
		FilePath: notePath,
		CommitID: commitID,
	}
	if dec.Task != nil {
		email.Task = *dec.Task
	}
	return e.mailer.SendTaskEmail(ctx, email)
}

func (e *Executor) confirmationText(dec *decision.Decision, notePath string) string {
	if notePath == "" {
		return fmt.Sprintf("Filed as %s: %s", dec.Classification, dec.Title)
	}
	return fmt.Sprintf("Filed as %s: %s (%s)", dec.Classification, dec.Title, notePath)
}

// replyBestEffort sends a chat-facing error message without retrying; a
// failure here is logged and dropped.
func (e *Executor) replyBestEffort(ctx context.Context, chat decision.ChatContext, text string) {
	if err := e.replier.Reply(ctx, chat, text); err != nil {
		e.logger.Warn("error_reply_failed", zap.Error(err))
	}
}

func stepStatusLabel(done bool, err error, doneLabel string) string {
	switch {
	case err != nil:
		return "failed"
	case done:
		return doneLabel
	default:
		return "pending"
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
