package inbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/loretree/loretree/internal/classifier"
	"github.com/loretree/loretree/internal/detect"
	"github.com/loretree/loretree/internal/domain/item"
	"github.com/loretree/loretree/internal/domain/notify"
	"github.com/loretree/loretree/internal/domain/vcs"
	"github.com/loretree/loretree/internal/executor"
	"github.com/loretree/loretree/internal/guard"
	"github.com/loretree/loretree/internal/knowledge"
	"github.com/loretree/loretree/internal/lookup"
)

type Processor struct {
	db         *gorm.DB
	guard      *guard.Guard
	classifier classifier.Classifier
	executor   *executor.Executor
	store      *knowledge.Store
	items      item.Repository
	lookup     *lookup.Service
	replier    notify.ChatReplier
	logger     *zap.Logger

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

func NewProcessor(
	db *gorm.DB,
	g *guard.Guard,
	cls classifier.Classifier,
	exec *executor.Executor,
	store *knowledge.Store,
	items item.Repository,
	lk *lookup.Service,
	replier notify.ChatReplier,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:           db,
		guard:        g,
		classifier:   cls,
		executor:     exec,
		store:        store,
		items:        items,
		lookup:       lk,
		replier:      replier,
		logger:       logger.Named("inbox"),
		pollInterval: 5 * time.Second,
		batchSize:    5,
		maxAttempts:  10,
	}
}

// Run polls the inbox so message processing happens after the durable write,
// keeping DB state authoritative.
func (p *Processor) Run(ctx context.Context) {
	if err := p.processBatch(ctx); err != nil {
		p.logger.Error("inbox_initial_poll_failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("inbox_poll_failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context) error {
	events, err := p.fetchAndLockPending(ctx)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error("inbox_event_processing_failed",
				zap.Error(err),
				zap.String("event_id", event.EventID),
			)
		}
	}

	return nil
}

func (p *Processor) fetchAndLockPending(ctx context.Context) ([]Event, error) {
	var events []Event
	now := time.Now().UTC()

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT * FROM inbox_events
			 WHERE status IN (?, ?)
			   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			   AND attempts < ?
			 ORDER BY created_at ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			StatusPending,
			StatusFailed,
			now,
			p.maxAttempts,
			p.batchSize,
		).Scan(&events).Error; err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for i := range events {
			ids = append(ids, events[i].ID)
			events[i].Attempts++
		}

		return tx.Model(&Event{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
				"last_error": nil,
			}).Error
	})

	return events, err
}

func (p *Processor) processEvent(ctx context.Context, event Event) error {
	switch result := detect.Detect(event.Message); result.Intent {
	case detect.IntentQuery:
		return p.handleQuery(ctx, event, result.Query)
	case detect.IntentStatusUpdate:
		return p.handleStatusUpdate(ctx, event, result.Status)
	case detect.IntentFixCommand:
		return p.handleFix(ctx, event, result.Fix)
	default:
		return p.handleClassify(ctx, event)
	}
}

// handleClassify runs the full pipeline: acquire, classify, execute.
func (p *Processor) handleClassify(ctx context.Context, event Event) error {
	state, err := p.guard.Get(ctx, event.EventID)
	if err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("load execution state: %w", err))
	}

	if state == nil {
		acquired, err := p.guard.TryAcquire(ctx, event.EventID)
		if err != nil {
			return p.markEventFailed(ctx, event, fmt.Errorf("acquire: %w", err))
		}
		if !acquired {
			// Lost a race with another delivery path; reload and fall
			// through to the terminal check.
			if state, err = p.guard.Get(ctx, event.EventID); err != nil {
				return p.markEventFailed(ctx, event, err)
			}
		}
	}

	if state != nil && state.Terminal() {
		p.logger.Info("inbox_event_already_final",
			zap.String("event_id", event.EventID),
			zap.String("status", string(state.Status)),
		)
		return p.markEventCompleted(ctx, event.ID)
	}

	// Non-terminal state with our inbox row locked means the previous
	// attempt died partway; the executor skips whatever already landed.
	dec, err := p.classifier.Classify(ctx, event.Message)
	if err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("classify: %w", err))
	}

	if err := p.executor.Execute(ctx, event.EventID, dec, event.ChatContext()); err != nil {
		// A permanently failed execution must not be re-fed to the
		// executor on the next poll.
		if after, getErr := p.guard.Get(ctx, event.EventID); getErr == nil && after != nil && after.Terminal() {
			return p.markEventAbandoned(ctx, event, err)
		}
		return p.markEventFailed(ctx, event, err)
	}

	return p.markEventCompleted(ctx, event.ID)
}

func (p *Processor) handleQuery(ctx context.Context, event Event, query string) error {
	answer, err := p.lookup.Answer(ctx, query)
	if err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("answer query: %w", err))
	}
	if err := p.replier.Reply(ctx, event.ChatContext(), answer); err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("send answer: %w", err))
	}
	return p.markEventCompleted(ctx, event.ID)
}

func (p *Processor) handleStatusUpdate(ctx context.Context, event Event, update *detect.StatusUpdate) error {
	it, err := p.items.GetByNoteID(ctx, update.NoteID)
	if err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("lookup %s: %w", update.NoteID, err))
	}
	if it == nil {
		if err := p.replier.Reply(ctx, event.ChatContext(), fmt.Sprintf("I don't know any item %s.", update.NoteID)); err != nil {
			return p.markEventFailed(ctx, event, err)
		}
		return p.markEventCompleted(ctx, event.ID)
	}

	content, err := p.store.ReadFile(ctx, it.Path)
	if err != nil || content == nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("read %s: %w", it.Path, err))
	}

	fm, body := knowledge.ParseNote(string(content))
	if fm == nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("note %s has no front matter", it.Path))
	}
	fm.Status = update.Status
	rendered, err := knowledge.RenderNote(*fm, body)
	if err != nil {
		return p.markEventFailed(ctx, event, err)
	}

	parent, err := p.store.LatestCommitID(ctx)
	if err != nil {
		return p.markEventFailed(ctx, event, err)
	}
	if _, err := p.store.WriteFile(ctx,
		vcs.FileContent{Path: it.Path, Content: rendered, Mode: vcs.ModeUpdate},
		fmt.Sprintf("Set status of %s to %s", update.NoteID, update.Status),
		parent,
	); err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("update %s: %w", it.Path, err))
	}

	it.Status = update.Status
	if err := p.items.Upsert(ctx, it); err != nil {
		p.logger.Warn("item_index_status_update_failed", zap.Error(err), zap.String("note_id", it.NoteID))
	}

	if err := p.replier.Reply(ctx, event.ChatContext(), fmt.Sprintf("Marked %s (%s) as %s.", it.Title, it.NoteID, update.Status)); err != nil {
		return p.markEventFailed(ctx, event, err)
	}
	return p.markEventCompleted(ctx, event.ID)
}

func (p *Processor) handleFix(ctx context.Context, event Event, fix *detect.FixCommand) error {
	it, err := p.items.MostRecent(ctx)
	if err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("find recent item: %w", err))
	}
	if it == nil {
		if err := p.replier.Reply(ctx, event.ChatContext(), "There's no recent note to correct yet."); err != nil {
			return p.markEventFailed(ctx, event, err)
		}
		return p.markEventCompleted(ctx, event.ID)
	}

	correction := fmt.Sprintf("> Correction (%s): %s", time.Now().UTC().Format("2006-01-02"), fix.Correction)
	if _, err := p.store.AppendToFile(ctx, it.Path, correction,
		fmt.Sprintf("Apply correction to %s", it.NoteID),
	); err != nil {
		return p.markEventFailed(ctx, event, fmt.Errorf("apply correction: %w", err))
	}

	if err := p.replier.Reply(ctx, event.ChatContext(), fmt.Sprintf("Corrected %s (%s).", it.Title, it.NoteID)); err != nil {
		return p.markEventFailed(ctx, event, err)
	}
	return p.markEventCompleted(ctx, event.ID)
}

func (p *Processor) markEventCompleted(ctx context.Context, eventID int64) error {
	now := time.Now().UTC()
	return p.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND status = ?", eventID, StatusProcessing).
		Updates(map[string]any{
			"status":       StatusCompleted,
			"processed_at": now,
			"updated_at":   now,
			"last_error":   nil,
		}).Error
}

func (p *Processor) markEventFailed(ctx context.Context, event Event, err error) error {
	if err == nil {
		return nil
	}

	now := time.Now().UTC()
	nextAttempt := now.Add(backoffDuration(event.Attempts))

	updateErr := p.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"status":          StatusFailed,
			"last_error":      err.Error(),
			"next_attempt_at": nextAttempt,
			"updated_at":      now,
		}).Error
	if updateErr != nil {
		return fmt.Errorf("mark event failed: %w (original error: %v)", updateErr, err)
	}
	return err
}

// markEventAbandoned parks the row permanently; the execution state already
// records the terminal failure.
func (p *Processor) markEventAbandoned(ctx context.Context, event Event, err error) error {
	now := time.Now().UTC()
	updateErr := p.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"status":       StatusFailed,
			"last_error":   err.Error(),
			"attempts":     p.maxAttempts,
			"processed_at": now,
			"updated_at":   now,
		}).Error
	if updateErr != nil {
		return fmt.Errorf("mark event abandoned: %w (original error: %v)", updateErr, err)
	}
	return err
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return 10 * time.Second
	}

	maxBackoff := 5 * time.Minute
	base := 10 * time.Second
	shift := attempt - 1
	if shift > 6 {
		shift = 6
	}

	d := base * time.Duration(1<<shift)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
