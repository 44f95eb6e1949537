package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/loretree/loretree/internal/domain/execution"
	"github.com/loretree/loretree/internal/inbox"
)

// Reconciler periodically deletes expired execution states, which also closes
// the duplicate-recognition window, and releases inbox rows whose worker died
// while holding the processing lock.
type Reconciler struct {
	db     *gorm.DB
	store  execution.Store
	logger *zap.Logger

	sweepInterval time.Duration
	lockTimeout   time.Duration
}

func NewReconciler(db *gorm.DB, store execution.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		db:            db,
		store:         store,
		logger:        logger.Named("reconciler"),
		sweepInterval: 10 * time.Minute,
		lockTimeout:   15 * time.Minute,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	removed, err := r.store.DeleteExpired(ctx)
	if err != nil {
		r.logger.Error("expired_state_sweep_failed", zap.Error(err))
	} else if removed > 0 {
		r.logger.Info("expired_states_removed", zap.Int64("count", removed))
	}

	released, err := r.releaseStuckEvents(ctx)
	if err != nil {
		r.logger.Error("stuck_event_release_failed", zap.Error(err))
	} else if released > 0 {
		r.logger.Info("stuck_events_released", zap.Int64("count", released))
	}
}

// releaseStuckEvents returns processing rows older than the lock timeout to
// pending. The idempotency guard makes the re-run safe.
func (r *Reconciler) releaseStuckEvents(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-r.lockTimeout)
	result := r.db.WithContext(ctx).Model(&inbox.Event{}).
		Where("status = ? AND locked_at < ?", inbox.StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     inbox.StatusPending,
			"locked_at":  nil,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
