package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/inbox"
)

// GetExecution returns the full execution state for one event id.
func (r *Router) GetExecution(c *gin.Context) {
	eventID := c.Param("event_id")

	state, err := r.guard.Get(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown event"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// RetryExecution releases a partially failed event back to the inbox poller.
// Only resumable executions qualify; terminal ones are refused.
func (r *Router) RetryExecution(c *gin.Context) {
	eventID := c.Param("event_id")
	ctx := c.Request.Context()

	state, err := r.guard.Get(ctx, eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown event"})
		return
	}
	if !state.CanRetry() {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "execution is not retryable",
			"status": state.Status,
		})
		return
	}

	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&inbox.Event{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":          inbox.StatusPending,
			"attempts":        0,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"updated_at":      now,
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no inbox row for event"})
		return
	}

	r.logger.Info("execution_retry_requested", zap.String("event_id", eventID))
	c.JSON(http.StatusAccepted, gin.H{"event_id": eventID, "status": "retry_enqueued"})
}

// TriggerSync runs an item index sync immediately.
func (r *Router) TriggerSync(c *gin.Context) {
	result, err := r.syncSvc.Sync(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListModels reports the models available to the configured key, so an
// operator can confirm the classifier's model exists before pointing traffic
// at it.
func (r *Router) ListModels(c *gin.Context) {
	models, err := r.models.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// SyncHealth compares the repository against the item index.
func (r *Router) SyncHealth(c *gin.Context) {
	report, err := r.syncSvc.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
