package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/domain/decision"
)

type chatEventRequest struct {
	EventID   string `json:"event_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// ReceiveChatEvent accepts one signed delivery from the chat platform and
// enqueues it. The handler only persists; classification and filing happen in
// the inbox poller, so the platform's delivery timeout is never at risk.
func (r *Router) ReceiveChatEvent(c *gin.Context) {
	var req chatEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := r.verifySignature(c, req.EventID); err != nil {
		r.logger.Warn("webhook_signature_rejected",
			zap.Error(err),
			zap.String("event_id", req.EventID),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	queued, err := r.queue.Enqueue(c.Request.Context(), req.EventID, req.Message, decision.ChatContext{
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		MessageID: req.MessageID,
		ThreadID:  req.ThreadID,
	})
	if err != nil {
		r.logger.Error("webhook_enqueue_failed", zap.Error(err), zap.String("event_id", req.EventID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	// Redeliveries acknowledge 202 as well; the platform must stop resending.
	c.JSON(http.StatusAccepted, gin.H{
		"event_id": req.EventID,
		"queued":   queued,
	})
}

// verifySignature checks the HS256 token the platform attaches to each
// delivery. The token's event_id claim must match the payload, binding the
// signature to this specific event.
func (r *Router) verifySignature(c *gin.Context, eventID string) error {
	raw := strings.TrimSpace(c.GetHeader("X-Webhook-Signature"))
	if raw == "" {
		return fmt.Errorf("missing signature header")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(r.cfg.WebhookSigningSecret), nil
	})
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid signature token")
	}
	if claimed, _ := claims["event_id"].(string); claimed != eventID {
		return fmt.Errorf("signature event_id mismatch")
	}
	return nil
}
