package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/decision"
)

// Replier posts replies back to the chat platform's REST API.
type Replier struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

func NewReplier(cfg *config.Config, logger *zap.Logger) *Replier {
	return &Replier{
		baseURL: cfg.ChatAPIBaseURL,
		token:   cfg.ChatBotToken,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.Named("chatapi"),
	}
}

type postMessageRequest struct {
	ChannelID string `json:"channel_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	Text      string `json:"text"`
}

func (r *Replier) Reply(ctx context.Context, chat decision.ChatContext, text string) error {
	payload, err := json.Marshal(postMessageRequest{
		ChannelID: chat.ChannelID,
		ThreadID:  chat.ThreadID,
		Text:      text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("post chat reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat api error: %s: %s", resp.Status, string(body))
	}

	r.logger.Info("chat_reply_sent",
		zap.String("channel_id", chat.ChannelID),
		zap.String("message_id", chat.MessageID),
	)
	return nil
}
