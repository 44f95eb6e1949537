package testhelper

import (
	"context"
	"fmt"

	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/internal/domain/notify"
)

// MockMailer is a mock implementation of notify.Mailer
type MockMailer struct {
	SentEmails []notify.TaskEmail
	// FailuresRemaining makes that many sends fail before succeeding.
	FailuresRemaining int
	ShouldFail        bool
}

func (m *MockMailer) SendTaskEmail(ctx context.Context, email notify.TaskEmail) error {
	if m.ShouldFail {
		return fmt.Errorf("mock mailer: send failed")
	}
	if m.FailuresRemaining > 0 {
		m.FailuresRemaining--
		return fmt.Errorf("mock mailer: transient send failure")
	}
	m.SentEmails = append(m.SentEmails, email)
	return nil
}

// MockChatReplier is a mock implementation of notify.ChatReplier
type MockChatReplier struct {
	Replies           []string
	Contexts          []decision.ChatContext
	FailuresRemaining int
	ShouldFail        bool
}

func (m *MockChatReplier) Reply(ctx context.Context, chat decision.ChatContext, text string) error {
	if m.ShouldFail {
		return fmt.Errorf("mock replier: reply failed")
	}
	if m.FailuresRemaining > 0 {
		m.FailuresRemaining--
		return fmt.Errorf("mock replier: transient reply failure")
	}
	m.Replies = append(m.Replies, text)
	m.Contexts = append(m.Contexts, chat)
	return nil
}
