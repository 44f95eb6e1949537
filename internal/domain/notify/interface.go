package notify

import (
	"context"

	"github.com/loretree/loretree/internal/domain/decision"
)

// TaskEmail is a task-routing notification referencing the committed note.
type TaskEmail struct {
	Title    string
	Body     string
	FilePath string
	CommitID string
	Task     decision.TaskDetails
}

// Mailer dispatches task-routing email.
type Mailer interface {
	SendTaskEmail(ctx context.Context, email TaskEmail) error
}

// ChatReplier sends a confirmation or error message back to the originating
// chat context.
type ChatReplier interface {
	Reply(ctx context.Context, chat decision.ChatContext, text string) error
}
