package ses

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/notify"
)

// Mailer sends task-routing email through SES.
type Mailer struct {
	client *sesv2.Client
	from   string
	to     string
	logger *zap.Logger
}

func NewMailer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Mailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Mailer{
		client: sesv2.NewFromConfig(awsCfg),
		from:   cfg.TaskEmailFrom,
		to:     cfg.TaskEmailTo,
		logger: logger.Named("mailer"),
	}, nil
}

func (m *Mailer) SendTaskEmail(ctx context.Context, email notify.TaskEmail) error {
	subject := "Task: " + email.Title
	body := renderBody(email)

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &m.from,
		Destination: &types.Destination{
			ToAddresses: []string{m.to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Text: &types.Content{Data: &body},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send task email: %w", err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	m.logger.Info("task_email_sent",
		zap.String("title", email.Title),
		zap.String("message_id", messageID),
	)
	return nil
}

func renderBody(email notify.TaskEmail) string {
	var b strings.Builder
	b.WriteString(email.Body)
	b.WriteString("\n\n")

	if email.Task.Assignee != "" {
		fmt.Fprintf(&b, "Assignee: %s\n", email.Task.Assignee)
	}
	if email.Task.Due != "" {
		fmt.Fprintf(&b, "Due: %s\n", email.Task.Due)
	}
	if email.Task.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", email.Task.Priority)
	}
	if email.FilePath != "" {
		fmt.Fprintf(&b, "Filed at: %s", email.FilePath)
		if email.CommitID != "" {
			fmt.Fprintf(&b, " (commit %s)", email.CommitID)
		}
		b.WriteString("\n")
	}
	return b.String()
}
