package inbox

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/pkg/snowflake"
)

type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusProcessing EventStatus = "processing"
	StatusCompleted  EventStatus = "completed"
	StatusFailed     EventStatus = "failed"
)

// Event is a durable inbox entry for one chat message delivery. The webhook
// only writes this row; all real work happens in the poller, so a slow model
// call never blocks the HTTP path.
type Event struct {
	ID      int64  `gorm:"primaryKey"`
	EventID string `gorm:"uniqueIndex;type:varchar(255);not null"`
	Message string `gorm:"type:text;not null"`

	UserID    string `gorm:"type:varchar(255)"`
	ChannelID string `gorm:"type:varchar(255)"`
	MessageID string `gorm:"type:varchar(255)"`
	ThreadID  string `gorm:"type:varchar(255)"`

	Status        EventStatus `gorm:"type:varchar(50);not null"`
	Attempts      int         `gorm:"not null;default:0"`
	LastError     string      `gorm:"type:text"`
	LockedAt      *time.Time
	NextAttemptAt *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Event) TableName() string {
	return "inbox_events"
}

// ChatContext rebuilds the reply addressing data carried on the row.
func (e *Event) ChatContext() decision.ChatContext {
	return decision.ChatContext{
		UserID:    e.UserID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		ThreadID:  e.ThreadID,
	}
}

// Queue enqueues inbox events.
type Queue struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewQueue(db *gorm.DB, node *snowflake.Node) *Queue {
	return &Queue{db: db, node: node}
}

// Enqueue stores a delivery. Redeliveries of an event id already queued are
// absorbed here; the idempotency guard covers the window after the row is
// gone.
func (q *Queue) Enqueue(ctx context.Context, eventID, message string, chat decision.ChatContext) (bool, error) {
	event := &Event{
		ID:        q.node.GenerateID(),
		EventID:   eventID,
		Message:   message,
		UserID:    chat.UserID,
		ChannelID: chat.ChannelID,
		MessageID: chat.MessageID,
		ThreadID:  chat.ThreadID,
		Status:    StatusPending,
	}

	result := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
