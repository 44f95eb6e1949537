package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loretree/loretree/internal/domain/execution"
)

// ExecutionModel is the database DTO with Gorm tags.
type ExecutionModel struct {
	EventID string `gorm:"primaryKey;type:varchar(255)"`
	Status  string `gorm:"type:varchar(50);not null"`

	RepositoryStep string `gorm:"type:varchar(50);not null"`
	EmailStep      string `gorm:"type:varchar(50);not null"`
	ChatReplyStep  string `gorm:"type:varchar(50);not null"`

	LastError       string `gorm:"type:text"`
	CommitID        string `gorm:"type:varchar(255)"`
	NotePath        string `gorm:"type:varchar(500)"`
	ReceiptCommitID string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (ExecutionModel) TableName() string {
	return "execution_states"
}

// ExecutionStore persists execution states in Postgres.
type ExecutionStore struct {
	db *gorm.DB
}

func NewExecutionStore(db *gorm.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// Create performs the insert-if-absent that backs the idempotency lock. The
// conditional is the database's own conflict handling, not a read-then-write.
// An existing but expired record is reclaimed first so a redelivery after the
// TTL window is treated as a fresh event.
func (s *ExecutionStore) Create(ctx context.Context, state *execution.State) (bool, error) {
	model := toModel(state)

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// The existing record only blocks admission while it is live.
	reclaim := s.db.WithContext(ctx).
		Where("event_id = ? AND expires_at <= ?", state.EventID, time.Now().UTC()).
		Delete(&ExecutionModel{})
	if reclaim.Error != nil {
		return false, reclaim.Error
	}
	if reclaim.RowsAffected == 0 {
		return false, nil
	}

	res = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *ExecutionStore) Get(ctx context.Context, eventID string) (*execution.State, error) {
	var model ExecutionModel
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(model), nil
}

func (s *ExecutionStore) Update(ctx context.Context, eventID string, patch execution.Patch) error {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.RepositoryStep != nil {
		updates["repository_step"] = string(*patch.RepositoryStep)
	}
	if patch.EmailStep != nil {
		updates["email_step"] = string(*patch.EmailStep)
	}
	if patch.ChatReplyStep != nil {
		updates["chat_reply_step"] = string(*patch.ChatReplyStep)
	}
	if patch.LastError != nil {
		updates["last_error"] = *patch.LastError
	}
	if patch.CommitID != nil {
		updates["commit_id"] = *patch.CommitID
	}
	if patch.NotePath != nil {
		updates["note_path"] = *patch.NotePath
	}
	if patch.ReceiptCommitID != nil {
		updates["receipt_commit_id"] = *patch.ReceiptCommitID
	}

	res := s.db.WithContext(ctx).Model(&ExecutionModel{}).
		Where("event_id = ?", eventID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *ExecutionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&ExecutionModel{})
	return res.RowsAffected, res.Error
}

// Mappers

func toDomain(m ExecutionModel) *execution.State {
	return &execution.State{
		EventID:         m.EventID,
		Status:          execution.Status(m.Status),
		RepositoryStep:  execution.StepStatus(m.RepositoryStep),
		EmailStep:       execution.StepStatus(m.EmailStep),
		ChatReplyStep:   execution.StepStatus(m.ChatReplyStep),
		LastError:       m.LastError,
		CommitID:        m.CommitID,
		NotePath:        m.NotePath,
		ReceiptCommitID: m.ReceiptCommitID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		ExpiresAt:       m.ExpiresAt,
	}
}

func toModel(s *execution.State) ExecutionModel {
	return ExecutionModel{
		EventID:         s.EventID,
		Status:          string(s.Status),
		RepositoryStep:  string(s.RepositoryStep),
		EmailStep:       string(s.EmailStep),
		ChatReplyStep:   string(s.ChatReplyStep),
		LastError:       s.LastError,
		CommitID:        s.CommitID,
		NotePath:        s.NotePath,
		ReceiptCommitID: s.ReceiptCommitID,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		ExpiresAt:       s.ExpiresAt,
	}
}
