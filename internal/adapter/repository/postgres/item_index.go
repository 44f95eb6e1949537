package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loretree/loretree/internal/domain/item"
	"github.com/loretree/loretree/pkg/snowflake"
)

// ItemModel is the database DTO with Gorm tags.
type ItemModel struct {
	ID     int64  `gorm:"primaryKey"`
	NoteID string `gorm:"uniqueIndex;type:varchar(20);not null"`
	Title  string `gorm:"type:varchar(500);not null"`
	Type   string `gorm:"type:varchar(20);not null"`
	Path   string `gorm:"type:varchar(500);not null"`
	Tags   string `gorm:"type:text"`
	Status string `gorm:"type:varchar(50)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ItemModel) TableName() string {
	return "knowledge_items"
}

// SyncMarkerModel is a single-row table holding the last synced commit.
type SyncMarkerModel struct {
	ID       int64  `gorm:"primaryKey"`
	CommitID string `gorm:"type:varchar(255);not null"`
	SyncedAt time.Time
}

func (SyncMarkerModel) TableName() string {
	return "sync_markers"
}

const syncMarkerRowID = 1

// ItemIndex persists the knowledge-item index in Postgres.
type ItemIndex struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewItemIndex(db *gorm.DB, node *snowflake.Node) *ItemIndex {
	return &ItemIndex{db: db, node: node}
}

func (r *ItemIndex) Upsert(ctx context.Context, it *item.Item) error {
	model := r.toItemModel(it)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "note_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "type", "path", "tags", "status", "updated_at"}),
	}).Create(model).Error
}

func (r *ItemIndex) DeleteByNoteID(ctx context.Context, noteID string) error {
	return r.db.WithContext(ctx).Where("note_id = ?", noteID).Delete(&ItemModel{}).Error
}

func (r *ItemIndex) GetByNoteID(ctx context.Context, noteID string) (*item.Item, error) {
	var model ItemModel
	err := r.db.WithContext(ctx).Where("note_id = ?", noteID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toItemDomain(&model), nil
}

func (r *ItemIndex) List(ctx context.Context) ([]*item.Item, error) {
	var models []ItemModel
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]*item.Item, 0, len(models))
	for i := range models {
		items = append(items, toItemDomain(&models[i]))
	}
	return items, nil
}

func (r *ItemIndex) MostRecent(ctx context.Context) (*item.Item, error) {
	var model ItemModel
	err := r.db.WithContext(ctx).Order("updated_at DESC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toItemDomain(&model), nil
}

func (r *ItemIndex) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ItemModel{}).Count(&count).Error
	return count, err
}

func (r *ItemIndex) GetMarker(ctx context.Context) (*item.SyncMarker, error) {
	var model SyncMarkerModel
	err := r.db.WithContext(ctx).Where("id = ?", syncMarkerRowID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item.SyncMarker{CommitID: model.CommitID, SyncedAt: model.SyncedAt}, nil
}

func (r *ItemIndex) SetMarker(ctx context.Context, commitID string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"commit_id", "synced_at"}),
	}).Create(&SyncMarkerModel{
		ID:       syncMarkerRowID,
		CommitID: commitID,
		SyncedAt: time.Now().UTC(),
	}).Error
}

func (r *ItemIndex) toItemModel(it *item.Item) *ItemModel {
	id := it.ID
	if id == 0 {
		id = r.node.GenerateID()
	}
	return &ItemModel{
		ID:     id,
		NoteID: it.NoteID,
		Title:  it.Title,
		Type:   it.Type,
		Path:   it.Path,
		Tags:   strings.Join(it.Tags, ","),
		Status: it.Status,
	}
}

func toItemDomain(model *ItemModel) *item.Item {
	var tags []string
	if model.Tags != "" {
		tags = strings.Split(model.Tags, ",")
	}
	return &item.Item{
		ID:        model.ID,
		NoteID:    model.NoteID,
		Title:     model.Title,
		Type:      model.Type,
		Path:      model.Path,
		Tags:      tags,
		Status:    model.Status,
		UpdatedAt: model.UpdatedAt,
	}
}
