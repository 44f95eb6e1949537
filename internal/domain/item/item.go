package item

import (
	"context"
	"time"
)

// Item is one row of the knowledge-item index: the searchable metadata of a
// slug-named note, extracted from its front matter. The repository stays the
// source of truth; the index exists so lookups and cross-linking never have
// to scan the repository.
type Item struct {
	ID        int64
	NoteID    string // sb-xxxxxxx
	Title     string
	Type      string // idea, decision, project
	Path      string
	Tags      []string
	Status    string
	UpdatedAt time.Time
}

// SyncMarker records the last repository commit the index was built from.
type SyncMarker struct {
	CommitID string
	SyncedAt time.Time
}

// Repository is the persistence port for the item index.
type Repository interface {
	// Upsert inserts or replaces the row keyed by NoteID.
	Upsert(ctx context.Context, it *Item) error

	// DeleteByNoteID removes the row; deleting an absent row is not an error.
	DeleteByNoteID(ctx context.Context, noteID string) error

	// GetByNoteID returns nil when the note id is not indexed.
	GetByNoteID(ctx context.Context, noteID string) (*Item, error)

	// List returns every indexed item.
	List(ctx context.Context) ([]*Item, error)

	// MostRecent returns the newest indexed item, nil when the index is empty.
	MostRecent(ctx context.Context) (*Item, error)

	Count(ctx context.Context) (int64, error)

	// GetMarker returns nil before the first sync.
	GetMarker(ctx context.Context) (*SyncMarker, error)
	SetMarker(ctx context.Context, commitID string) error
}
