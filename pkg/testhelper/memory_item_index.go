package testhelper

import (
	"context"
	"sync"
	"time"

	"github.com/loretree/loretree/internal/domain/item"
)

// MemoryItemIndex is an in-memory implementation of item.Repository.
type MemoryItemIndex struct {
	mu     sync.Mutex
	items  map[string]*item.Item
	marker *item.SyncMarker
	nextID int64
}

func NewMemoryItemIndex() *MemoryItemIndex {
	return &MemoryItemIndex{items: make(map[string]*item.Item)}
}

func (r *MemoryItemIndex) Upsert(ctx context.Context, it *item.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *it
	if existing, ok := r.items[it.NoteID]; ok {
		clone.ID = existing.ID
	} else {
		r.nextID++
		clone.ID = r.nextID
	}
	clone.UpdatedAt = time.Now().UTC()
	r.items[it.NoteID] = &clone
	return nil
}

func (r *MemoryItemIndex) DeleteByNoteID(ctx context.Context, noteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, noteID)
	return nil
}

func (r *MemoryItemIndex) GetByNoteID(ctx context.Context, noteID string) (*item.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[noteID]
	if !ok {
		return nil, nil
	}
	clone := *it
	return &clone, nil
}

func (r *MemoryItemIndex) List(ctx context.Context) ([]*item.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*item.Item, 0, len(r.items))
	for _, it := range r.items {
		clone := *it
		out = append(out, &clone)
	}
	return out, nil
}

func (r *MemoryItemIndex) MostRecent(ctx context.Context) (*item.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *item.Item
	for _, it := range r.items {
		if newest == nil || it.UpdatedAt.After(newest.UpdatedAt) {
			newest = it
		}
	}
	if newest == nil {
		return nil, nil
	}
	clone := *newest
	return &clone, nil
}

func (r *MemoryItemIndex) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}

func (r *MemoryItemIndex) GetMarker(ctx context.Context) (*item.SyncMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.marker == nil {
		return nil, nil
	}
	clone := *r.marker
	return &clone, nil
}

func (r *MemoryItemIndex) SetMarker(ctx context.Context, commitID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marker = &item.SyncMarker{CommitID: commitID, SyncedAt: time.Now().UTC()}
	return nil
}
