package execution

import "context"

// Store persists execution states keyed by event id.
type Store interface {
	// Create inserts the state only if no live record exists for its event id.
	// It returns false, without error, when a non-expired record is already
	// present; this is the duplicate-delivery signal, not a fault. The insert
	// must be atomic at the storage layer, never read-then-write.
	Create(ctx context.Context, state *State) (bool, error)

	// Get returns the state for the event id, or nil when absent.
	Get(ctx context.Context, eventID string) (*State, error)

	// Update merges the patch into the stored record and refreshes updated_at.
	Update(ctx context.Context, eventID string, patch Patch) error

	// DeleteExpired removes records whose expires_at has passed, returning the
	// number deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}
