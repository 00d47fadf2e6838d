package entry

import "context"

// Repository defines the interface for entry persistence.
type Repository interface {
	// Get retrieves an entry by ID.
	Get(ctx context.Context, id string) (*Entry, error)

	// List retrieves all entries, oldest first.
	List(ctx context.Context) ([]*Entry, error)

	// Create stores a new entry.
	// Returns ErrDuplicate if an entry already publishes to the same sensor.
	Create(ctx context.Context, e *Entry) error

	// Delete removes an entry by ID.
	// Returns ErrEntryNotFound if the entry doesn't exist.
	Delete(ctx context.Context, id string) error
}
