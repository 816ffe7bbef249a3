package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the transactional outbox. Entries are inserted alongside the
// state change they announce and relayed to the stream afterwards.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns up to limit pending entries, oldest first.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// CountPending returns the number of entries waiting to be relayed.
	CountPending(ctx context.Context) (int64, error)

	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed counts a failed relay; the entry is given up on once it
	// exhausts its retries.
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
