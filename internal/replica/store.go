package replica

import (
	"context"
	"time"
)

// Store is the per-replica storage surface consumed by the sync core.
type Store interface {
	// EnsureTable provisions the table and its lookups. Idempotent.
	EnsureTable(ctx context.Context, table string) error

	// GetChangedSince returns every record when since is nil, otherwise records
	// updated or deleted strictly after since.
	GetChangedSince(ctx context.Context, table string, since *time.Time) ([]*Record, error)

	// GetByID returns nil, nil when the record does not exist.
	GetByID(ctx context.Context, table, id string) (*Record, error)

	// Upsert replaces or inserts the full row keyed by id.
	Upsert(ctx context.Context, table string, r *Record) error
}

// CheckpointStore persists the last successful pass time per collection.
type CheckpointStore interface {
	// GetLastSyncAt returns nil, nil before the first successful pass.
	GetLastSyncAt(ctx context.Context, collection string) (*time.Time, error)
	SetLastSyncAt(ctx context.Context, collection string, at time.Time) error
}
