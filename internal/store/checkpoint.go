package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openmined/replisync/internal/replica"
)

func (s *SqliteStore) GetLastSyncAt(ctx context.Context, collection string) (*time.Time, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, "SELECT last_sync_at FROM sync_state WHERE entity = ?", collection)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query checkpoint %s: %w", collection, err)
	}

	at, err := replica.ParseTime(raw)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", collection, err)
	}
	return &at, nil
}

func (s *SqliteStore) SetLastSyncAt(ctx context.Context, collection string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (entity, last_sync_at) VALUES (?, ?)
		 ON CONFLICT(entity) DO UPDATE SET last_sync_at = excluded.last_sync_at`,
		collection, replica.FormatTime(at))
	if err != nil {
		return fmt.Errorf("failed to set checkpoint %s: %w", collection, err)
	}
	return nil
}

// Checkpoints returns every stored checkpoint keyed by collection name.
func (s *SqliteStore) Checkpoints(ctx context.Context) (map[string]time.Time, error) {
	var rows []struct {
		Entity     string `db:"entity"`
		LastSyncAt string `db:"last_sync_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT entity, last_sync_at FROM sync_state"); err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}

	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		at, err := replica.ParseTime(row.LastSyncAt)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", row.Entity, err)
		}
		out[row.Entity] = at
	}
	return out, nil
}

// ResetCheckpoint removes the checkpoint so the next pass treats every record as changed.
func (s *SqliteStore) ResetCheckpoint(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sync_state WHERE entity = ?", collection); err != nil {
		return fmt.Errorf("failed to reset checkpoint %s: %w", collection, err)
	}
	return nil
}
