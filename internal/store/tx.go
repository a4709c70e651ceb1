package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/replisync/internal/replica"
)

// Tx is a write transaction over the store's tables.
type Tx struct {
	tx *sqlx.Tx
}

// InTx runs fn inside a transaction, committing on success and rolling back on error.
func (s *SqliteStore) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Tx) EnsureTable(ctx context.Context, table string) error {
	if !ValidTableName(table) {
		return fmt.Errorf("%w %q", ErrInvalidTable, table)
	}
	if _, err := t.tx.ExecContext(ctx, fmt.Sprintf(tableSchema, table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

func (t *Tx) GetByID(ctx context.Context, table, id string) (*replica.Record, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("%w %q", ErrInvalidTable, table)
	}
	var row dbRecord
	err := t.tx.GetContext(ctx, &row, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query %s.%s: %w", table, id, err)
	}
	return row.toRecord()
}

func (t *Tx) Upsert(ctx context.Context, table string, r *replica.Record) error {
	return upsert(ctx, t.tx, table, r)
}

// HardDelete physically removes a row. The sync core never calls this.
func (t *Tx) HardDelete(ctx context.Context, table, id string) error {
	if !ValidTableName(table) {
		return fmt.Errorf("%w %q", ErrInvalidTable, table)
	}
	if _, err := t.tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return fmt.Errorf("failed to delete %s.%s: %w", table, id, err)
	}
	return nil
}

// PurgeTombstones hard-deletes tombstones whose deleted_at is before cutoff and
// returns how many rows were removed.
func (s *SqliteStore) PurgeTombstones(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	if !ValidTableName(table) {
		return 0, fmt.Errorf("%w %q", ErrInvalidTable, table)
	}

	var purged int64
	err := s.InTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE deleted_at IS NOT NULL AND deleted_at < ?", table),
			replica.FormatTime(cutoff))
		if err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
		purged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}
