// Package seed writes demo data and performs manual edits on replica tables.
// Edits follow the record write rule: every mutation bumps version and stamps
// updated_at with the write time.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/replisync/internal/replica"
	"github.com/openmined/replisync/internal/store"
)

var ErrRecordNotFound = errors.New("record not found")

type demoItem struct {
	name     string
	quantity int64
	cloud    bool
}

var demoItems = []demoItem{
	{"Apples", 5, false},
	{"Bananas", 12, false},
	{"Carrots", 9, true},
}

// NewRecord returns a fresh version-1 record with a random id.
func NewRecord(name string, quantity int64, now time.Time) *replica.Record {
	return &replica.Record{
		ID:        uuid.NewString(),
		Name:      name,
		Quantity:  quantity,
		UpdatedAt: now.UTC(),
		Version:   1,
	}
}

// Demo creates both tables and inserts two items on the local side and one on
// the cloud side. It returns the inserted records.
func Demo(ctx context.Context, local, cloud *store.SqliteStore, localTable, cloudTable string, now time.Time) ([]*replica.Record, error) {
	var localRecs, cloudRecs []*replica.Record
	for _, it := range demoItems {
		r := NewRecord(it.name, it.quantity, now)
		if it.cloud {
			cloudRecs = append(cloudRecs, r)
		} else {
			localRecs = append(localRecs, r)
		}
	}

	if err := insert(ctx, local, localTable, localRecs); err != nil {
		return nil, err
	}
	if err := insert(ctx, cloud, cloudTable, cloudRecs); err != nil {
		return nil, err
	}

	slog.Info("seeded demo data", "local", localTable, "localCount", len(localRecs), "cloud", cloudTable, "cloudCount", len(cloudRecs))
	return append(localRecs, cloudRecs...), nil
}

func insert(ctx context.Context, s *store.SqliteStore, table string, recs []*replica.Record) error {
	return s.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.EnsureTable(ctx, table); err != nil {
			return err
		}
		for _, r := range recs {
			if err := tx.Upsert(ctx, table, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateQuantity sets the quantity of an existing record.
func UpdateQuantity(ctx context.Context, s *store.SqliteStore, table, id string, quantity int64, now time.Time) (*replica.Record, error) {
	return mutate(ctx, s, table, id, now, func(r *replica.Record) {
		r.Quantity = quantity
	})
}

// SoftDelete marks an existing record as a tombstone.
func SoftDelete(ctx context.Context, s *store.SqliteStore, table, id string, now time.Time) (*replica.Record, error) {
	return mutate(ctx, s, table, id, now, func(r *replica.Record) {
		at := now.UTC()
		r.DeletedAt = &at
	})
}

func mutate(ctx context.Context, s *store.SqliteStore, table, id string, now time.Time, fn func(*replica.Record)) (*replica.Record, error) {
	var out *replica.Record
	err := s.InTx(ctx, func(tx *store.Tx) error {
		r, err := tx.GetByID(ctx, table, id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: %s in %s", ErrRecordNotFound, id, table)
		}

		fn(r)
		r.UpdatedAt = now.UTC()
		r.Version++
		if err := tx.Upsert(ctx, table, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
