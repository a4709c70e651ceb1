package sync

import (
	"context"
	"time"

	"github.com/openmined/replisync/internal/replica"
)

// Collect returns the records of table changed after since: updated strictly
// after it, or tombstoned strictly after it. A nil since returns every record.
func Collect(ctx context.Context, store replica.Store, table string, since *time.Time) ([]*replica.Record, error) {
	return store.GetChangedSince(ctx, table, since)
}

// changeSet indexes a replica's changed records by id.
type changeSet map[string]*replica.Record

func (c changeSet) has(id string) bool {
	_, ok := c[id]
	return ok
}

func collectSet(ctx context.Context, store replica.Store, table string, since *time.Time) (changeSet, error) {
	records, err := Collect(ctx, store, table, since)
	if err != nil {
		return nil, err
	}

	changes := make(changeSet, len(records))
	for _, r := range records {
		changes[r.ID] = r
	}
	return changes, nil
}
