package sync

import "github.com/openmined/replisync/internal/replica"

// PickWinner selects between two concurrently changed versions of the same
// record. a is the local version and b the cloud version. It always returns
// one of its arguments.
//
// Under LatestWins the later updated_at wins, then the higher version, then the
// lexicographically smaller id, so the result does not depend on argument order.
func PickWinner(a, b *replica.Record, policy replica.ConflictPolicy) *replica.Record {
	switch policy {
	case replica.PreferLocal:
		return a
	case replica.PreferCloud:
		return b
	}

	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		if a.UpdatedAt.After(b.UpdatedAt) {
			return a
		}
		return b
	}
	if a.Version != b.Version {
		if a.Version > b.Version {
			return a
		}
		return b
	}
	if a.ID <= b.ID {
		return a
	}
	return b
}

// IsDeleted reports whether r is present and a tombstone.
func IsDeleted(r *replica.Record) bool {
	return r.IsTombstone()
}
