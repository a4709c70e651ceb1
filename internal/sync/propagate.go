package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/openmined/replisync/internal/replica"
	"golang.org/x/sync/errgroup"
)

// decide maps one changed id to a Decision without touching storage.
// mergeAt is the timestamp given to merged (non-tombstone) conflict winners.
func decide(coll replica.Collection, st step, mergeAt time.Time) (Decision, error) {
	skip := func(reason string) (Decision, error) {
		return Decision{Op: OpSkip, ID: st.ID, Reason: reason}, nil
	}
	toCloud := func(reason string) (Decision, error) {
		return Decision{Op: OpWriteCloud, ID: st.ID, Reason: reason, Written: st.Local.Clone()}, nil
	}
	toLocal := func(reason string) (Decision, error) {
		return Decision{Op: OpWriteLocal, ID: st.ID, Reason: reason, Written: st.Cloud.Clone()}, nil
	}

	switch coll.Direction {
	case replica.L2C:
		if st.Local == nil {
			return skip("local absent")
		}
		if !st.LocalChanged {
			return skip("local unchanged")
		}
		return toCloud("local changed")

	case replica.C2L:
		if st.Cloud == nil {
			return skip("cloud absent")
		}
		if !st.CloudChanged {
			return skip("cloud unchanged")
		}
		return toLocal("cloud changed")

	case replica.OverwriteLocal:
		if st.Cloud == nil {
			return skip("cloud absent")
		}
		return toLocal("cloud authoritative")

	case replica.OverwriteCloud:
		if st.Local == nil {
			return skip("local absent")
		}
		return toCloud("local authoritative")

	case replica.Both:
		switch {
		case st.Local == nil && st.Cloud == nil:
			return skip("absent on both sides")
		case st.Cloud == nil:
			return toCloud("missing on cloud")
		case st.Local == nil:
			return toLocal("missing on local")
		case st.LocalChanged && !st.CloudChanged:
			return toCloud("local changed")
		case st.CloudChanged && !st.LocalChanged:
			return toLocal("cloud changed")
		case !st.LocalChanged && !st.CloudChanged:
			return skip("unchanged")
		case st.Local.Equal(st.Cloud):
			// keeps rows that are identical after a baseline or reset from being rewritten with a version bump
			return skip("already identical")
		}
		return resolveConflict(coll.Policy, st, mergeAt), nil
	}

	return Decision{}, fmt.Errorf("%w: %s", ErrUnknownDirection, coll.Direction)
}

// resolveConflict handles a record changed on both sides. A tombstone winner is
// written verbatim; any other winner is written with a version past both inputs
// so the two sides end identical.
func resolveConflict(policy replica.ConflictPolicy, st step, mergeAt time.Time) Decision {
	winner := PickWinner(st.Local, st.Cloud, policy)
	if IsDeleted(winner) {
		return Decision{Op: OpMergeTombstone, ID: st.ID, Reason: "conflict, tombstone wins", Written: winner.Clone()}
	}

	merged := winner.Clone()
	merged.Version = max(st.Local.Version, st.Cloud.Version) + 1
	merged.UpdatedAt = latest(mergeAt, st.Local.UpdatedAt, st.Cloud.UpdatedAt)
	return Decision{Op: OpMerge, ID: st.ID, Reason: "conflict", Written: merged}
}

func latest(t time.Time, rest ...time.Time) time.Time {
	for _, r := range rest {
		if r.After(t) {
			t = r
		}
	}
	return t
}

// apply performs the writes of a decision. Both writes of a merge are issued
// together and awaited; they are not transactional across replicas.
func (e *Engine) apply(ctx context.Context, coll replica.Collection, d Decision) error {
	writeLocal := func(ctx context.Context) error {
		if err := e.local.Upsert(ctx, coll.LocalTable, d.Written.Clone()); err != nil {
			return &StorageError{Collection: coll.Name, Side: SideLocal, Table: coll.LocalTable, Op: "upsert", ID: d.ID, Err: err}
		}
		return nil
	}
	writeCloud := func(ctx context.Context) error {
		if err := e.cloud.Upsert(ctx, coll.CloudTable, d.Written.Clone()); err != nil {
			return &StorageError{Collection: coll.Name, Side: SideCloud, Table: coll.CloudTable, Op: "upsert", ID: d.ID, Err: err}
		}
		return nil
	}

	switch d.Op {
	case OpSkip:
		return nil
	case OpWriteLocal:
		return writeLocal(ctx)
	case OpWriteCloud:
		return writeCloud(ctx)
	case OpMerge, OpMergeTombstone:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return writeLocal(gctx) })
		g.Go(func() error { return writeCloud(gctx) })
		return g.Wait()
	}
	return fmt.Errorf("unknown op %q for %s", d.Op, d.ID)
}
