package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/replisync/internal/replica"
	"golang.org/x/sync/errgroup"
)

const defaultParallelCollections = 4

// PassResult summarizes one completed (or abandoned) pass over a collection.
type PassResult struct {
	Collection   string
	Since        *time.Time
	Checkpoint   time.Time
	LocalChanged int
	CloudChanged int
	Ops          map[OpType]int
	Writes       int
	Decisions    []Decision
	Duration     time.Duration
}

func (r *PassResult) record(d Decision) {
	r.Ops[d.Op]++
	r.Writes += d.Writes()
	r.Decisions = append(r.Decisions, d)
}

// Engine runs sync passes between a local and a cloud replica store.
//
// The engine holds no lock: at most one pass per collection may be in flight,
// which is the caller's responsibility. Passes for different collections are
// independent.
type Engine struct {
	local       replica.Store
	cloud       replica.Store
	checkpoints replica.CheckpointStore
	now         func() time.Time
	parallel    int
}

type EngineOption func(*Engine)

// WithClock overrides the wall clock used for pass timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithParallelCollections bounds how many collections RunAll syncs at once.
func WithParallelCollections(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.parallel = n
		}
	}
}

// NewEngine creates an engine. local and cloud may be the same store when both
// tables live in one database.
func NewEngine(local, cloud replica.Store, checkpoints replica.CheckpointStore, opts ...EngineOption) *Engine {
	e := &Engine{
		local:       local,
		cloud:       cloud,
		checkpoints: checkpoints,
		now:         time.Now,
		parallel:    defaultParallelCollections,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunPass synchronizes one collection. The checkpoint advances to the pass
// start time only when every changed id propagated without error; otherwise
// the error is returned and the same changes are picked up by the next pass.
func (e *Engine) RunPass(ctx context.Context, coll replica.Collection) (*PassResult, error) {
	began := time.Now()
	start := e.now().UTC()
	result := &PassResult{
		Collection: coll.Name,
		Ops:        make(map[OpType]int),
	}
	defer func() {
		result.Duration = time.Since(began)
	}()

	if err := e.local.EnsureTable(ctx, coll.LocalTable); err != nil {
		return result, &StorageError{Collection: coll.Name, Side: SideLocal, Table: coll.LocalTable, Op: "ensure", Err: err}
	}
	if err := e.cloud.EnsureTable(ctx, coll.CloudTable); err != nil {
		return result, &StorageError{Collection: coll.Name, Side: SideCloud, Table: coll.CloudTable, Op: "ensure", Err: err}
	}

	since, err := e.checkpoints.GetLastSyncAt(ctx, coll.Name)
	if err != nil {
		return result, &StorageError{Collection: coll.Name, Table: "sync_state", Op: "checkpoint read", Err: err}
	}
	result.Since = since

	var localChanges, cloudChanges changeSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if localChanges, err = collectSet(gctx, e.local, coll.LocalTable, since); err != nil {
			return &StorageError{Collection: coll.Name, Side: SideLocal, Table: coll.LocalTable, Op: "collect", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if cloudChanges, err = collectSet(gctx, e.cloud, coll.CloudTable, since); err != nil {
			return &StorageError{Collection: coll.Name, Side: SideCloud, Table: coll.CloudTable, Op: "collect", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return result, err
	}
	result.LocalChanged = len(localChanges)
	result.CloudChanged = len(cloudChanges)

	ids := mapset.NewThreadUnsafeSetWithSize[string](len(localChanges) + len(cloudChanges))
	for id := range localChanges {
		ids.Add(id)
	}
	for id := range cloudChanges {
		ids.Add(id)
	}
	ordered := ids.ToSlice()
	slices.Sort(ordered)

	for _, id := range ordered {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		d, err := e.propagateID(ctx, coll, id, localChanges.has(id), cloudChanges.has(id), start)
		if err != nil {
			slog.Error("sync", "collection", coll.Name, "id", id, "error", err)
			return result, err
		}
		result.record(d)
		if d.Op != OpSkip {
			slog.Debug("sync", "collection", coll.Name, "op", d.Op, "id", id, "reason", d.Reason, "version", d.Written.Version)
		}
	}

	if err := e.checkpoints.SetLastSyncAt(ctx, coll.Name, start); err != nil {
		return result, &StorageError{Collection: coll.Name, Table: "sync_state", Op: "checkpoint write", Err: err}
	}
	result.Checkpoint = start

	slog.Info("sync pass",
		"collection", coll.Name,
		"direction", coll.Direction,
		"policy", coll.Policy,
		"localChanged", humanize.Comma(int64(result.LocalChanged)),
		"cloudChanged", humanize.Comma(int64(result.CloudChanged)),
		"writes", humanize.Comma(int64(result.Writes)),
		"merges", result.Ops[OpMerge]+result.Ops[OpMergeTombstone],
		"took", time.Since(began),
	)
	return result, nil
}

// propagateID re-reads the current state of id on both replicas and applies
// the propagation decision.
func (e *Engine) propagateID(ctx context.Context, coll replica.Collection, id string, localChanged, cloudChanged bool, passStart time.Time) (Decision, error) {
	st := step{ID: id, LocalChanged: localChanged, CloudChanged: cloudChanged}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if st.Local, err = e.local.GetByID(gctx, coll.LocalTable, id); err != nil {
			return &StorageError{Collection: coll.Name, Side: SideLocal, Table: coll.LocalTable, Op: "get", ID: id, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if st.Cloud, err = e.cloud.GetByID(gctx, coll.CloudTable, id); err != nil {
			return &StorageError{Collection: coll.Name, Side: SideCloud, Table: coll.CloudTable, Op: "get", ID: id, Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	d, err := decide(coll, st, passStart)
	if err != nil {
		return Decision{}, fmt.Errorf("collection %s: %w", coll.Name, err)
	}
	if err := e.apply(ctx, coll, d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// RunAll runs one pass for each collection. A failing collection does not stop
// the others; the returned error joins every collection's failure.
func (e *Engine) RunAll(ctx context.Context, colls []replica.Collection) ([]*PassResult, error) {
	results := make([]*PassResult, len(colls))
	errs := make([]error, len(colls))

	var g errgroup.Group
	g.SetLimit(e.parallel)
	for i, coll := range colls {
		i, coll := i, coll
		g.Go(func() error {
			results[i], errs[i] = e.RunPass(ctx, coll)
			if errs[i] != nil {
				slog.Error("sync failed", "collection", coll.Name, "error", errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
