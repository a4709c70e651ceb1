package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmined/replisync/internal/replica"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	localTable = "local_items"
	cloudTable = "cloud_items"
)

func collection(direction replica.Direction, policy replica.ConflictPolicy) replica.Collection {
	return replica.Collection{
		Name:       "items",
		LocalTable: localTable,
		CloudTable: cloudTable,
		Direction:  direction,
		Policy:     policy,
	}
}

type harness struct {
	store  *memStore
	clock  *fakeClock
	engine *Engine
}

func newHarness() *harness {
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	return &harness{
		store:  store,
		clock:  clock,
		engine: NewEngine(store, store, store, WithClock(clock.Now)),
	}
}

// edit simulates an external write: bumps version and stamps the current clock.
func (h *harness) edit(table string, r *replica.Record) *replica.Record {
	r = r.Clone()
	r.UpdatedAt = h.clock.Advance(time.Second)
	r.Version++
	h.store.put(table, r)
	return r
}

func (h *harness) seed(table, id string, qty int64) *replica.Record {
	r := &replica.Record{ID: id, Name: "item-" + id, Quantity: qty, UpdatedAt: h.clock.Advance(time.Second), Version: 1}
	h.store.put(table, r)
	return r
}

func (h *harness) pass(t *testing.T, coll replica.Collection) *PassResult {
	t.Helper()
	h.clock.Advance(time.Minute)
	res, err := h.engine.RunPass(context.Background(), coll)
	require.NoError(t, err)
	return res
}

func TestRunPass_FirstPassBaselinesAndConverges(t *testing.T) {
	h := newHarness()
	coll := collection(replica.Both, replica.LatestWins)
	h.seed(localTable, "apples", 5)
	h.seed(localTable, "bananas", 12)
	h.seed(cloudTable, "carrots", 9)

	res := h.pass(t, coll)
	assert.Nil(t, res.Since)
	assert.Equal(t, 2, res.LocalChanged)
	assert.Equal(t, 1, res.CloudChanged)
	assert.Equal(t, 3, res.Writes)

	for _, id := range []string{"apples", "bananas", "carrots"} {
		l, c := h.store.get(localTable, id), h.store.get(cloudTable, id)
		require.NotNil(t, l, id)
		assert.True(t, l.Equal(c), "%s: local %s cloud %s", id, l, c)
	}

	cp, err := h.store.GetLastSyncAt(context.Background(), "items")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, res.Checkpoint, *cp)
}

func TestRunPass_Idempotent(t *testing.T) {
	h := newHarness()
	coll := collection(replica.Both, replica.LatestWins)
	x := h.seed(localTable, "x", 1)
	h.pass(t, coll)

	// concurrent edits produce a merge in the next pass
	h.edit(localTable, x)
	h.edit(cloudTable, x)
	res := h.pass(t, coll)
	assert.Equal(t, 1, res.Ops[OpMerge])

	before := h.store.writes()
	res = h.pass(t, coll)
	assert.Zero(t, res.LocalChanged)
	assert.Zero(t, res.CloudChanged)
	assert.Zero(t, res.Writes)
	assert.Equal(t, before, h.store.writes())
}

func TestRunPass_ConflictScenario(t *testing.T) {
	h := newHarness()
	coll := collection(replica.Both, replica.LatestWins)

	t1 := h.clock.Advance(time.Second)
	local := &replica.Record{ID: "X", Name: "local name", Quantity: 1, UpdatedAt: t1, Version: 1}
	t2 := h.clock.Advance(time.Second)
	cloud := &replica.Record{ID: "X", Name: "cloud name", Quantity: 2, UpdatedAt: t2, Version: 1}
	h.store.put(localTable, local)
	h.store.put(cloudTable, cloud)

	now := h.clock.Advance(time.Minute)
	res, err := h.engine.RunPass(context.Background(), coll)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ops[OpMerge])

	for _, table := range []string{localTable, cloudTable} {
		got := h.store.get(table, "X")
		assert.EqualValues(t, 2, got.Version, table)
		assert.Equal(t, now, got.UpdatedAt, table)
		assert.Equal(t, "cloud name", got.Name, table)
		assert.EqualValues(t, 2, got.Quantity, table)
	}
}

func TestRunPass_MergeMonotonicity(t *testing.T) {
	h := newHarness()
	coll := collection(replica.Both, replica.PreferLocal)
	x := h.seed(localTable, "x", 1)
	h.pass(t, coll)

	l := x
	for i := 0; i < 3; i++ {
		l = h.edit(localTable, l)
	}
	c := h.edit(cloudTable, x)
	h.pass(t, coll)

	want := max(l.Version, c.Version) + 1
	assert.EqualValues(t, want, h.store.get(localTable, "x").Version)
	assert.EqualValues(t, want, h.store.get(cloudTable, "x").Version)
	assert.Greater(t, want, l.Version)
}

func TestRunPass_L2CNoThrash(t *testing.T) {
	h := newHarness()
	coll := collection(replica.L2C, replica.LatestWins)
	x := h.seed(localTable, "x", 1)
	h.pass(t, coll)

	// cloud diverges while local stays unchanged
	cloudEdit := x.Clone()
	cloudEdit.Quantity = 99
	cloudEdit = h.edit(cloudTable, cloudEdit)

	res := h.pass(t, coll)
	assert.Equal(t, 1, res.Ops[OpSkip])
	assert.Zero(t, res.Writes)
	assert.True(t, cloudEdit.Equal(h.store.get(cloudTable, "x")))
	assert.EqualValues(t, 1, h.store.get(localTable, "x").Quantity)
}

func TestRunPass_C2LCopiesCloudChanges(t *testing.T) {
	h := newHarness()
	coll := collection(replica.C2L, replica.LatestWins)
	h.seed(cloudTable, "y", 3)
	h.seed(localTable, "z", 4)

	res := h.pass(t, coll)
	assert.Equal(t, 1, res.Ops[OpWriteLocal])
	assert.NotNil(t, h.store.get(localTable, "y"))
	assert.Nil(t, h.store.get(cloudTable, "z"))
}

func TestRunPass_OverwriteDirections(t *testing.T) {
	t.Run("overwrite_local", func(t *testing.T) {
		h := newHarness()
		coll := collection(replica.OverwriteLocal, replica.LatestWins)
		x := h.seed(cloudTable, "x", 1)
		h.pass(t, coll)

		// local edit is replaced by the authoritative cloud copy
		h.edit(localTable, x)
		h.pass(t, coll)
		assert.True(t, x.Equal(h.store.get(localTable, "x")))
	})

	t.Run("overwrite_cloud", func(t *testing.T) {
		h := newHarness()
		coll := collection(replica.OverwriteCloud, replica.LatestWins)
		x := h.seed(localTable, "x", 1)
		h.pass(t, coll)

		h.edit(cloudTable, x)
		h.pass(t, coll)
		assert.True(t, x.Equal(h.store.get(cloudTable, "x")))
	})
}

func TestRunPass_TombstonePropagation(t *testing.T) {
	h := newHarness()
	coll := collection(replica.Both, replica.LatestWins)
	x := h.seed(localTable, "x", 1)
	h.pass(t, coll)

	deleted := x.Clone()
	at := h.clock.Advance(time.Second)
	deleted.DeletedAt = &at
	deleted = h.edit(localTable, deleted)

	h.pass(t, coll)
	got := h.store.get(cloudTable, "x")
	require.NotNil(t, got)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, *deleted.DeletedAt, *got.DeletedAt)
	assert.Equal(t, deleted.Version, got.Version)
}

func TestRunPass_StorageErrorDoesNotAdvanceCheckpoint(t *testing.T) {
	h := newHarness()
	coll := collection(replica.Both, replica.LatestWins)
	h.seed(localTable, "a", 1)
	h.seed(localTable, "b", 1)
	h.pass(t, coll)
	cp, _ := h.store.GetLastSyncAt(context.Background(), "items")
	first := *cp

	h.seed(localTable, "c", 1)
	boom := errors.New("disk full")
	h.store.failUpsert = func(table, id string) error {
		if table == cloudTable && id == "c" {
			return boom
		}
		return nil
	}

	h.clock.Advance(time.Minute)
	_, err := h.engine.RunPass(context.Background(), coll)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, SideCloud, serr.Side)
	assert.Equal(t, "c", serr.ID)

	cp, _ = h.store.GetLastSyncAt(context.Background(), "items")
	assert.Equal(t, first, *cp)

	// the next pass redelivers the pending change
	h.store.failUpsert = nil
	res := h.pass(t, coll)
	assert.Equal(t, 1, res.Ops[OpWriteCloud])
	assert.NotNil(t, h.store.get(cloudTable, "c"))
}

func TestRunPass_CollectErrorAborts(t *testing.T) {
	h := newHarness()
	coll := collection(replica.Both, replica.LatestWins)
	h.seed(localTable, "a", 1)
	h.store.failCollect = func(table string) error {
		if table == cloudTable {
			return errors.New("unreachable")
		}
		return nil
	}

	_, err := h.engine.RunPass(context.Background(), coll)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "collect", serr.Op)
	assert.Nil(t, h.store.get(cloudTable, "a"))

	cp, _ := h.store.GetLastSyncAt(context.Background(), "items")
	assert.Nil(t, cp)
}

func TestRunPass_ChangeLandingMidPassIsNotLost(t *testing.T) {
	h := newHarness()
	coll := collection(replica.L2C, replica.LatestWins)
	x := h.seed(localTable, "x", 1)
	h.seed(localTable, "y", 1)

	// edit "y" while the pass is reading "x"; its timestamp is after the pass start
	var late *replica.Record
	h.store.failGet = func(table, id string) error {
		if id == "x" && late == nil {
			y := h.store.tables[localTable]["y"].Clone()
			y.Quantity = 50
			y.Version++
			y.UpdatedAt = h.clock.now.Add(time.Second)
			h.store.tables[localTable]["y"] = y
			late = y
		}
		return nil
	}
	h.pass(t, coll)
	h.store.failGet = nil
	require.NotNil(t, late)
	assert.True(t, x.Equal(h.store.get(cloudTable, "x")))

	h.clock.Advance(time.Minute)
	res := h.pass(t, coll)
	assert.Equal(t, 1, res.LocalChanged)
	assert.EqualValues(t, 50, h.store.get(cloudTable, "y").Quantity)
}

func TestRunAll_CollectionsAreIndependent(t *testing.T) {
	h := newHarness()
	good := collection(replica.Both, replica.LatestWins)
	bad := replica.Collection{Name: "broken", LocalTable: "local_broken", CloudTable: "cloud_broken", Direction: replica.Both}
	h.seed(localTable, "a", 1)
	h.seed("local_broken", "b", 1)
	h.store.failUpsert = func(table, id string) error {
		if table == "cloud_broken" {
			return errors.New("read-only")
		}
		return nil
	}

	h.clock.Advance(time.Minute)
	results, err := h.engine.RunAll(context.Background(), []replica.Collection{good, bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Writes)

	ctx := context.Background()
	cp, _ := h.store.GetLastSyncAt(ctx, "items")
	assert.NotNil(t, cp)
	cp, _ = h.store.GetLastSyncAt(ctx, "broken")
	assert.Nil(t, cp)
}

func TestStorageError_Message(t *testing.T) {
	err := &StorageError{Collection: "items", Side: SideLocal, Table: localTable, Op: "get", ID: "x", Err: errors.New("boom")}
	assert.Equal(t, "collection items: get local_items/x (local): boom", err.Error())
	err = &StorageError{Collection: "items", Table: "sync_state", Op: "checkpoint read", Err: errors.New("boom")}
	assert.Equal(t, "collection items: checkpoint read sync_state: boom", err.Error())
}
