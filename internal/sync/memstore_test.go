package sync

import (
	"context"
	"sync"
	"time"

	"github.com/openmined/replisync/internal/replica"
)

// memStore is an in-memory replica.Store and replica.CheckpointStore with fault injection.
type memStore struct {
	mu          sync.Mutex
	tables      map[string]map[string]*replica.Record
	checkpoints map[string]time.Time
	upserts     int

	failUpsert  func(table, id string) error
	failGet     func(table, id string) error
	failCollect func(table string) error
}

func newMemStore() *memStore {
	return &memStore{
		tables:      make(map[string]map[string]*replica.Record),
		checkpoints: make(map[string]time.Time),
	}
}

func (m *memStore) EnsureTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = make(map[string]*replica.Record)
	}
	return nil
}

func (m *memStore) GetChangedSince(_ context.Context, table string, since *time.Time) ([]*replica.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCollect != nil {
		if err := m.failCollect(table); err != nil {
			return nil, err
		}
	}
	var out []*replica.Record
	for _, r := range m.tables[table] {
		if since == nil || r.ChangedSince(*since) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, table, id string) (*replica.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		if err := m.failGet(table, id); err != nil {
			return nil, err
		}
	}
	return m.tables[table][id].Clone(), nil
}

func (m *memStore) Upsert(_ context.Context, table string, r *replica.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		if err := m.failUpsert(table, r.ID); err != nil {
			return err
		}
	}
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = make(map[string]*replica.Record)
	}
	m.tables[table][r.ID] = r.Clone()
	m.upserts++
	return nil
}

func (m *memStore) GetLastSyncAt(_ context.Context, collection string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.checkpoints[collection]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (m *memStore) SetLastSyncAt(_ context.Context, collection string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[collection] = at
	return nil
}

// put writes a record directly, as an external writer would.
func (m *memStore) put(table string, r *replica.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = make(map[string]*replica.Record)
	}
	m.tables[table][r.ID] = r.Clone()
}

func (m *memStore) get(table, id string) *replica.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table][id].Clone()
}

func (m *memStore) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// fakeClock returns a fixed time that tests advance explicitly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
