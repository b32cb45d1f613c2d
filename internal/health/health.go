// Package health tracks per-system running success/failure counters for the
// search coordinator, matching the HealthRecord collaborator contract.
package health

import (
	"context"
	"sync"
	"time"
)

// Record is one system's running health counters.
type Record struct {
	SystemID        string
	Successes       int64
	Failures        int64
	TotalDurationMs int64
	LastSuccess     *time.Time
	LastFailure     *time.Time
	LastErrorMsg    string
}

// Store persists Records keyed by systemID, e.g. *cachestore.HealthCache.
// Kept narrow so this package doesn't import internal/cachestore directly.
type Store interface {
	Get(ctx context.Context, systemID string, out any) (bool, error)
	Set(ctx context.Context, systemID string, value any) error
}

// Tracker guards a map of per-system Records behind a RWMutex; reads and
// writes are both expected under concurrent fan-out. When constructed with a
// Store, every update is also persisted, and a Get that misses the in-memory
// map falls back to the Store.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
	store   Store
}

// New constructs an empty Tracker with no backing store.
func New() *Tracker {
	return &Tracker{records: map[string]*Record{}}
}

// NewWithStore constructs an empty Tracker whose records are also written
// through to store on every update.
func NewWithStore(store Store) *Tracker {
	return &Tracker{records: map[string]*Record{}, store: store}
}

func (t *Tracker) persist(systemID string, r Record) {
	if t.store == nil {
		return
	}
	_ = t.store.Set(context.Background(), systemID, r)
}

func (t *Tracker) recordFor(systemID string) *Record {
	r, ok := t.records[systemID]
	if !ok {
		r = &Record{SystemID: systemID}
		t.records[systemID] = r
	}
	return r
}

// RecordSuccess increments the success counter and stamps LastSuccess.
func (t *Tracker) RecordSuccess(systemID string, elapsed time.Duration, at time.Time) {
	t.mu.Lock()
	r := t.recordFor(systemID)
	r.Successes++
	r.TotalDurationMs += elapsed.Milliseconds()
	r.LastSuccess = &at
	snapshot := *r
	t.mu.Unlock()

	t.persist(systemID, snapshot)
}

// RecordFailure increments the failure counter, stamps LastFailure, and
// records the error message.
func (t *Tracker) RecordFailure(systemID string, elapsed time.Duration, at time.Time, errMsg string) {
	t.mu.Lock()
	r := t.recordFor(systemID)
	r.Failures++
	r.TotalDurationMs += elapsed.Milliseconds()
	r.LastFailure = &at
	r.LastErrorMsg = errMsg
	snapshot := *r
	t.mu.Unlock()

	t.persist(systemID, snapshot)
}

// Get returns a copy of the record for systemID. If it isn't held in memory
// and a Store is configured, Get falls back to it; otherwise it returns the
// zero Record with SystemID set.
func (t *Tracker) Get(systemID string) Record {
	t.mu.RLock()
	r, ok := t.records[systemID]
	t.mu.RUnlock()
	if ok {
		return *r
	}

	if t.store != nil {
		var rec Record
		if hit, err := t.store.Get(context.Background(), systemID, &rec); err == nil && hit {
			return rec
		}
	}
	return Record{SystemID: systemID}
}

// All returns a copy of every tracked system's record, unordered.
func (t *Tracker) All() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	return out
}
