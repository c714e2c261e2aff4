package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
)

// DefaultCorrelationTTL is how long a checkout entry stays readable.
const DefaultCorrelationTTL = 30 * time.Minute

// CorrelationStore is a process-local map of checkout entries with lazy
// expiry. Entries are lost on restart.
type CorrelationStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]storedEntry
}

type storedEntry struct {
	entry    store.CheckoutEntry
	storedAt time.Time
}

// NewCorrelationStore returns a store whose entries expire after ttl.
// A non-positive ttl selects DefaultCorrelationTTL.
func NewCorrelationStore(ttl time.Duration) *CorrelationStore {
	if ttl <= 0 {
		ttl = DefaultCorrelationTTL
	}
	return &CorrelationStore{
		ttl:  ttl,
		now:  func() time.Time { return time.Now().UTC() },
		data: make(map[string]storedEntry),
	}
}

// WithClock replaces the time source. Test helper.
func (s *CorrelationStore) WithClock(now func() time.Time) *CorrelationStore {
	s.now = now
	return s
}

// Put overwrites any entry for id, stamps the current time and sweeps
// expired entries.
func (s *CorrelationStore) Put(id string, e store.CheckoutEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	s.sweepLocked(now.Add(-s.ttl))
	s.data[id] = storedEntry{entry: e, storedAt: now}
}

// Get returns the entry for id unless it is older than the TTL, in which case
// it is evicted and reported absent.
func (s *CorrelationStore) Get(id string) (store.CheckoutEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	se, ok := s.data[id]
	if !ok {
		return store.CheckoutEntry{}, false
	}
	if s.now().Sub(se.storedAt) > s.ttl {
		delete(s.data, id)
		return store.CheckoutEntry{}, false
	}
	return se.entry, true
}

func (s *CorrelationStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}

// Len reports the number of physically present entries, expired or not.
func (s *CorrelationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// PruneOlderThan evicts entries stored before cutoff.
func (s *CorrelationStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(cutoff), nil
}

func (s *CorrelationStore) sweepLocked(cutoff time.Time) int64 {
	var n int64
	for id, se := range s.data {
		if se.storedAt.Before(cutoff) {
			delete(s.data, id)
			n++
		}
	}
	return n
}
