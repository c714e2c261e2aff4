package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
)

// AuditStore is an in-memory append-only log of conversion attempts.
// It is intended for use in tests and dev environments.
type AuditStore struct {
	mu      sync.Mutex
	records []store.AuditRecord
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) AppendAudit(_ context.Context, rec store.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.LoggedAt.IsZero() {
		rec.LoggedAt = time.Now().UTC()
	}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of all appended rows. Test-only helper.
func (s *AuditStore) Records() []store.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

// PruneOlderThan drops rows logged before cutoff.
func (s *AuditStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var n int64
	for _, r := range s.records {
		if r.LoggedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}
