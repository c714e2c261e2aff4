package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

// LeadStore keeps leads in memory. It is intended for tests and dev.
type LeadStore struct {
	mu    sync.RWMutex
	leads map[string]types.Lead
	order []string
}

func NewLeadStore() *LeadStore {
	return &LeadStore{leads: make(map[string]types.Lead)}
}

func (s *LeadStore) CreateLead(_ context.Context, l types.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	if _, exists := s.leads[l.CorrelationID]; !exists {
		s.order = append(s.order, l.CorrelationID)
	}
	s.leads[l.CorrelationID] = l
	return nil
}

func (s *LeadStore) FindLead(_ context.Context, q store.LeadQuery) (types.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(q)
}

func (s *LeadStore) findLocked(q store.LeadQuery) (types.Lead, error) {
	if q.CorrelationID != "" {
		if l, ok := s.leads[q.CorrelationID]; ok {
			return l, nil
		}
		return types.Lead{}, apperrors.NewNotFoundError("lead", q.CorrelationID)
	}
	// newest lead wins for repeat applicants
	for i := len(s.order) - 1; i >= 0; i-- {
		l := s.leads[s.order[i]]
		if strings.EqualFold(l.Email, q.Email) {
			return l, nil
		}
	}
	return types.Lead{}, apperrors.NewNotFoundError("lead", q.Email)
}

func (s *LeadStore) MarkPaid(_ context.Context, correlationID string, p types.Payment) (types.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.findLocked(store.LeadQuery{CorrelationID: correlationID})
	if err != nil {
		return types.Lead{}, err
	}
	applyPayment(&l, p)
	s.leads[correlationID] = l
	return l, nil
}

func applyPayment(l *types.Lead, p types.Payment) {
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	l.Status = types.LeadPaid
	l.PaymentReference = p.Reference
	l.AmountPaid = p.Amount
	if p.Currency != "" {
		l.Currency = p.Currency
	}
	l.PaidAt = &paidAt
	l.UpdatedAt = time.Now().UTC()
}
