package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

type LeadService struct {
	store store.LeadStore
	now   func() time.Time
}

func NewLeadService(s store.LeadStore) *LeadService {
	return &LeadService{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores l as a PENDING lead. Submitting again for a pending lead
// refreshes its details and keeps its creation time; a paid lead is never
// reopened.
func (s *LeadService) Create(ctx context.Context, l types.Lead) (types.Lead, error) {
	l.CorrelationID = strings.TrimSpace(l.CorrelationID)
	l.Name = strings.TrimSpace(l.Name)
	l.Email = strings.TrimSpace(l.Email)

	switch {
	case l.CorrelationID == "":
		return types.Lead{}, apperrors.NewValidationError("correlation_id", "is required")
	case l.Name == "":
		return types.Lead{}, apperrors.NewValidationError("name", "is required")
	case l.Email == "":
		return types.Lead{}, apperrors.NewValidationError("email", "is required")
	}
	if _, err := mail.ParseAddress(l.Email); err != nil {
		return types.Lead{}, apperrors.NewValidationError("email", "is not a valid address")
	}

	// the sheet backend keeps whole seconds
	now := s.now().Truncate(time.Second)
	l.CreatedAt = now
	existing, err := s.store.FindLead(ctx, store.LeadQuery{CorrelationID: l.CorrelationID})
	switch {
	case err == nil && existing.Status == types.LeadPaid:
		return types.Lead{}, apperrors.NewValidationError("correlation_id", "lead is already paid")
	case err == nil:
		if !existing.CreatedAt.IsZero() {
			l.CreatedAt = existing.CreatedAt
		}
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return types.Lead{}, err
	}

	l.Status = types.LeadPending
	l.PaymentReference = ""
	l.AmountPaid = 0
	l.PaidAt = nil
	l.UpdatedAt = now
	if err := s.store.CreateLead(ctx, l); err != nil {
		return types.Lead{}, err
	}
	return l, nil
}

// Find looks a lead up by correlation id, falling back to email when the id
// is absent or unknown.
func (s *LeadService) Find(ctx context.Context, q store.LeadQuery) (types.Lead, error) {
	q.CorrelationID = strings.TrimSpace(q.CorrelationID)
	q.Email = strings.TrimSpace(q.Email)
	if q.CorrelationID == "" && q.Email == "" {
		return types.Lead{}, apperrors.NewValidationError("", "correlation_id or email is required")
	}

	l, err := s.store.FindLead(ctx, q)
	if err == nil || q.CorrelationID == "" || q.Email == "" || !apperrors.Is(err, apperrors.ErrNotFound) {
		return l, err
	}
	return s.store.FindLead(ctx, store.LeadQuery{Email: q.Email})
}

func (s *LeadService) MarkPaid(ctx context.Context, correlationID string, p types.Payment) (types.Lead, error) {
	if strings.TrimSpace(correlationID) == "" {
		return types.Lead{}, apperrors.NewValidationError("correlation_id", "is required")
	}
	return s.store.MarkPaid(ctx, correlationID, p)
}
