// Package store declares the persistence contracts used by the services.
package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

// CheckoutEntry is the per-checkout context kept between checkout initiation
// and payment confirmation.
type CheckoutEntry struct {
	UserData  types.UserData
	SourceURL string
	CreatedAt time.Time
	Lead      types.LeadInfo
}

// CorrelationStore holds checkout entries keyed by correlation id. A miss is
// an expected outcome.
type CorrelationStore interface {
	Put(id string, e CheckoutEntry)
	Get(id string) (CheckoutEntry, bool)
	Remove(id string)
}

// PaymentGuard remembers payment references that were already acted on.
type PaymentGuard interface {
	IsProcessed(ref string) bool
	MarkProcessed(ref string)
	// TryMark marks ref and reports whether this call was the one that did.
	TryMark(ref string) bool
}

// LeadQuery selects a lead by correlation id or, failing that, by email.
type LeadQuery struct {
	CorrelationID string
	Email         string
}

// LeadStore persists leads. Find returns an errors.NotFoundError on a miss.
type LeadStore interface {
	CreateLead(ctx context.Context, l types.Lead) error
	FindLead(ctx context.Context, q LeadQuery) (types.Lead, error)
	MarkPaid(ctx context.Context, correlationID string, p types.Payment) (types.Lead, error)
}

// AuditRecord is one row of the conversion audit trail.
type AuditRecord struct {
	LoggedAt   time.Time
	EventName  string
	EventID    string
	SourceURL  string
	Envelope   string // JSON of the envelope as sent
	OK         bool
	StatusCode int
	Response   string // JSON of the vendor response or error text
	RawContact string // only populated when raw PII logging is enabled
}

// AuditStore is an append-only log of conversion attempts.
type AuditStore interface {
	AppendAudit(ctx context.Context, rec AuditRecord) error
}

// Prunable stores can discard records older than a cutoff.
type Prunable interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
