// Package sqlite implements the lead store and conversion audit log on the
// local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	dbpkg "github.com/BrandonDHaskell/summer-academy/internal/db"
)

type LeadStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewLeadStore(db *sql.DB, writer *dbpkg.Writer) *LeadStore {
	return &LeadStore{db: db, writer: writer}
}

const leadColumns = `correlation_id, name, email, phone, programme, fbp, fbc, utm_source, utm_campaign,
  status, payment_reference, amount, amount_paid, currency, created_at_ms, updated_at_ms, paid_at_ms`

// CreateLead inserts l, replacing an earlier row with the same correlation id.
func (s *LeadStore) CreateLead(ctx context.Context, l types.Lead) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.Status == "" {
		l.Status = types.LeadPending
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO leads(`+leadColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(correlation_id) DO UPDATE SET
  name = excluded.name,
  email = excluded.email,
  phone = excluded.phone,
  programme = excluded.programme,
  fbp = excluded.fbp,
  fbc = excluded.fbc,
  utm_source = excluded.utm_source,
  utm_campaign = excluded.utm_campaign,
  amount = excluded.amount,
  currency = excluded.currency,
  updated_at_ms = excluded.updated_at_ms;
`,
			l.CorrelationID, l.Name, l.Email, nullString(l.Phone), nullString(l.Programme),
			nullString(l.FBP), nullString(l.FBC), nullString(l.UTMSource), nullString(l.UTMCampaign),
			string(l.Status), nullString(l.PaymentReference), l.Amount, l.AmountPaid, nullString(l.Currency),
			l.CreatedAt.UTC().UnixMilli(), now.UnixMilli(), nullTime(l.PaidAt),
		); err != nil {
			return fmt.Errorf("CreateLead insert: %w", err)
		}
		return nil
	})
}

// FindLead looks up by correlation id, or by email (newest first) when no id
// is given.
func (s *LeadStore) FindLead(ctx context.Context, q store.LeadQuery) (types.Lead, error) {
	var row *sql.Row
	key := q.CorrelationID
	if q.CorrelationID != "" {
		row = s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE correlation_id = ?;`, q.CorrelationID)
	} else {
		key = q.Email
		row = s.db.QueryRowContext(ctx, `
SELECT `+leadColumns+` FROM leads
WHERE email = ? COLLATE NOCASE
ORDER BY created_at_ms DESC
LIMIT 1;`, strings.TrimSpace(q.Email))
	}

	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Lead{}, apperrors.NewNotFoundError("lead", key)
	}
	if err != nil {
		return types.Lead{}, fmt.Errorf("FindLead: %w", err)
	}
	return l, nil
}

// MarkPaid moves the lead to PAID and records the payment.
func (s *LeadStore) MarkPaid(ctx context.Context, correlationID string, p types.Payment) (types.Lead, error) {
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	nowMs := time.Now().UTC().UnixMilli()

	var out types.Lead
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE leads
SET status = 'PAID',
    payment_reference = ?,
    amount_paid = ?,
    currency = COALESCE(?, currency),
    paid_at_ms = ?,
    updated_at_ms = ?
WHERE correlation_id = ?;
`, p.Reference, p.Amount, nullString(p.Currency), paidAt.UTC().UnixMilli(), nowMs, correlationID)
		if err != nil {
			return fmt.Errorf("MarkPaid update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewNotFoundError("lead", correlationID)
		}

		out, err = scanLead(tx.QueryRowContext(ctx,
			`SELECT `+leadColumns+` FROM leads WHERE correlation_id = ?;`, correlationID))
		if err != nil {
			return fmt.Errorf("MarkPaid reload: %w", err)
		}
		return nil
	})
	return out, err
}

func scanLead(row *sql.Row) (types.Lead, error) {
	var (
		l                                     types.Lead
		phone, programme, fbp, fbc, src, camp sql.NullString
		ref, currency                         sql.NullString
		amount, amountPaid                    sql.NullFloat64
		status                                string
		createdMs, updatedMs                  int64
		paidMs                                sql.NullInt64
	)
	if err := row.Scan(
		&l.CorrelationID, &l.Name, &l.Email, &phone, &programme, &fbp, &fbc, &src, &camp,
		&status, &ref, &amount, &amountPaid, &currency, &createdMs, &updatedMs, &paidMs,
	); err != nil {
		return types.Lead{}, err
	}

	l.Phone = phone.String
	l.Programme = programme.String
	l.FBP = fbp.String
	l.FBC = fbc.String
	l.UTMSource = src.String
	l.UTMCampaign = camp.String
	l.Status = types.LeadStatus(status)
	l.PaymentReference = ref.String
	l.Amount = amount.Float64
	l.AmountPaid = amountPaid.Float64
	l.Currency = currency.String
	l.CreatedAt = time.UnixMilli(createdMs).UTC()
	l.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	if paidMs.Valid {
		t := time.UnixMilli(paidMs.Int64).UTC()
		l.PaidAt = &t
	}
	return l, nil
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}
