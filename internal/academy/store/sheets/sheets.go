// Package sheets stores leads and the conversion audit trail in an external
// spreadsheet through the sheets REST client.
package sheets

import (
	"context"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/sheets"
)

// Client is the subset of the sheets API the stores use.
type Client interface {
	Append(ctx context.Context, tab string, rows ...sheets.Row) error
	Search(ctx context.Context, tab, column, value string) ([]sheets.Row, error)
	Update(ctx context.Context, tab, column, value string, fields sheets.Row) (int, error)
}

type LeadStore struct {
	client Client
	tab    string
}

func NewLeadStore(c Client, tab string) *LeadStore {
	if tab == "" {
		tab = "Leads"
	}
	return &LeadStore{client: c, tab: tab}
}

func (s *LeadStore) CreateLead(ctx context.Context, l types.Lead) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = types.LeadPending
	}
	return s.client.Append(ctx, s.tab, leadRow(l))
}

func (s *LeadStore) FindLead(ctx context.Context, q store.LeadQuery) (types.Lead, error) {
	column, key := "correlation_id", q.CorrelationID
	if key == "" {
		column, key = "email", strings.TrimSpace(q.Email)
	}
	rows, err := s.client.Search(ctx, s.tab, column, key)
	if err != nil {
		return types.Lead{}, err
	}
	if len(rows) == 0 {
		return types.Lead{}, apperrors.NewNotFoundError("lead", key)
	}
	// rows come back in sheet order; the last one is the newest
	return rowLead(rows[len(rows)-1]), nil
}

func (s *LeadStore) MarkPaid(ctx context.Context, correlationID string, p types.Payment) (types.Lead, error) {
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	fields := sheets.Row{
		"status":            string(types.LeadPaid),
		"payment_reference": p.Reference,
		"amount_paid":       formatAmount(p.Amount),
		"paid_at":           paidAt.UTC().Format(time.RFC3339),
		"updated_at":        time.Now().UTC().Format(time.RFC3339),
	}
	if p.Currency != "" {
		fields["currency"] = p.Currency
	}

	n, err := s.client.Update(ctx, s.tab, "correlation_id", correlationID, fields)
	if err != nil {
		return types.Lead{}, err
	}
	if n == 0 {
		return types.Lead{}, apperrors.NewNotFoundError("lead", correlationID)
	}
	return s.FindLead(ctx, store.LeadQuery{CorrelationID: correlationID})
}

func leadRow(l types.Lead) sheets.Row {
	r := sheets.Row{
		"correlation_id":    l.CorrelationID,
		"name":              l.Name,
		"email":             l.Email,
		"phone":             l.Phone,
		"programme":         l.Programme,
		"fbp":               l.FBP,
		"fbc":               l.FBC,
		"utm_source":        l.UTMSource,
		"utm_campaign":      l.UTMCampaign,
		"status":            string(l.Status),
		"payment_reference": l.PaymentReference,
		"amount":            formatAmount(l.Amount),
		"amount_paid":       formatAmount(l.AmountPaid),
		"currency":          l.Currency,
		"created_at":        l.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":        l.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if l.PaidAt != nil {
		r["paid_at"] = l.PaidAt.UTC().Format(time.RFC3339)
	}
	return r
}

func rowLead(r sheets.Row) types.Lead {
	l := types.Lead{
		CorrelationID:    r["correlation_id"],
		Name:             r["name"],
		Email:            r["email"],
		Phone:            r["phone"],
		Programme:        r["programme"],
		FBP:              r["fbp"],
		FBC:              r["fbc"],
		UTMSource:        r["utm_source"],
		UTMCampaign:      r["utm_campaign"],
		Status:           types.LeadStatus(strings.ToUpper(r["status"])),
		PaymentReference: r["payment_reference"],
		Amount:           parseAmount(r["amount"]),
		AmountPaid:       parseAmount(r["amount_paid"]),
		Currency:         r["currency"],
		CreatedAt:        parseTime(r["created_at"]),
		UpdatedAt:        parseTime(r["updated_at"]),
	}
	if t := parseTime(r["paid_at"]); !t.IsZero() {
		l.PaidAt = &t
	}
	return l
}

func formatAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// AuditStore appends conversion attempts to the audit tab.
type AuditStore struct {
	client Client
	tab    string
}

func NewAuditStore(c Client, tab string) *AuditStore {
	if tab == "" {
		tab = "ConversionLog"
	}
	return &AuditStore{client: c, tab: tab}
}

func (s *AuditStore) AppendAudit(ctx context.Context, rec store.AuditRecord) error {
	if rec.LoggedAt.IsZero() {
		rec.LoggedAt = time.Now().UTC()
	}
	row := sheets.Row{
		"logged_at":  rec.LoggedAt.UTC().Format(time.RFC3339),
		"event_name": rec.EventName,
		"event_id":   rec.EventID,
		"source_url": rec.SourceURL,
		"envelope":   rec.Envelope,
		"ok":         strconv.FormatBool(rec.OK),
		"response":   rec.Response,
	}
	if rec.StatusCode != 0 {
		row["status_code"] = strconv.Itoa(rec.StatusCode)
	}
	if rec.RawContact != "" {
		row["raw_contact"] = rec.RawContact
	}
	return s.client.Append(ctx, s.tab, row)
}
