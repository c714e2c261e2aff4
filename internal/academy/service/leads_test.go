package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/service"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store/memory"
	sheetstore "github.com/BrandonDHaskell/summer-academy/internal/academy/store/sheets"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store/sqlite"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/db"
	"github.com/BrandonDHaskell/summer-academy/internal/sheets"
)

// ── Backends ────────────────────────────────────────────────────────────────

// sheetTab is an in-memory stand-in for the sheets REST API.
type sheetTab struct {
	mu   sync.Mutex
	rows map[string][]sheets.Row
}

func (f *sheetTab) Append(_ context.Context, tab string, rows ...sheets.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		cp := sheets.Row{}
		for k, v := range r {
			cp[k] = v
		}
		f.rows[tab] = append(f.rows[tab], cp)
	}
	return nil
}

func (f *sheetTab) Search(_ context.Context, tab, column, value string) ([]sheets.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sheets.Row
	for _, r := range f.rows[tab] {
		if strings.EqualFold(r[column], value) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *sheetTab) Update(_ context.Context, tab, column, value string, fields sheets.Row) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows[tab] {
		if r[column] == value {
			for k, v := range fields {
				r[k] = v
			}
			n++
		}
	}
	return n, nil
}

func leadBackends(t *testing.T) map[string]store.LeadStore {
	t.Helper()

	name := "leads_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.Open(context.Background(), db.Config{Path: ":memory:", MemoryName: name})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	w := db.NewWriter(conn)
	t.Cleanup(func() {
		w.Close()
		conn.Close()
	})

	return map[string]store.LeadStore{
		"memory": memory.NewLeadStore(),
		"sqlite": sqlite.NewLeadStore(conn, w),
		"sheets": sheetstore.NewLeadStore(&sheetTab{rows: map[string][]sheets.Row{}}, ""),
	}
}

func ada(id string) types.Lead {
	return types.Lead{CorrelationID: id, Name: "Ada Obi", Email: "ada@x.com", Programme: "Robotics", Amount: 150000}
}

// ── Create ──────────────────────────────────────────────────────────────────

func TestLeadCreate_StampsTimes(t *testing.T) {
	for name, st := range leadBackends(t) {
		t.Run(name, func(t *testing.T) {
			l, err := service.NewLeadService(st).Create(context.Background(), ada("lead-1"))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if l.CreatedAt.IsZero() || l.UpdatedAt.IsZero() {
				t.Fatalf("expected timestamps, got created=%v updated=%v", l.CreatedAt, l.UpdatedAt)
			}
			if l.Status != types.LeadPending {
				t.Fatalf("expected PENDING, got %s", l.Status)
			}
		})
	}
}

func TestLeadCreate_PaidLeadIsNotReopened(t *testing.T) {
	for name, st := range leadBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			leads := service.NewLeadService(st)

			if _, err := leads.Create(ctx, ada("lead-1")); err != nil {
				t.Fatalf("Create: %v", err)
			}
			paidAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
			if _, err := leads.MarkPaid(ctx, "lead-1", types.Payment{Reference: "T1", Amount: 150000, PaidAt: paidAt}); err != nil {
				t.Fatalf("MarkPaid: %v", err)
			}

			_, err := leads.Create(ctx, ada("lead-1"))
			if !apperrors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("expected validation error on paid lead, got %v", err)
			}

			got, err := leads.Find(ctx, store.LeadQuery{CorrelationID: "lead-1"})
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if got.Status != types.LeadPaid || got.PaymentReference != "T1" {
				t.Fatalf("expected PAID with T1, got %s ref=%q", got.Status, got.PaymentReference)
			}
		})
	}
}

func TestLeadCreate_PendingResubmitKeepsCreatedAt(t *testing.T) {
	for name, st := range leadBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			leads := service.NewLeadService(st)

			first, err := leads.Create(ctx, ada("lead-1"))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			again := ada("lead-1")
			again.Phone = "08012345678"
			second, err := leads.Create(ctx, again)
			if err != nil {
				t.Fatalf("second Create: %v", err)
			}
			if !second.CreatedAt.Equal(first.CreatedAt) {
				t.Fatalf("created_at moved: %v -> %v", first.CreatedAt, second.CreatedAt)
			}

			got, err := leads.Find(ctx, store.LeadQuery{CorrelationID: "lead-1"})
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if got.Status != types.LeadPending || got.Phone != "08012345678" {
				t.Fatalf("expected refreshed PENDING lead, got %+v", got)
			}
			if !got.CreatedAt.Equal(first.CreatedAt) {
				t.Fatalf("stored created_at %v, want %v", got.CreatedAt, first.CreatedAt)
			}
		})
	}
}
