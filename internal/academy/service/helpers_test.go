package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/pii"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/service"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store/memory"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

const testWebhookSecret = "whsec_test"

// fakeSender stands in for the Conversions API client.
type fakeSender struct {
	mu     sync.Mutex
	sent   []types.Envelope
	err    error
	status int
}

func (f *fakeSender) Send(_ context.Context, env types.Envelope) (map[string]any, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	if f.err != nil {
		return nil, f.status, f.err
	}
	return map[string]any{"events_received": float64(1)}, 200, nil
}

func (f *fakeSender) Sent() []types.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSender) sentOfKind(k types.EventKind) []types.Envelope {
	var out []types.Envelope
	for _, e := range f.Sent() {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}

// fakeGateway stands in for the payment gateway.
type fakeGateway struct {
	mu    sync.Mutex
	calls int
	tx    types.Transaction
	err   error
}

func (g *fakeGateway) Verify(_ context.Context, ref string) (types.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	tx := g.tx
	tx.Reference = ref
	return tx, g.err
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type harness struct {
	sender       *fakeSender
	gateway      *fakeGateway
	leads        *memory.LeadStore
	audit        *memory.AuditStore
	correlations *memory.CorrelationStore
	checkout     *service.CheckoutService
	contact      *service.ContactService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		sender: &fakeSender{},
		gateway: &fakeGateway{tx: types.Transaction{
			Status:    "success",
			Amount:    150000,
			Currency:  "NGN",
			Email:     "jane@x.com",
			FirstName: "Jane",
			LastName:  "Doe",
			Phone:     "08012345678",
		}},
		leads:        memory.NewLeadStore(),
		audit:        memory.NewAuditStore(),
		correlations: memory.NewCorrelationStore(0),
	}

	hasher := pii.Hasher{CountryCode: pii.DefaultCountryCode}
	tracker := service.NewTracker(
		service.NewRelay(h.sender, service.RelayConfig{}),
		service.NewAuditLogger(h.audit, service.AuditConfig{}),
	)
	h.checkout = service.NewCheckoutService(service.CheckoutDeps{
		Correlations: h.correlations,
		Leads:        service.NewLeadService(h.leads),
		Verifier:     service.NewPaymentVerifier(h.gateway, memory.NewProcessedPayments(), testWebhookSecret),
		Tracker:      tracker,
		Hasher:       hasher,
	})
	h.contact = service.NewContactService(tracker, hasher)
	return h
}

func janeCheckout(id string) service.CheckoutRequest {
	return service.CheckoutRequest{
		CorrelationID: id,
		Name:          "Jane Doe",
		Email:         "jane@x.com",
		Phone:         "08012345678",
		Programme:     "Robotics",
		Amount:        150000,
		Currency:      "NGN",
		SourceURL:     "https://academy.example/enroll?ad_id=120200000000001&utm_source=fb",
		FBP:           "fb.1.1700000000.99",
	}
}
