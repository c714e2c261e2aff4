package httpapi_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/pii"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/service"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store/memory"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/httpapi"
	"github.com/BrandonDHaskell/summer-academy/internal/logging"
	"github.com/BrandonDHaskell/summer-academy/internal/meta"
	"github.com/BrandonDHaskell/summer-academy/internal/paystack"
)

const webhookSecret = "whsec_test"

// fakeMeta records every event posted to the Conversions API.
type fakeMeta struct {
	mu     sync.Mutex
	events []map[string]any
}

func (f *fakeMeta) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data []map[string]any `json:"data"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.events = append(f.events, body.Data...)
	f.mu.Unlock()
	_, _ = io.WriteString(w, `{"events_received":1,"fbtrace_id":"trace"}`)
}

func (f *fakeMeta) ofKind(kind string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, e := range f.events {
		if e["event_name"] == kind {
			out = append(out, e)
		}
	}
	return out
}

// fakePaystack answers verify calls: references starting with "T" succeed,
// anything else is reported as failed.
func fakePaystack(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
	status := "success"
	if !strings.HasPrefix(ref, "T") {
		status = "failed"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  true,
		"message": "Verification successful",
		"data": map[string]any{
			"status":    status,
			"reference": ref,
			"amount":    15000000,
			"currency":  "NGN",
			"paid_at":   "2026-06-02T10:00:00Z",
			"customer":  map[string]any{"email": "jane@x.com"},
			"metadata":  "",
		},
	})
}

type testEnv struct {
	ts    *httptest.Server
	meta  *fakeMeta
	leads *memory.LeadStore
	audit *memory.AuditStore
}

type envOptions struct {
	pixelID       string
	rateLimitRPS  float64
	rewriteHost   string
	rewriteTarget string
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	fm := &fakeMeta{}
	metaSrv := httptest.NewServer(fm)
	t.Cleanup(metaSrv.Close)
	paySrv := httptest.NewServer(http.HandlerFunc(fakePaystack))
	t.Cleanup(paySrv.Close)

	leads := memory.NewLeadStore()
	audit := memory.NewAuditStore()

	relay := service.NewRelay(meta.New(meta.Config{
		PixelID:     opts.pixelID,
		AccessToken: "token",
		BaseURL:     metaSrv.URL,
	}), service.RelayConfig{})
	auditLogger := service.NewAuditLogger(audit, service.AuditConfig{})
	tracker := service.NewTracker(relay, auditLogger)
	hasher := pii.Hasher{CountryCode: pii.DefaultCountryCode}
	leadSvc := service.NewLeadService(leads)

	checkout := service.NewCheckoutService(service.CheckoutDeps{
		Correlations: memory.NewCorrelationStore(0),
		Leads:        leadSvc,
		Verifier: service.NewPaymentVerifier(
			paystack.New("sk_test", paystack.WithBaseURL(paySrv.URL)),
			memory.NewProcessedPayments(),
			webhookSecret,
		),
		Tracker: tracker,
		Hasher:  hasher,
	})

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logging.Nop(),
		Addr:           ":0",
		Relay:          relay,
		Audit:          auditLogger,
		Leads:          leadSvc,
		Checkout:       checkout,
		Contact:        service.NewContactService(tracker, hasher),
		RateLimitRPS:   opts.rateLimitRPS,
		RateLimitBurst: 1,
		RewriteHost:    opts.rewriteHost,
		RewriteTarget:  opts.rewriteTarget,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, meta: fm, leads: leads, audit: audit}
}

func defaultEnv(t *testing.T) *testEnv {
	return newTestEnv(t, envOptions{pixelID: "42"})
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(e.ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

const janeCheckout = `{"correlation_id":"abc-123","name":"Jane Doe","email":"jane@x.com","phone":"08012345678","programme":"Robotics","amount":150000,"currency":"NGN"}`

// ── Health ──────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := defaultEnv(t)
	resp, err := http.Get(e.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	resp.Body.Close()
}

// ── Conversion relay ────────────────────────────────────────────────────────

func TestMetaConversion_OK(t *testing.T) {
	e := defaultEnv(t)

	resp, body := e.post(t, "/api/meta-conversion",
		`{"event_name":"ViewContent","event_id":"evt-1","custom_data":{"content_name":"Home","ad_id":"123"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["event_id"] != "evt-1" {
		t.Errorf("expected event_id echo, got %v", body["event_id"])
	}
	echo, _ := body["response"].(map[string]any)
	if echo["fbtrace_id"] != "trace" {
		t.Errorf("expected vendor echo, got %v", body["response"])
	}

	sent := e.meta.ofKind("ViewContent")
	if len(sent) != 1 {
		t.Fatalf("expected 1 event at vendor, got %d", len(sent))
	}
	ud := sent[0]["user_data"].(map[string]any)
	if ud["client_ip_address"] != "127.0.0.1" {
		t.Errorf("expected ip from socket peer, got %v", ud["client_ip_address"])
	}
}

func TestMetaConversion_MissingFields(t *testing.T) {
	e := defaultEnv(t)

	for _, body := range []string{
		`{"event_id":"evt-1"}`,
		`{"event_name":"Contact"}`,
		`{"event_name":"Purchase","event_id":"x","custom_data":{"value":10}}`,
		`not json`,
	} {
		resp, _ := e.post(t, "/api/meta-conversion", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(e.meta.ofKind("Contact")) != 0 {
		t.Error("invalid envelopes must not reach the vendor")
	}
}

func TestMetaConversion_NotConfigured(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	resp, body := e.post(t, "/api/meta-conversion", `{"event_name":"Contact","event_id":"evt-1"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if strings.Contains(strings.ToLower(body["error"].(map[string]any)["message"].(string)), "meta_") {
		t.Error("configuration details must not leak")
	}
}

// ── Audit log ───────────────────────────────────────────────────────────────

func TestLogConversion(t *testing.T) {
	e := defaultEnv(t)

	resp, body := e.post(t, "/api/log-conversion",
		`{"event":{"event_name":"Contact","event_id":"evt-9"},"response":{"events_received":1},"ok":true,"status":200}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	recs := e.audit.Records()
	if len(recs) != 1 || recs[0].EventID != "evt-9" || !recs[0].OK {
		t.Errorf("unexpected audit rows: %+v", recs)
	}

	resp, _ = e.post(t, "/api/log-conversion", `{"response":{}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without event, got %d", resp.StatusCode)
	}
}

// ── Leads ───────────────────────────────────────────────────────────────────

func TestLeads_CreateAndQuery(t *testing.T) {
	e := defaultEnv(t)

	resp, body := e.post(t, "/api/leads", `{"correlation_id":"lead-1","name":"Ada","email":"ada@x.com"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %v", resp.StatusCode, body)
	}

	get := func(q string) *http.Response {
		r, err := http.Get(e.ts.URL + "/api/leads" + q)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		return r
	}

	r := get("?email=ADA@x.com")
	got := decode(t, r)
	if r.StatusCode != http.StatusOK {
		t.Fatalf("query: expected 200, got %d", r.StatusCode)
	}
	lead := got["lead"].(map[string]any)
	if lead["correlation_id"] != "lead-1" || lead["status"] != "PENDING" {
		t.Errorf("unexpected lead: %v", lead)
	}

	if r := get("?correlation_id=nope"); r.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", r.StatusCode)
	}
	if r := get(""); r.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", r.StatusCode)
	}
}

func TestLeads_MissingFields(t *testing.T) {
	e := defaultEnv(t)
	resp, _ := e.post(t, "/api/leads", `{"correlation_id":"lead-1","name":"Ada"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// ── Checkout data ───────────────────────────────────────────────────────────

func TestCheckoutData(t *testing.T) {
	e := defaultEnv(t)

	resp, _ := e.post(t, "/api/checkout-data", `{"user_data":{"em":"abc"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without correlation id, got %d", resp.StatusCode)
	}

	resp, _ = e.post(t, "/api/checkout-data", `{"correlation_id":"c-1","user_data":{"em":"abc"},"source_url":"https://academy.example"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

// ── End to end ──────────────────────────────────────────────────────────────

func TestContact_HashesPhone(t *testing.T) {
	e := defaultEnv(t)

	resp, body := e.post(t, "/api/contact", `{"name":"Jane Doe","email":"jane@x.com","phone":"08012345678"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}

	sent := e.meta.ofKind("Contact")
	if len(sent) != 1 {
		t.Fatalf("expected 1 Contact event, got %d", len(sent))
	}
	sum := sha256.Sum256([]byte("2348012345678"))
	ud := sent[0]["user_data"].(map[string]any)
	if ud["ph"] != hex.EncodeToString(sum[:]) {
		t.Errorf("unexpected ph %v", ud["ph"])
	}
	if sent[0]["event_id"] != body["event_id"] {
		t.Errorf("event id mismatch: %v vs %v", sent[0]["event_id"], body["event_id"])
	}
}

func TestContact_SucceedsWhenRelayNotConfigured(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	resp, _ := e.post(t, "/api/contact", `{"name":"Jane Doe","email":"jane@x.com"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("contact must succeed without tracking, got %d", resp.StatusCode)
	}
}

func TestCheckoutThenVerify_PurchaseReusesCorrelationID(t *testing.T) {
	e := defaultEnv(t)

	resp, body := e.post(t, "/api/checkout", janeCheckout)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d: %v", resp.StatusCode, body)
	}

	resp, body = e.post(t, "/api/paystack/verify", `{"reference":"T1","correlation_id":"abc-123"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["verified"] != true || body["already_processed"] != false {
		t.Errorf("unexpected confirmation: %v", body)
	}

	if n := len(e.meta.ofKind("InitiateCheckout")); n != 1 {
		t.Errorf("expected 1 InitiateCheckout, got %d", n)
	}
	purchases := e.meta.ofKind("Purchase")
	if len(purchases) != 1 {
		t.Fatalf("expected 1 Purchase, got %d", len(purchases))
	}
	if purchases[0]["event_id"] != "abc-123" {
		t.Errorf("purchase event_id = %v, want abc-123", purchases[0]["event_id"])
	}

	lead, err := e.leads.FindLead(t.Context(), store.LeadQuery{CorrelationID: "abc-123"})
	if err != nil {
		t.Fatalf("FindLead: %v", err)
	}
	if lead.Status != types.LeadPaid {
		t.Errorf("expected PAID, got %s", lead.Status)
	}
}

func TestVerify_TwiceShortCircuits(t *testing.T) {
	e := defaultEnv(t)

	_, first := e.post(t, "/api/paystack/verify", `{"reference":"T2","correlation_id":"abc-123"}`)
	resp, second := e.post(t, "/api/paystack/verify", `{"reference":"T2","correlation_id":"abc-123"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if first["already_processed"] != false || second["already_processed"] != true {
		t.Errorf("unexpected flags: first=%v second=%v", first, second)
	}
	if n := len(e.meta.ofKind("Purchase")); n != 1 {
		t.Errorf("expected exactly 1 Purchase, got %d", n)
	}
}

func TestVerify_Failures(t *testing.T) {
	e := defaultEnv(t)

	resp, _ := e.post(t, "/api/paystack/verify", `{"correlation_id":"abc-123"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing reference: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = e.post(t, "/api/paystack/verify", `{"reference":"BAD-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("failed payment: expected 400, got %d", resp.StatusCode)
	}
	if n := len(e.meta.ofKind("Purchase")); n != 0 {
		t.Errorf("expected no Purchase, got %d", n)
	}
}

func TestPurchaseEvent(t *testing.T) {
	e := defaultEnv(t)

	resp, _ := e.post(t, "/api/purchase-event", `{"reference":"T3"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing correlation id: expected 400, got %d", resp.StatusCode)
	}

	resp, body := e.post(t, "/api/purchase-event", `{"reference":"T3","correlation_id":"abc-123"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	tracking := body["tracking"].(map[string]any)
	if tracking["ok"] != true {
		t.Errorf("expected relayed purchase, got %v", tracking)
	}
}

func TestPurchaseEvent_RelayFailure(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	resp, _ := e.post(t, "/api/purchase-event", `{"reference":"T4","correlation_id":"abc-123"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

func TestTrackingFailure_DetailStaysServerSide(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	for _, c := range []struct{ path, body string }{
		{"/api/checkout", janeCheckout},
		{"/api/paystack/verify", `{"reference":"T5","correlation_id":"abc-123"}`},
	} {
		resp, err := http.Post(e.ts.URL+c.path, "application/json", strings.NewReader(c.body))
		if err != nil {
			t.Fatalf("post %s: %v", c.path, err)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", c.path, resp.StatusCode, raw)
		}
		for _, leak := range []string{"META_PIXEL_ID", "configuration", `"error"`, `"response"`} {
			if bytes.Contains(raw, []byte(leak)) {
				t.Errorf("%s: body exposes %q: %s", c.path, leak, raw)
			}
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("%s: decode: %v", c.path, err)
		}
		tracking, ok := body["tracking"].(map[string]any)
		if !ok {
			t.Fatalf("%s: missing tracking: %s", c.path, raw)
		}
		if tracking["ok"] != false || tracking["event_id"] != "abc-123" {
			t.Errorf("%s: unexpected tracking %v", c.path, tracking)
		}
	}
}

// ── Webhook ─────────────────────────────────────────────────────────────────

const chargeSuccess = `{"event":"charge.success","data":{"status":"success","reference":"T9","amount":15000000,"currency":"NGN","customer":{"email":"jane@x.com"},"metadata":{"correlation_id":"abc-123"}}}`

func (e *testEnv) webhook(t *testing.T, body, sig string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, e.ts.URL+"/api/paystack/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(paystack.SignatureHeader, sig)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestWebhook_BadSignature(t *testing.T) {
	e := defaultEnv(t)
	e.post(t, "/api/checkout", janeCheckout)

	resp := e.webhook(t, chargeSuccess, paystack.Sign([]byte(chargeSuccess), "not-the-secret"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	lead, _ := e.leads.FindLead(t.Context(), store.LeadQuery{CorrelationID: "abc-123"})
	if lead.Status != types.LeadPending {
		t.Errorf("lead must stay PENDING, got %s", lead.Status)
	}
}

func TestWebhook_MarksLeadPaid(t *testing.T) {
	e := defaultEnv(t)
	e.post(t, "/api/checkout", janeCheckout)

	resp := e.webhook(t, chargeSuccess, paystack.Sign([]byte(chargeSuccess), webhookSecret))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	lead, _ := e.leads.FindLead(t.Context(), store.LeadQuery{CorrelationID: "abc-123"})
	if lead.Status != types.LeadPaid || lead.PaymentReference != "T9" {
		t.Errorf("expected PAID lead, got %+v", lead)
	}
	purchases := e.meta.ofKind("Purchase")
	if len(purchases) != 1 || purchases[0]["event_id"] != "abc-123" {
		t.Errorf("expected one purchase for abc-123, got %v", purchases)
	}
}

func TestWebhook_UnmatchedLead(t *testing.T) {
	e := defaultEnv(t)
	resp := e.webhook(t, chargeSuccess, paystack.Sign([]byte(chargeSuccess), webhookSecret))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

// ── Middleware ──────────────────────────────────────────────────────────────

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, envOptions{pixelID: "42", rateLimitRPS: 0.001})

	first, _ := e.post(t, "/api/contact", `{"name":"Jane","email":"jane@x.com"}`)
	second, _ := e.post(t, "/api/contact", `{"name":"Jane","email":"jane@x.com"}`)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first: expected 200, got %d", first.StatusCode)
	}
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second: expected 429, got %d", second.StatusCode)
	}

	// webhooks are not limited
	resp := e.webhook(t, chargeSuccess, "bad")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("webhook: expected 401, got %d", resp.StatusCode)
	}
}

func TestHostRewrite(t *testing.T) {
	e := newTestEnv(t, envOptions{pixelID: "42", rewriteHost: "enroll.academy.example", rewriteTarget: "/healthz"})

	do := func(host string) int {
		req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/", nil)
		req.Host = host
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := do("enroll.academy.example"); got != http.StatusOK {
		t.Errorf("rewritten host: expected 200, got %d", got)
	}
	if got := do("www.academy.example"); got != http.StatusNotFound {
		t.Errorf("other host: expected 404, got %d", got)
	}
}
