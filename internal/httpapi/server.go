package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/attribution"
	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/service"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/paystack"
)

type Dependencies struct {
	Logger zerolog.Logger
	Addr   string

	Relay    *service.Relay
	Audit    *service.AuditLogger
	Leads    *service.LeadService
	Checkout *service.CheckoutService
	Contact  *service.ContactService

	// Site serves everything outside /api. Optional.
	Site http.Handler

	RateLimitRPS   float64
	RateLimitBurst int
	RewriteHost    string
	RewriteTarget  string
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
	mux        *http.ServeMux
	relay      *service.Relay
	audit      *service.AuditLogger
	leads      *service.LeadService
	checkout   *service.CheckoutService
	contact    *service.ContactService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:   d.Logger,
		mux:      mux,
		relay:    d.Relay,
		audit:    d.Audit,
		leads:    d.Leads,
		checkout: d.Checkout,
		contact:  d.Contact,
	}

	rl := newRateLimiter(d.RateLimitRPS, d.RateLimitBurst)
	public := func(h http.HandlerFunc) http.Handler { return rl.limit(h) }

	mux.Handle("POST /api/meta-conversion", public(s.handleMetaConversion))
	mux.Handle("POST /api/log-conversion", public(s.handleLogConversion))
	mux.Handle("POST /api/leads", public(s.handleCreateLead))
	mux.HandleFunc("GET /api/leads", s.handleGetLead)
	mux.Handle("POST /api/checkout-data", public(s.handleCheckoutData))
	mux.Handle("POST /api/checkout", public(s.handleCheckout))
	mux.Handle("POST /api/contact", public(s.handleContact))
	mux.Handle("POST /api/paystack/verify", public(s.handleVerifyPayment))
	mux.Handle("POST /api/purchase-event", public(s.handlePurchaseEvent))
	mux.HandleFunc("POST /api/paystack/webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if d.Site != nil {
		mux.Handle("GET /", d.Site)
	}

	handler := hostRewrite(d.RewriteHost, d.RewriteTarget, mux)
	handler = loggingMiddleware(d.Logger, handler)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withCookies fills the browser ids from the request cookies when the
// client did not send them.
func withCookies(r *http.Request, fbp, fbc string) (string, string) {
	cfbp, cfbc := attribution.Cookies(r)
	if fbp == "" {
		fbp = cfbp
	}
	if fbc == "" {
		fbc = cfbc
	}
	return fbp, fbc
}

type relayResponse struct {
	OK       bool           `json:"ok"`
	EventID  string         `json:"event_id"`
	Response map[string]any `json:"response,omitempty"`
}

func (s *Server) handleMetaConversion(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "could not read body")
		return
	}
	env, err := types.DecodeEnvelope(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	env.UserData.FBP, env.UserData.FBC = withCookies(r, env.UserData.FBP, env.UserData.FBC)

	res := s.relay.Send(r.Context(), env, requestMeta(r))
	if !res.OK {
		writeServiceError(w, r, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, relayResponse{OK: true, EventID: res.EventID, Response: res.Response})
}

type logConversionRequest struct {
	Event    json.RawMessage `json:"event"`
	Response map[string]any  `json:"response"`
	OK       bool            `json:"ok"`
	Status   int             `json:"status"`
	Error    string          `json:"error"`
}

func (s *Server) handleLogConversion(w http.ResponseWriter, r *http.Request) {
	var req logConversionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(req.Event) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "event is required")
		return
	}
	env, err := types.DecodeEnvelope(req.Event)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := s.audit.Record(r.Context(), env, types.RelayResult{
		OK:       req.OK,
		EventID:  env.EventID,
		Status:   req.Status,
		Response: req.Response,
		Error:    req.Error,
	})
	if out.Err != nil {
		writeError(w, http.StatusInternalServerError, "audit_failed", "could not record conversion")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"logged":   out.OK,
		"event_id": env.EventID,
	})
}

type leadRequest struct {
	CorrelationID string  `json:"correlation_id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Programme     string  `json:"programme"`
	FBP           string  `json:"fbp"`
	FBC           string  `json:"fbc"`
	UTMSource     string  `json:"utm_source"`
	UTMCampaign   string  `json:"utm_campaign"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	fbp, fbc := withCookies(r, req.FBP, req.FBC)

	lead, err := s.leads.Create(r.Context(), types.Lead{
		CorrelationID: req.CorrelationID,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Programme:     req.Programme,
		FBP:           fbp,
		FBC:           fbc,
		UTMSource:     req.UTMSource,
		UTMCampaign:   req.UTMCampaign,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lead": lead})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lead, err := s.leads.Find(r.Context(), store.LeadQuery{
		CorrelationID: q.Get("correlation_id"),
		Email:         q.Get("email"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lead": lead})
}

type checkoutDataRequest struct {
	CorrelationID string         `json:"correlation_id"`
	UserData      types.UserData `json:"user_data"`
	SourceURL     string         `json:"source_url"`
	Lead          types.LeadInfo `json:"lead"`
}

func (s *Server) handleCheckoutData(w http.ResponseWriter, r *http.Request) {
	var req checkoutDataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	ud := req.UserData
	ud.FBP, ud.FBC = withCookies(r, ud.FBP, ud.FBC)
	if ud.ClientIP == "" {
		ud.ClientIP = clientIP(r)
	}
	if ud.UserAgent == "" {
		ud.UserAgent = r.UserAgent()
	}

	err := s.checkout.SaveCheckoutData(r.Context(), req.CorrelationID, store.CheckoutEntry{
		UserData:  ud,
		SourceURL: req.SourceURL,
		Lead:      req.Lead,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "correlation_id": req.CorrelationID})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	req.FBP, req.FBC = withCookies(r, req.FBP, req.FBC)
	if req.SourceURL == "" {
		req.SourceURL = r.Referer()
	}

	res, err := s.checkout.Initiate(r.Context(), req, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		OK:            true,
		CorrelationID: res.CorrelationID,
		Lead:          res.Lead,
		Tracking:      trackingOf(res.Tracking),
	})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req service.ContactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	req.FBP, req.FBC = withCookies(r, req.FBP, req.FBC)
	if req.SourceURL == "" {
		req.SourceURL = r.Referer()
	}

	res, err := s.contact.Submit(r.Context(), req, requestMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// tracking failures stay server side
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "event_id": res.EventID})
}

type paymentRequest struct {
	Reference     string `json:"reference"`
	CorrelationID string `json:"correlation_id"`
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	conf, err := s.checkout.ConfirmPayment(r.Context(), req.Reference, req.CorrelationID, requestMeta(r))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrVendor) {
			loggerFor(r).Warn().Err(err).Str("reference", req.Reference).Msg("payment verification rejected")
			writeError(w, http.StatusBadRequest, "verification_failed", "payment verification failed")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmationOf(conf))
}

func (s *Server) handlePurchaseEvent(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.CorrelationID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "correlation_id is required")
		return
	}

	conf, err := s.checkout.ConfirmPayment(r.Context(), req.Reference, req.CorrelationID, requestMeta(r))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrVendor) {
			writeError(w, http.StatusBadRequest, "unverified", "payment could not be verified")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	if conf.Tracking != nil && !conf.Tracking.OK {
		writeServiceError(w, r, conf.Tracking.Err)
		return
	}
	writeJSON(w, http.StatusOK, confirmationOf(conf))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "could not read body")
		return
	}

	res, err := s.checkout.HandleWebhook(r.Context(), body, r.Header.Get(paystack.SignatureHeader))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "handled": res.Handled})
}
