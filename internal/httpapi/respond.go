package httpapi

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/service"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

// maxRequestBody caps JSON request bodies. Envelopes and form posts are a
// few hundred bytes; gateway webhooks stay well under this.
const maxRequestBody = 64 << 10

type errorBody struct {
	OK    bool        `json:"ok"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// trackingView is the part of a relay result a browser may see. Vendor
// responses and error text go to logs and the audit trail only.
type trackingView struct {
	OK      bool   `json:"ok"`
	EventID string `json:"event_id,omitempty"`
}

func trackingOf(r *types.RelayResult) *trackingView {
	if r == nil {
		return nil
	}
	return &trackingView{OK: r.OK, EventID: r.EventID}
}

type checkoutResponse struct {
	OK            bool          `json:"ok"`
	CorrelationID string        `json:"correlation_id"`
	Lead          types.Lead    `json:"lead"`
	Tracking      *trackingView `json:"tracking,omitempty"`
}

type confirmationResponse struct {
	OK               bool               `json:"ok"`
	Verified         bool               `json:"verified"`
	AlreadyProcessed bool               `json:"already_processed"`
	CorrelationID    string             `json:"correlation_id,omitempty"`
	Transaction      *types.Transaction `json:"transaction,omitempty"`
	Tracking         *trackingView      `json:"tracking,omitempty"`
}

func confirmationOf(c types.Confirmation) confirmationResponse {
	return confirmationResponse{
		OK:               true,
		Verified:         c.Verified,
		AlreadyProcessed: c.AlreadyProcessed,
		CorrelationID:    c.CorrelationID,
		Transaction:      c.Transaction,
		Tracking:         trackingOf(c.Tracking),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// readBody reads at most maxRequestBody bytes of r's body.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError("", "invalid JSON body")
	}
	return nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{ClientIP: clientIP(r), UserAgent: r.UserAgent()}
}

// writeServiceError maps the error taxonomy to a status code. Messages are
// generic; details belong in the server log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := loggerFor(r)
	var ve *apperrors.ValidationError
	switch {
	case apperrors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "invalid_input", ve.Error())
	case apperrors.Is(err, apperrors.ErrBadSignature):
		log.Warn().Msg("rejected webhook with invalid signature")
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case apperrors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case apperrors.Is(err, apperrors.ErrNotConfigured):
		log.Error().Err(err).Msg("deployment is missing configuration")
		writeError(w, http.StatusInternalServerError, "not_configured", "service unavailable")
	case apperrors.Is(err, apperrors.ErrVendor), apperrors.Is(err, apperrors.ErrTransport):
		log.Warn().Err(err).Msg("vendor call failed")
		writeError(w, http.StatusInternalServerError, "upstream_error", "upstream service failed")
	default:
		log.Error().Err(err).Msg("unexpected error")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
