// Package paystack talks to the payment gateway: transaction verification
// and webhook authentication.
package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

const (
	vendorName     = "paystack"
	DefaultBaseURL = "https://api.paystack.co"

	// StatusSuccess is the only gateway status treated as paid.
	StatusSuccess = "success"

	// EventChargeSuccess is the webhook event for a completed charge.
	EventChargeSuccess = "charge.success"
)

type Client struct {
	secret  string
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(secretKey string, opts ...Option) *Client {
	c := &Client{
		secret:  secretKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// transaction is the gateway's transaction object. Amount is in minor units.
type transaction struct {
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    float64         `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	Customer  customer        `json:"customer"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (t transaction) normalize() types.Transaction {
	out := types.Transaction{
		Reference:     t.Reference,
		Status:        t.Status,
		Amount:        t.Amount / 100,
		Currency:      t.Currency,
		Email:         t.Customer.Email,
		FirstName:     t.Customer.FirstName,
		LastName:      t.Customer.LastName,
		Phone:         t.Customer.Phone,
		CorrelationID: correlationID(t.Metadata),
	}
	if ts, err := time.Parse(time.RFC3339, t.PaidAt); err == nil {
		out.PaidAt = ts.UTC()
	}
	return out
}

// correlationID reads metadata.correlation_id. The gateway sends metadata as
// either an object or an empty string.
func correlationID(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var m struct {
		CorrelationID string `json:"correlation_id"`
		EventID       string `json:"event_id"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if m.CorrelationID != "" {
		return m.CorrelationID
	}
	return m.EventID
}

// Verify confirms ref with the gateway. A transaction whose status is not
// "success" is returned together with a *errors.ValidationError.
func (c *Client) Verify(ctx context.Context, ref string) (types.Transaction, error) {
	if c.secret == "" {
		return types.Transaction{}, apperrors.NewConfigurationError("payment verifier", "PAYSTACK_SECRET_KEY")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return types.Transaction{}, apperrors.NewValidationError("reference", "is required")
	}

	endpoint := c.baseURL + "/transaction/verify/" + url.PathEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return types.Transaction{}, &apperrors.TransportError{Vendor: vendorName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.Transaction{}, &apperrors.TransportError{Vendor: vendorName, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.Transaction{}, &apperrors.RelayError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var envelope struct {
		Status  bool        `json:"status"`
		Message string      `json:"message"`
		Data    transaction `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return types.Transaction{}, fmt.Errorf("paystack: decode verify response: %w", err)
	}
	if !envelope.Status {
		return types.Transaction{}, apperrors.NewValidationError("reference", "verification failed: "+envelope.Message)
	}

	tx := envelope.Data.normalize()
	if tx.Reference == "" {
		tx.Reference = ref
	}
	if tx.Status != StatusSuccess {
		return tx, apperrors.NewValidationError("reference", fmt.Sprintf("payment status is %q", tx.Status))
	}
	return tx, nil
}

// Event is a decoded webhook delivery.
type Event struct {
	Type        string
	Transaction types.Transaction
}

// ParseEvent decodes a webhook body. Call it only after ValidSignature.
func ParseEvent(body []byte) (Event, error) {
	var w struct {
		Event string      `json:"event"`
		Data  transaction `json:"data"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, apperrors.NewValidationError("", "invalid webhook payload")
	}
	if w.Event == "" {
		return Event{}, apperrors.NewValidationError("event", "is required")
	}
	return Event{Type: w.Event, Transaction: w.Data.normalize()}, nil
}
