package types

import "time"

// Transaction is a gateway-confirmed payment normalized to major currency
// units.
type Transaction struct {
	Reference     string    `json:"reference"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paid_at"`
	Email         string    `json:"email,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Confirmation is the outcome of confirming a payment reference.
type Confirmation struct {
	Verified         bool         `json:"verified"`
	AlreadyProcessed bool         `json:"already_processed"`
	CorrelationID    string       `json:"correlation_id,omitempty"`
	Transaction      *Transaction `json:"transaction,omitempty"`
	Tracking         *RelayResult `json:"-"`
}

// RelayResult is what the conversion relay hands back instead of an error.
// Err is nil on success.
type RelayResult struct {
	OK       bool           `json:"ok"`
	EventID  string         `json:"event_id,omitempty"`
	Status   int            `json:"status,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
	Err      error          `json:"-"`
}
