package types

import "time"

type LeadStatus string

const (
	LeadPending LeadStatus = "PENDING"
	LeadPaid    LeadStatus = "PAID"
)

// Lead is one enrollment attempt persisted in the lead sheet.
type Lead struct {
	CorrelationID    string     `json:"correlation_id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone,omitempty"`
	Programme        string     `json:"programme,omitempty"`
	FBP              string     `json:"fbp,omitempty"`
	FBC              string     `json:"fbc,omitempty"`
	UTMSource        string     `json:"utm_source,omitempty"`
	UTMCampaign      string     `json:"utm_campaign,omitempty"`
	Status           LeadStatus `json:"status"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	Amount           float64    `json:"amount,omitempty"`
	AmountPaid       float64    `json:"amount_paid,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// LeadInfo is the raw contact snapshot captured at checkout. It lives only in
// process memory and is used to rebuild user data for the purchase event.
type LeadInfo struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone,omitempty"`
	Programme string  `json:"programme,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// Payment records the confirmed payment applied to a lead.
type Payment struct {
	Reference string
	Amount    float64
	Currency  string
	PaidAt    time.Time
}
