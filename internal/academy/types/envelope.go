package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
)

// EventKind is the fixed set of conversion events the site emits. The values
// are the ad platform's standard event names.
type EventKind string

const (
	KindViewContent      EventKind = "ViewContent"
	KindContact          EventKind = "Contact"
	KindInitiateCheckout EventKind = "InitiateCheckout"
	KindPurchase         EventKind = "Purchase"
)

func (k EventKind) Valid() bool {
	switch k {
	case KindViewContent, KindContact, KindInitiateCheckout, KindPurchase:
		return true
	}
	return false
}

// UserData is the user block of an envelope. Email, phone and names hold
// SHA-256 hex digests, never plaintext.
type UserData struct {
	Email     string `json:"em,omitempty"`
	Phone     string `json:"ph,omitempty"`
	FirstName string `json:"fn,omitempty"`
	LastName  string `json:"ln,omitempty"`
	ClientIP  string `json:"client_ip_address,omitempty"`
	UserAgent string `json:"client_user_agent,omitempty"`
	FBP       string `json:"fbp,omitempty"`
	FBC       string `json:"fbc,omitempty"`
}

// Payload is the kind-specific part of an envelope. Exactly one of
// ViewContent, Contact, InitiateCheckout or Purchase.
type Payload interface {
	Kind() EventKind
	custom() CustomData
	validate() error
}

type ViewContent struct {
	ContentName     string
	ContentCategory string
}

func (ViewContent) Kind() EventKind { return KindViewContent }
func (p ViewContent) custom() CustomData {
	return CustomData{ContentName: p.ContentName, ContentCategory: p.ContentCategory}
}
func (ViewContent) validate() error { return nil }

type Contact struct {
	ContentName string
}

func (Contact) Kind() EventKind      { return KindContact }
func (p Contact) custom() CustomData { return CustomData{ContentName: p.ContentName} }
func (Contact) validate() error      { return nil }

type InitiateCheckout struct {
	Currency    string
	Value       float64
	ContentName string
	NumItems    int
}

func (InitiateCheckout) Kind() EventKind { return KindInitiateCheckout }
func (p InitiateCheckout) custom() CustomData {
	return CustomData{
		Currency:    p.Currency,
		Value:       optionalValue(p.Value),
		ContentName: p.ContentName,
		NumItems:    p.NumItems,
	}
}
func (p InitiateCheckout) validate() error {
	if p.Value < 0 {
		return apperrors.NewValidationError("custom_data.value", "must not be negative")
	}
	return nil
}

type Purchase struct {
	Currency    string
	Value       float64
	ContentName string
	OrderID     string
}

func (Purchase) Kind() EventKind { return KindPurchase }
func (p Purchase) custom() CustomData {
	v := p.Value
	return CustomData{
		Currency:    p.Currency,
		Value:       &v,
		ContentName: p.ContentName,
		OrderID:     p.OrderID,
	}
}
func (p Purchase) validate() error {
	if strings.TrimSpace(p.Currency) == "" {
		return apperrors.NewValidationError("custom_data.currency", "is required for Purchase")
	}
	if p.Value <= 0 {
		return apperrors.NewValidationError("custom_data.value", "must be positive for Purchase")
	}
	return nil
}

// CustomData is the wire form of the custom_data block.
type CustomData struct {
	Currency        string   `json:"currency,omitempty"`
	Value           *float64 `json:"value,omitempty"`
	ContentName     string   `json:"content_name,omitempty"`
	ContentCategory string   `json:"content_category,omitempty"`
	NumItems        int      `json:"num_items,omitempty"`
	OrderID         string   `json:"order_id,omitempty"`
	Attribution
}

func optionalValue(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// Envelope is one conversion event. The correlation id travels as EventID and
// is shared by the browser pixel event, the server event, the audit row and a
// later purchase confirmation.
type Envelope struct {
	EventID       string
	EventTime     int64
	SourceURL     string
	UserData      UserData
	Attribution   Attribution
	Payload       Payload
	TestEventCode string
}

// Kind returns the payload's kind, or "" when no payload is set.
func (e Envelope) Kind() EventKind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Custom returns the custom_data block including attribution ids.
func (e Envelope) Custom() CustomData {
	var cd CustomData
	if e.Payload != nil {
		cd = e.Payload.custom()
	}
	cd.Attribution = e.Attribution
	return cd
}

// Validate checks the fields every kind requires plus the kind's own rules.
func (e Envelope) Validate() error {
	if e.Payload == nil || !e.Payload.Kind().Valid() {
		return apperrors.NewValidationError("event_name", "is required")
	}
	if strings.TrimSpace(e.EventID) == "" {
		return apperrors.NewValidationError("event_id", "is required")
	}
	return e.Payload.validate()
}

type wireEnvelope struct {
	EventName     EventKind  `json:"event_name"`
	EventID       string     `json:"event_id"`
	EventTime     int64      `json:"event_time,omitempty"`
	SourceURL     string     `json:"event_source_url,omitempty"`
	UserData      UserData   `json:"user_data"`
	CustomData    CustomData `json:"custom_data"`
	TestEventCode string     `json:"test_event_code,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{
		EventName:     e.Kind(),
		EventID:       e.EventID,
		EventTime:     e.EventTime,
		SourceURL:     e.SourceURL,
		UserData:      e.UserData,
		CustomData:    e.Custom(),
		TestEventCode: e.TestEventCode,
	})
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	p, err := payloadFor(w.EventName, w.CustomData)
	if err != nil {
		return err
	}
	*e = Envelope{
		EventID:       w.EventID,
		EventTime:     w.EventTime,
		SourceURL:     w.SourceURL,
		UserData:      w.UserData,
		Attribution:   w.CustomData.Attribution,
		Payload:       p,
		TestEventCode: w.TestEventCode,
	}
	return nil
}

func payloadFor(kind EventKind, cd CustomData) (Payload, error) {
	var value float64
	if cd.Value != nil {
		value = *cd.Value
	}
	switch kind {
	case KindViewContent:
		return ViewContent{ContentName: cd.ContentName, ContentCategory: cd.ContentCategory}, nil
	case KindContact:
		return Contact{ContentName: cd.ContentName}, nil
	case KindInitiateCheckout:
		return InitiateCheckout{Currency: cd.Currency, Value: value, ContentName: cd.ContentName, NumItems: cd.NumItems}, nil
	case KindPurchase:
		return Purchase{Currency: cd.Currency, Value: value, ContentName: cd.ContentName, OrderID: cd.OrderID}, nil
	case "":
		return nil, nil
	}
	return nil, apperrors.NewValidationError("event_name", fmt.Sprintf("unknown event %q", string(kind)))
}

// maxSafeDigits is the longest digit string that survives a round trip
// through an IEEE-754 double.
const maxSafeDigits = 15

// AttributionID is a numeric ad-platform identifier kept as its decimal
// string. It marshals as a JSON number when it fits in maxSafeDigits and as a
// string otherwise.
type AttributionID string

func (id AttributionID) Numeric() bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (id AttributionID) MarshalJSON() ([]byte, error) {
	if id.Numeric() && len(id) <= maxSafeDigits {
		n, err := strconv.ParseInt(string(id), 10, 64)
		if err == nil {
			return []byte(strconv.FormatInt(n, 10)), nil
		}
	}
	return json.Marshal(string(id))
}

func (id *AttributionID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = AttributionID(strings.TrimSpace(s))
		return nil
	}
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = AttributionID(n.String())
	return nil
}

// Attribution holds the ad, ad-set and campaign identifiers from the landing
// URL.
type Attribution struct {
	AdID       AttributionID `json:"ad_id,omitempty"`
	AdSetID    AttributionID `json:"adset_id,omitempty"`
	CampaignID AttributionID `json:"campaign_id,omitempty"`
}

// Normalize drops identifiers that are not pure digit strings and reports the
// names of the dropped fields.
func (a Attribution) Normalize() (Attribution, []string) {
	var dropped []string
	keep := func(name string, id AttributionID) AttributionID {
		if id == "" || id.Numeric() {
			return id
		}
		dropped = append(dropped, name)
		return ""
	}
	return Attribution{
		AdID:       keep("ad_id", a.AdID),
		AdSetID:    keep("adset_id", a.AdSetID),
		CampaignID: keep("campaign_id", a.CampaignID),
	}, dropped
}
