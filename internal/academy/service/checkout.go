package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/attribution"
	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/ident"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/pii"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/logging"
	"github.com/BrandonDHaskell/summer-academy/internal/paystack"
)

// DefaultCurrency is used when neither the request nor the gateway names one.
const DefaultCurrency = "NGN"

// CheckoutRequest is an enrollment form submission.
type CheckoutRequest struct {
	CorrelationID string  `json:"correlation_id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Programme     string  `json:"programme"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	SourceURL     string  `json:"source_url"`
	FBP           string  `json:"fbp"`
	FBC           string  `json:"fbc"`
}

type CheckoutResult struct {
	CorrelationID string             `json:"correlation_id"`
	Lead          types.Lead         `json:"lead"`
	Tracking      *types.RelayResult `json:"-"`
}

// WebhookResult reports what a webhook delivery did.
type WebhookResult struct {
	Handled          bool               `json:"handled"`
	AlreadyProcessed bool               `json:"already_processed,omitempty"`
	CorrelationID    string             `json:"correlation_id,omitempty"`
	Tracking         *types.RelayResult `json:"-"`
}

type CheckoutDeps struct {
	Correlations store.CorrelationStore
	Leads        *LeadService
	Verifier     *PaymentVerifier
	Tracker      *Tracker
	Hasher       pii.Hasher
}

// CheckoutService ties an initiate-checkout event to the purchase event fired
// once payment is confirmed. Both carry the same correlation id.
type CheckoutService struct {
	correlations store.CorrelationStore
	leads        *LeadService
	verifier     *PaymentVerifier
	tracker      *Tracker
	hasher       pii.Hasher
	now          func() time.Time
}

func NewCheckoutService(d CheckoutDeps) *CheckoutService {
	return &CheckoutService{
		correlations: d.Correlations,
		leads:        d.Leads,
		verifier:     d.Verifier,
		tracker:      d.Tracker,
		hasher:       d.Hasher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SaveCheckoutData stores the checkout context for a later purchase event.
func (s *CheckoutService) SaveCheckoutData(ctx context.Context, id string, e store.CheckoutEntry) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.NewValidationError("correlation_id", "is required")
	}
	if e.UserData == (types.UserData{}) && e.Lead == (types.LeadInfo{}) {
		return apperrors.NewValidationError("user_data", "user_data or lead is required")
	}
	s.correlations.Put(id, e)
	logging.FromContext(ctx).Debug().Str("correlation_id", id).Msg("checkout data stored")
	return nil
}

// Initiate records a lead for an enrollment and fires InitiateCheckout.
// Only the lead write can fail the call.
func (s *CheckoutService) Initiate(ctx context.Context, req CheckoutRequest, meta RequestMeta) (CheckoutResult, error) {
	if req.Amount < 0 {
		return CheckoutResult{}, apperrors.NewValidationError("amount", "must not be negative")
	}
	id := strings.TrimSpace(req.CorrelationID)
	if id == "" {
		id = ident.New()
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	now := s.now()
	attr, params := attribution.FromURL(ctx, req.SourceURL)
	fbc := attribution.ResolveClickCookie(req.FBC, params.FBCLID, now)

	lead, err := s.leads.Create(ctx, types.Lead{
		CorrelationID: id,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Programme:     req.Programme,
		FBP:           req.FBP,
		FBC:           fbc,
		UTMSource:     params.UTMSource,
		UTMCampaign:   params.UTMCampaign,
		Amount:        req.Amount,
		Currency:      currency,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	contact := pii.Contact{Name: lead.Name, Email: lead.Email, Phone: lead.Phone}
	ud := s.hasher.UserData(contact)
	ud.FBP = req.FBP
	ud.FBC = fbc
	ud.ClientIP = meta.ClientIP
	ud.UserAgent = meta.UserAgent

	s.correlations.Put(id, store.CheckoutEntry{
		UserData:  ud,
		SourceURL: req.SourceURL,
		CreatedAt: now,
		Lead: types.LeadInfo{
			Name:      lead.Name,
			Email:     lead.Email,
			Phone:     lead.Phone,
			Programme: lead.Programme,
			Amount:    lead.Amount,
			Currency:  currency,
		},
	})

	res := s.tracker.Track(ctx, types.Envelope{
		EventID:     id,
		EventTime:   now.Unix(),
		SourceURL:   req.SourceURL,
		UserData:    ud,
		Attribution: attr,
		Payload: types.InitiateCheckout{
			Currency:    currency,
			Value:       req.Amount,
			ContentName: req.Programme,
			NumItems:    1,
		},
	}, meta, &contact)

	return CheckoutResult{CorrelationID: id, Lead: lead, Tracking: &res}, nil
}

// ConfirmPayment verifies ref and, the first time it is confirmed, marks the
// lead paid and fires a Purchase event under the checkout's correlation id.
// The correlation id in the verified gateway metadata wins over correlationID,
// which is only used when the gateway carries none.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, ref, correlationID string, meta RequestMeta) (types.Confirmation, error) {
	log := logging.FromContext(ctx)

	tx, fresh, err := s.verifier.Confirm(ctx, ref)
	if err != nil {
		return types.Confirmation{}, err
	}

	id := strings.TrimSpace(tx.CorrelationID)
	claimed := strings.TrimSpace(correlationID)
	switch {
	case id == "":
		id = claimed
	case claimed != "" && claimed != id:
		log.Warn().
			Str("reference", ref).
			Str("correlation_id", id).
			Str("claimed_correlation_id", claimed).
			Msg("request correlation id differs from gateway metadata; using gateway")
	}
	conf := types.Confirmation{Verified: true, AlreadyProcessed: !fresh, CorrelationID: id}
	if !fresh {
		log.Info().Str("reference", ref).Msg("payment already processed")
		return conf, nil
	}
	conf.Transaction = &tx

	if id != "" {
		if _, err := s.leads.MarkPaid(ctx, id, paymentOf(tx)); err != nil {
			log.Warn().Err(err).Str("correlation_id", id).Msg("could not mark lead paid")
		}
	}

	res := s.sendPurchase(ctx, id, tx, meta)
	conf.Tracking = &res
	if conf.CorrelationID == "" {
		conf.CorrelationID = res.EventID
	}
	return conf, nil
}

// HandleWebhook authenticates a gateway webhook against its raw body and
// applies a successful charge. Unknown leads are reported as NotFound.
func (s *CheckoutService) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	if err := s.verifier.Authenticate(body, signature); err != nil {
		return WebhookResult{}, err
	}
	ev, err := paystack.ParseEvent(body)
	if err != nil {
		return WebhookResult{}, err
	}

	log := logging.FromContext(ctx).With().Str("webhook_event", ev.Type).Logger()
	tx := ev.Transaction
	if ev.Type != paystack.EventChargeSuccess || tx.Status != paystack.StatusSuccess {
		log.Debug().Msg("webhook ignored")
		return WebhookResult{}, nil
	}

	lead, err := s.leads.Find(ctx, store.LeadQuery{CorrelationID: tx.CorrelationID, Email: tx.Email})
	if err != nil {
		return WebhookResult{}, err
	}

	if lead.Status != types.LeadPaid {
		if _, err := s.leads.MarkPaid(ctx, lead.CorrelationID, paymentOf(tx)); err != nil {
			return WebhookResult{}, err
		}
	}

	out := WebhookResult{Handled: true, CorrelationID: lead.CorrelationID}
	if !s.verifier.Claim(tx.Reference) {
		out.AlreadyProcessed = true
		return out, nil
	}

	res := s.sendPurchase(ctx, lead.CorrelationID, tx, RequestMeta{})
	out.Tracking = &res
	log.Info().Str("correlation_id", lead.CorrelationID).Str("reference", tx.Reference).Msg("webhook payment applied")
	return out, nil
}

// sendPurchase builds the Purchase envelope from the stored checkout context,
// falling back to the gateway's customer fields when the entry is gone.
func (s *CheckoutService) sendPurchase(ctx context.Context, id string, tx types.Transaction, meta RequestMeta) types.RelayResult {
	log := logging.FromContext(ctx)

	if id == "" {
		id = ident.New()
		log.Warn().Str("reference", tx.Reference).Msg("purchase has no correlation id; browser dedup is not possible")
	}

	contact := pii.Contact{
		Name:  strings.TrimSpace(tx.FirstName + " " + tx.LastName),
		Email: tx.Email,
		Phone: tx.Phone,
	}
	var (
		ud        types.UserData
		sourceURL string
		programme string
		currency  = tx.Currency
	)
	if entry, ok := s.correlations.Get(id); ok {
		ud = entry.UserData
		sourceURL = entry.SourceURL
		programme = entry.Lead.Programme
		if currency == "" {
			currency = entry.Lead.Currency
		}
		if entry.Lead.Email != "" {
			contact = pii.Contact{Name: entry.Lead.Name, Email: entry.Lead.Email, Phone: entry.Lead.Phone}
		}
		s.correlations.Remove(id)
	} else {
		log.Info().Str("correlation_id", id).Msg("checkout data not found; using gateway customer fields")
		ud = s.hasher.UserData(contact)
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	attr, _ := attribution.FromURL(ctx, sourceURL)
	return s.tracker.Track(ctx, types.Envelope{
		EventID:     id,
		EventTime:   s.now().Unix(),
		SourceURL:   sourceURL,
		UserData:    ud,
		Attribution: attr,
		Payload: types.Purchase{
			Currency:    currency,
			Value:       tx.Amount,
			ContentName: programme,
			OrderID:     tx.Reference,
		},
	}, meta, &contact)
}

func paymentOf(tx types.Transaction) types.Payment {
	return types.Payment{
		Reference: tx.Reference,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		PaidAt:    tx.PaidAt,
	}
}
