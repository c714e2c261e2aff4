package service

import (
	"context"
	"strings"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/paystack"
)

// Gateway confirms a payment reference with the payment provider.
type Gateway interface {
	Verify(ctx context.Context, ref string) (types.Transaction, error)
}

// PaymentVerifier confirms payments and guards against acting on the same
// reference twice.
//
//	PENDING -> (gateway confirms) -> VERIFIED-UNPROCESSED -> (guard marks) -> PROCESSED
type PaymentVerifier struct {
	gateway       Gateway
	guard         store.PaymentGuard
	webhookSecret string
}

func NewPaymentVerifier(gw Gateway, guard store.PaymentGuard, webhookSecret string) *PaymentVerifier {
	return &PaymentVerifier{gateway: gw, guard: guard, webhookSecret: webhookSecret}
}

// Confirm verifies ref and claims it. fresh is false when ref was already
// processed, in which case the gateway is not called and tx is empty.
func (v *PaymentVerifier) Confirm(ctx context.Context, ref string) (tx types.Transaction, fresh bool, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return types.Transaction{}, false, apperrors.NewValidationError("reference", "is required")
	}
	if v.guard.IsProcessed(ref) {
		return types.Transaction{}, false, nil
	}
	if v.gateway == nil {
		return types.Transaction{}, false, apperrors.NewConfigurationError("payment verifier", "PAYSTACK_SECRET_KEY")
	}

	tx, err = v.gateway.Verify(ctx, ref)
	if err != nil {
		return tx, false, err
	}
	// a concurrent confirmation may have claimed ref while we were verifying
	return tx, v.guard.TryMark(ref), nil
}

// Claim marks ref processed and reports whether this call did so.
func (v *PaymentVerifier) Claim(ref string) bool {
	return v.guard.TryMark(ref)
}

// Authenticate checks a webhook signature over the raw body.
func (v *PaymentVerifier) Authenticate(body []byte, signature string) error {
	if v.webhookSecret == "" {
		return apperrors.NewConfigurationError("payment webhook", "PAYSTACK_WEBHOOK_SECRET")
	}
	if !paystack.ValidSignature(body, signature, v.webhookSecret) {
		return &apperrors.SignatureError{Source: "webhook"}
	}
	return nil
}
