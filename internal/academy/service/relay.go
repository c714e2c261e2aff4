package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/logging"
)

// Sender delivers one envelope to the ad platform and returns the decoded
// response body and HTTP status.
type Sender interface {
	Send(ctx context.Context, env types.Envelope) (map[string]any, int, error)
}

// RequestMeta is the network-layer context of the inbound request.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

type RelayConfig struct {
	// TestEventCode is applied to envelopes that carry none.
	TestEventCode string
}

// Relay forwards envelopes to the Conversions API. It never returns an
// error value: every outcome is a types.RelayResult.
type Relay struct {
	sender   Sender
	testCode string
	now      func() time.Time
}

func NewRelay(sender Sender, cfg RelayConfig) *Relay {
	return &Relay{
		sender:   sender,
		testCode: strings.TrimSpace(cfg.TestEventCode),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send validates, enriches and forwards env.
func (r *Relay) Send(ctx context.Context, env types.Envelope, meta RequestMeta) types.RelayResult {
	_, res := r.send(ctx, env, meta)
	return res
}

// send returns the envelope as it was forwarded alongside the result so the
// audit trail records what the vendor actually received.
func (r *Relay) send(ctx context.Context, env types.Envelope, meta RequestMeta) (types.Envelope, types.RelayResult) {
	log := logging.FromContext(ctx)

	if err := env.Validate(); err != nil {
		return env, failed(env, 0, err)
	}
	if r.sender == nil {
		err := apperrors.NewConfigurationError("conversion relay", "META_PIXEL_ID")
		log.Error().Err(err).Msg("conversion relay is not configured")
		return env, failed(env, 0, err)
	}

	env = r.enrich(ctx, env, meta)

	resp, status, err := r.sender.Send(ctx, env)
	if err != nil {
		res := failed(env, status, err)
		res.Response = resp
		logFailure(log, env, err)
		return env, res
	}

	log.Debug().
		Str("event_name", string(env.Kind())).
		Str("event_id", env.EventID).
		Int("status", status).
		Msg("conversion relayed")
	return env, types.RelayResult{OK: true, EventID: env.EventID, Status: status, Response: resp}
}

func (r *Relay) enrich(ctx context.Context, env types.Envelope, meta RequestMeta) types.Envelope {
	if placeholderIP(env.UserData.ClientIP) {
		env.UserData.ClientIP = strings.TrimSpace(meta.ClientIP)
	}
	if strings.TrimSpace(env.UserData.UserAgent) == "" {
		env.UserData.UserAgent = meta.UserAgent
	}
	if env.EventTime <= 0 {
		env.EventTime = r.now().Unix()
	}
	if env.TestEventCode == "" {
		env.TestEventCode = r.testCode
	}

	attr, dropped := env.Attribution.Normalize()
	if len(dropped) > 0 {
		logging.FromContext(ctx).Warn().
			Str("event_id", env.EventID).
			Strs("fields", dropped).
			Msg("dropping non-numeric attribution ids")
	}
	env.Attribution = attr
	return env
}

func placeholderIP(ip string) bool {
	switch strings.ToLower(strings.TrimSpace(ip)) {
	case "", "0.0.0.0", "127.0.0.1", "::1", "unknown", "localhost":
		return true
	}
	return false
}

func failed(env types.Envelope, status int, err error) types.RelayResult {
	return types.RelayResult{
		OK:      false,
		EventID: env.EventID,
		Status:  status,
		Error:   err.Error(),
		Err:     err,
	}
}

func logFailure(log *zerolog.Logger, env types.Envelope, err error) {
	ev := log.Warn()
	if apperrors.Is(err, apperrors.ErrNotConfigured) {
		ev = log.Error()
	}
	ev.Err(err).
		Str("event_name", string(env.Kind())).
		Str("event_id", env.EventID).
		Msg("conversion relay failed")
}
