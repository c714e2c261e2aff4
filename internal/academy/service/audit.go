package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/pii"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
	"github.com/BrandonDHaskell/summer-academy/internal/logging"
)

// Outcome is the result of a best-effort operation. Err is set when OK is
// false and the operation was attempted.
type Outcome struct {
	OK      bool
	Skipped bool
	Err     error
}

type AuditConfig struct {
	// IncludeRawPII copies the unhashed contact fields into the audit row.
	IncludeRawPII bool
}

// AuditLogger mirrors conversion attempts into the audit store. A nil store
// means auditing is not configured and every Record is skipped.
type AuditLogger struct {
	store      store.AuditStore
	includeRaw bool
	now        func() time.Time
}

func NewAuditLogger(s store.AuditStore, cfg AuditConfig) *AuditLogger {
	return &AuditLogger{
		store:      s,
		includeRaw: cfg.IncludeRawPII,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record appends one row for env and its relay result.
func (a *AuditLogger) Record(ctx context.Context, env types.Envelope, res types.RelayResult) Outcome {
	return a.RecordContact(ctx, env, res, nil)
}

// RecordContact is Record plus the raw contact, which is only written when
// raw PII logging is enabled.
func (a *AuditLogger) RecordContact(ctx context.Context, env types.Envelope, res types.RelayResult, c *pii.Contact) Outcome {
	log := logging.FromContext(ctx)
	if a == nil || a.store == nil {
		log.Debug().Str("event_id", env.EventID).Msg("audit store not configured; skipping")
		return Outcome{Skipped: true}
	}

	rec := store.AuditRecord{
		LoggedAt:   a.now(),
		EventName:  string(env.Kind()),
		EventID:    env.EventID,
		SourceURL:  env.SourceURL,
		Envelope:   jsonString(env),
		OK:         res.OK,
		StatusCode: res.Status,
	}
	switch {
	case res.Response != nil:
		rec.Response = jsonString(res.Response)
	case res.Error != "":
		rec.Response = res.Error
	}
	if a.includeRaw && c != nil {
		rec.RawContact = jsonString(map[string]string{
			"name":  c.Name,
			"email": c.Email,
			"phone": c.Phone,
		})
	}

	if err := a.store.AppendAudit(ctx, rec); err != nil {
		log.Warn().Err(err).Str("event_id", env.EventID).Msg("audit append failed")
		return Outcome{Err: err}
	}
	return Outcome{OK: true}
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Tracker relays an envelope and records the attempt. Neither step can fail
// the caller.
type Tracker struct {
	relay *Relay
	audit *AuditLogger
}

func NewTracker(r *Relay, a *AuditLogger) *Tracker {
	return &Tracker{relay: r, audit: a}
}

func (t *Tracker) Track(ctx context.Context, env types.Envelope, meta RequestMeta, c *pii.Contact) types.RelayResult {
	sent, res := t.relay.send(ctx, env, meta)
	t.audit.RecordContact(ctx, sent, res, c)
	return res
}
