package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	dbpkg "github.com/BrandonDHaskell/summer-academy/internal/db"
)

type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Writer) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

func (s *AuditStore) AppendAudit(ctx context.Context, rec store.AuditRecord) error {
	if rec.LoggedAt.IsZero() {
		rec.LoggedAt = time.Now().UTC()
	}
	var ok int
	if rec.OK {
		ok = 1
	}
	var status any
	if rec.StatusCode != 0 {
		status = rec.StatusCode
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO conversion_audit(
  logged_at_ms, event_name, event_id, source_url, envelope_json, ok, status_code, response_json, raw_contact
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.LoggedAt.UTC().UnixMilli(), rec.EventName, rec.EventID, nullString(rec.SourceURL),
			rec.Envelope, ok, status, nullString(rec.Response), nullString(rec.RawContact),
		); err != nil {
			return fmt.Errorf("AppendAudit insert: %w", err)
		}
		return nil
	})
}

// ListByEvent returns the audit rows for one correlation id, oldest first.
func (s *AuditStore) ListByEvent(ctx context.Context, eventID string) ([]store.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT logged_at_ms, event_name, event_id, source_url, envelope_json, ok, status_code, response_json, raw_contact
FROM conversion_audit
WHERE event_id = ?
ORDER BY id;
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("ListByEvent: %w", err)
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		var (
			rec                   store.AuditRecord
			loggedMs              int64
			ok                    int
			status                sql.NullInt64
			src, resp, rawContact sql.NullString
		)
		if err := rows.Scan(&loggedMs, &rec.EventName, &rec.EventID, &src, &rec.Envelope, &ok, &status, &resp, &rawContact); err != nil {
			return nil, fmt.Errorf("ListByEvent scan: %w", err)
		}
		rec.LoggedAt = time.UnixMilli(loggedMs).UTC()
		rec.OK = ok == 1
		rec.StatusCode = int(status.Int64)
		rec.SourceURL = src.String
		rec.Response = resp.String
		rec.RawContact = rawContact.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes audit rows logged before cutoff.
func (s *AuditStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM conversion_audit WHERE logged_at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
