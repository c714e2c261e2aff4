package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store/memory"
	sheetstore "github.com/BrandonDHaskell/summer-academy/internal/academy/store/sheets"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store/sqlite"
	"github.com/BrandonDHaskell/summer-academy/internal/config"
	"github.com/BrandonDHaskell/summer-academy/internal/db"
	"github.com/BrandonDHaskell/summer-academy/internal/sheets"
)

type stores struct {
	leads         store.LeadStore
	audit         store.AuditStore
	auditPrunable store.Prunable
	closers       []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores selects the lead and audit backends. The spreadsheet backend
// keeps no local retention; sqlite and memory audit logs are pruned.
func openStores(ctx context.Context, cfg config.Config, httpClient *http.Client, logger zerolog.Logger) (*stores, error) {
	switch cfg.LeadBackend {
	case "sheets":
		if cfg.SheetAPIURL == "" {
			return nil, errors.New("LEAD_BACKEND=sheets requires SHEET_API_URL")
		}
		client := sheets.New(cfg.SheetAPIURL, cfg.SheetAPIKey, sheets.WithHTTPClient(httpClient))
		return &stores{
			leads: sheetstore.NewLeadStore(client, cfg.SheetLeadsTab),
			audit: sheetstore.NewAuditStore(client, cfg.SheetAuditTab),
		}, nil

	case "memory":
		logger.Warn().Msg("using in-memory lead store; leads are lost on restart")
		audit := memory.NewAuditStore()
		return &stores{leads: memory.NewLeadStore(), audit: audit, auditPrunable: audit}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, err
	}
	writer := db.NewWriter(conn)
	audit := sqlite.NewAuditStore(conn, writer)

	s := &stores{
		leads:         sqlite.NewLeadStore(conn, writer),
		audit:         audit,
		auditPrunable: audit,
	}
	// writer drains before the connection closes
	s.closers = append(s.closers, func() { _ = conn.Close() }, writer.Close)
	return s, nil
}
