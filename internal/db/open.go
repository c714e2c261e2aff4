// Package db opens the local SQLite database used when the spreadsheet
// backend is not configured, applies embedded migrations and serializes
// writes through a single goroutine.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory
	// database named by MemoryName.
	Path       string
	MemoryName string
}

// Open connects, pings and migrates the database described by cfg.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// SQLite allows one writer; keep the pool at one connection so the
	// in-memory variant is not dropped between queries either.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func dataSource(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./data/academy.db"
	}
	if path == ":memory:" {
		name := cfg.MemoryName
		if name == "" {
			name = "academy"
		}
		return fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", name, pragmas), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir db dir: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", path, pragmas), nil
}
