// Package sqlite implements the document store on SQLite through database/sql
// and the modernc driver. Documents are rows in a single JSON text column;
// indexes use json_extract expressions. SQLite keeps local development and
// tests free of server dependencies.
//
// Unordered-insert semantics mirror the postgres backend: one autocommitted
// INSERT per document, statement-level errors become per-document
// storage.WriteError values, and only context failure aborts the call (an
// embedded database has no connection to lose mid-run).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"

	"sensoringest/internal/storage"
	"sensoringest/pkg/records"
)

// Config holds SQLite repository configuration. DSN is passed straight to
// database/sql, e.g. "file:readings.db" or "file::memory:?cache=shared".
type Config struct {
	DSN   string
	Table string
}

// Repository is a SQLite-backed implementation of storage.Store.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the database and returns a Repository plus a close
// function for cleanup. A short ping fails fast on invalid DSNs.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// InsertMany writes each document as its own statement, tolerating
// per-document failures when ordered=false.
func (r *Repository) InsertMany(ctx context.Context, docs []records.Record, ordered bool) (storage.BulkResult, error) {
	out := storage.BulkResult{}
	if len(docs) == 0 {
		return out, nil
	}

	insert := fmt.Sprintf("INSERT INTO %s (doc) VALUES (?)", quoteIdent(r.cfg.Table))
	for i, d := range docs {
		payload, err := json.Marshal(d)
		if err != nil {
			out.WriteErrors = append(out.WriteErrors, storage.WriteError{
				Index: i, Message: fmt.Sprintf("encode document: %v", err),
			})
			if ordered {
				return out, nil
			}
			continue
		}

		if _, err := r.db.ExecContext(ctx, insert, string(payload)); err != nil {
			if ctx.Err() != nil {
				return out, fmt.Errorf("sqlite: insert: %w", ctx.Err())
			}
			out.WriteErrors = append(out.WriteErrors, storage.WriteError{
				Index:   i,
				Code:    sqliteCode(err),
				Message: err.Error(),
			})
			if ordered {
				return out, nil
			}
			continue
		}
		out.InsertedCount++
	}
	return out, nil
}

// EnsureIndexes creates the document table and its json_extract indexes. All
// statements use IF NOT EXISTS, so repeated startups are safe.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	table := quoteIdent(r.cfg.Table)
	prefix := r.cfg.Table
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (doc TEXT NOT NULL)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (json_extract(doc, '$.%s'))",
			quoteIdent(prefix+"_device_idx"), table, records.FieldDevice),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (json_extract(doc, '$.%s'))",
			quoteIdent(prefix+"_ts_idx"), table, records.FieldTS),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (json_extract(doc, '$.%s') ASC, json_extract(doc, '$.%s') DESC)",
			quoteIdent(prefix+"_device_ts_idx"), table, records.FieldDevice, records.FieldTS),
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: ensure indexes: %w", err)
		}
	}
	return nil
}

// sqliteCode extracts the numeric SQLite result code when available.
func sqliteCode(err error) int {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// quoteIdent safely quotes a SQLite identifier.
func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
