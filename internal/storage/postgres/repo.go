// Package postgres implements the document store on Postgres using pgx v5.
// Documents are rows in a single-JSONB-column table named after the configured
// collection; the read-path indexes are expression indexes over the JSONB
// fields.
//
// Unordered-insert semantics: Postgres has no server-side "continue past the
// bad row" bulk insert, so InsertMany issues one autocommitted INSERT per
// document. A rejected document becomes a storage.WriteError and its siblings
// still land; only a connection-level failure aborts the call.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sensoringest/internal/storage"
	"sensoringest/pkg/records"
)

// Config holds Postgres repository configuration. The database is part of the
// DSN; Table receives the collection name.
type Config struct {
	DSN   string
	Table string
}

// Repository is a Postgres-backed implementation of storage.Store.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a close function for
// cleanup. Ping fails fast on unreachable servers.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, closeFn, nil
}

// InsertMany writes each document as its own statement. With ordered=true the
// loop stops at the first rejection; with ordered=false it records the
// rejection and continues. Server-reported statement errors (pgconn.PgError)
// are per-document outcomes; anything else means the connection itself failed
// and the call aborts.
func (r *Repository) InsertMany(ctx context.Context, docs []records.Record, ordered bool) (storage.BulkResult, error) {
	out := storage.BulkResult{}
	if len(docs) == 0 {
		return out, nil
	}

	insert := fmt.Sprintf("INSERT INTO %s (doc) VALUES ($1)", pgIdent(r.cfg.Table))
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

		if _, err := r.pool.Exec(ctx, insert, payload); err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				return out, fmt.Errorf("postgres: insert: %w", err)
			}
			out.WriteErrors = append(out.WriteErrors, storage.WriteError{
				Index:   i,
				Message: fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code),
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

// EnsureIndexes creates the document table and its expression indexes. All
// statements use IF NOT EXISTS, so repeated startups are safe.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	table := pgIdent(r.cfg.Table)
	prefix := identPrefix(r.cfg.Table)
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (doc jsonb NOT NULL)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((doc->>'%s'))",
			pgIdent(prefix+"_device_idx"), table, records.FieldDevice),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((doc->>'%s'))",
			pgIdent(prefix+"_ts_idx"), table, records.FieldTS),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((doc->>'%s') ASC, (doc->>'%s') DESC)",
			pgIdent(prefix+"_device_ts_idx"), table, records.FieldDevice, records.FieldTS),
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres: ensure indexes: %w", err)
		}
	}
	return nil
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// identPrefix turns a possibly schema-qualified table name into a flat prefix
// usable in index names ("public.readings" -> "public_readings").
func identPrefix(name string) string { return strings.ReplaceAll(name, ".", "_") }
