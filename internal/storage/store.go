// Package storage contains the store-agnostic document-store contract and the
// backend factory. Concrete backends (mongo, postgres, sqlite) register
// themselves in init; callers construct a Store through New and stay
// backend-agnostic.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sensoringest/pkg/records"
)

// WriteError describes one rejected document within a bulk write. Index is the
// document's position in the submitted slice; Code is backend-specific.
type WriteError struct {
	Index   int
	Code    int
	Message string
}

func (e WriteError) Error() string {
	return fmt.Sprintf("doc %d: %s (code %d)", e.Index, e.Message, e.Code)
}

// BulkResult reports the outcome of one InsertMany call. InsertedCount counts
// documents actually committed; WriteErrors lists per-document rejections.
type BulkResult struct {
	InsertedCount int64
	WriteErrors   []WriteError
}

// Store is the document-store surface the ingestor writes through.
//
// InsertMany semantics: with ordered=false the backend keeps attempting the
// remaining documents after one fails, and reports rejections through
// BulkResult.WriteErrors. A non-nil error means total communication failure
// (nothing about the batch outcome can be trusted); per-document rejections
// alone never produce a non-nil error.
type Store interface {
	InsertMany(ctx context.Context, docs []records.Record, ordered bool) (BulkResult, error)

	// EnsureIndexes idempotently creates the read-path indexes: device asc,
	// ts asc, and the compound (device asc, ts desc).
	EnsureIndexes(ctx context.Context) error

	Close()
}

// Config selects and parameterizes a backend.
type Config struct {
	// Kind selects the registered backend: "mongo", "postgres", or "sqlite".
	Kind string

	// URI is the backend connection string (Mongo URI, pgx DSN, or SQLite path).
	URI string

	// Database is the logical database name. Ignored by SQLite.
	Database string

	// Collection is the collection or table documents are written to.
	Collection string
}

// Factory constructs a Store for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Backends call it from init;
// registering the same kind twice panics to surface wiring mistakes early.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("storage: duplicate backend registration for %q", kind))
	}
	factories[kind] = f
}

// New constructs the Store selected by cfg.Kind. Unknown kinds produce an
// error naming the registered backends.
func New(ctx context.Context, cfg Config) (Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	var registered []string
	if !ok {
		registered = kinds()
	}
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown backend %q (registered: %s)", cfg.Kind, strings.Join(registered, ", "))
	}
	return f(ctx, cfg)
}

// kinds returns the registered backend names, sorted for stable messages.
// Callers must hold mu.
func kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
