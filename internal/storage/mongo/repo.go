// Package mongo implements the document store on MongoDB using the official
// driver. This is the primary backend: sensor readings are written with
// unordered InsertMany so one rejected document never aborts its siblings, and
// per-document rejections are surfaced as storage.WriteError values instead of
// call-level errors.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sensoringest/internal/storage"
	"sensoringest/pkg/records"
)

// Config holds Mongo repository configuration.
type Config struct {
	URI        string // connection string, e.g. "mongodb://localhost:27017/"
	Database   string
	Collection string
}

// Repository is a MongoDB-backed implementation of storage.Store.
type Repository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewRepository connects to Mongo and returns a Repository plus a close
// function for cleanup. A short ping fails fast on unreachable servers so the
// caller gets a fatal error before any ingestion work starts.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo: ping %s: %w", cfg.URI, err)
	}

	closeFn := func() { _ = client.Disconnect(context.Background()) }
	return &Repository{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, closeFn, nil
}

// InsertMany writes docs in one bulk call. With ordered=false the server keeps
// going past individual rejections; those come back in BulkResult.WriteErrors.
// A returned error means the call as a whole failed (connectivity, topology).
func (r *Repository) InsertMany(ctx context.Context, docs []records.Record, ordered bool) (storage.BulkResult, error) {
	if len(docs) == 0 {
		return storage.BulkResult{}, nil
	}

	payload := make([]any, len(docs))
	for i, d := range docs {
		payload[i] = d
	}

	res, err := r.coll.InsertMany(ctx, payload, options.InsertMany().SetOrdered(ordered))
	out := storage.BulkResult{}
	if res != nil {
		out.InsertedCount = int64(len(res.InsertedIDs))
	}
	if err == nil {
		return out, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		// Not a per-document failure report: nothing about the batch outcome
		// can be trusted.
		return out, fmt.Errorf("mongo: insert many: %w", err)
	}

	for _, we := range bwe.WriteErrors {
		out.WriteErrors = append(out.WriteErrors, storage.WriteError{
			Index:   we.Index,
			Code:    we.Code,
			Message: we.Message,
		})
	}
	if res == nil {
		// Driver gave no result; fall back to attempted minus rejected rather
		// than assuming zero.
		out.InsertedCount = int64(len(docs) - len(bwe.WriteErrors))
	}
	return out, nil
}

// EnsureIndexes creates the read-path indexes. CreateMany is idempotent for
// identical index specs, so repeated startups are safe.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: records.FieldDevice, Value: 1}}},
		{Keys: bson.D{{Key: records.FieldTS, Value: 1}}},
		{Keys: bson.D{{Key: records.FieldDevice, Value: 1}, {Key: records.FieldTS, Value: -1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongo: create indexes: %w", err)
	}
	return nil
}
