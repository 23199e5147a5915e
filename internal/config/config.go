// Package config defines the ingestion tool's configuration model.
//
// Resolution order for every knob is flag → environment → built-in default;
// the flag layer lives in cmd/ingest, this package supplies the environment
// and default layers. It stays intentionally small: a flat struct, explicit
// defaults, and a static Validate linter returning issues rather than
// panicking or logging.
package config

import "os"

// Built-in defaults, used when neither flag nor environment provides a value.
const (
	DefaultURI        = "mongodb://localhost:27017/"
	DefaultDatabase   = "sensor_data"
	DefaultCollection = "sensor_readings"
	DefaultBatchSize  = 1000
	DefaultKind       = "mongo"
)

// Environment variables consulted by FromEnv.
const (
	EnvURI      = "MONGO_URI"
	EnvDatabase = "MONGO_DB"
)

// Config parameterizes one ingestion run.
type Config struct {
	// Kind selects the storage backend ("mongo", "postgres", "sqlite").
	Kind string

	// URI is the store connection string (Mongo URI, pgx DSN, SQLite path).
	URI string

	// Database is the logical database name; ignored by backends whose DSN
	// already names one.
	Database string

	// Collection is the collection or table documents are written to.
	Collection string

	// BatchSize bounds one bulk write to the store.
	BatchSize int
}

// FromEnv returns a Config populated from the environment with built-in
// defaults filled in.
func FromEnv() Config {
	return Config{
		Kind:       DefaultKind,
		URI:        envOr(EnvURI, DefaultURI),
		Database:   envOr(EnvDatabase, DefaultDatabase),
		Collection: DefaultCollection,
		BatchSize:  DefaultBatchSize,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
