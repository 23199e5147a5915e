package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvURI, "")
	t.Setenv(EnvDatabase, "")

	c := FromEnv()
	if c.URI != DefaultURI {
		t.Fatalf("URI = %q, want default %q", c.URI, DefaultURI)
	}
	if c.Database != DefaultDatabase {
		t.Fatalf("Database = %q, want default %q", c.Database, DefaultDatabase)
	}
	if c.Collection != DefaultCollection || c.BatchSize != DefaultBatchSize || c.Kind != DefaultKind {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvURI, "mongodb://db.internal:27017/")
	t.Setenv(EnvDatabase, "telemetry")

	c := FromEnv()
	if c.URI != "mongodb://db.internal:27017/" {
		t.Fatalf("URI = %q", c.URI)
	}
	if c.Database != "telemetry" {
		t.Fatalf("Database = %q", c.Database)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Kind:       "mongo",
		URI:        DefaultURI,
		Database:   DefaultDatabase,
		Collection: DefaultCollection,
		BatchSize:  DefaultBatchSize,
	}

	tests := []struct {
		name       string
		mutate     func(*Config)
		wantErrors int
		wantWarns  int
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "empty_kind", mutate: func(c *Config) { c.Kind = "" }, wantErrors: 1},
		{name: "unknown_kind_warns", mutate: func(c *Config) { c.Kind = "cassandra" }, wantWarns: 1},
		{name: "empty_uri", mutate: func(c *Config) { c.URI = "" }, wantErrors: 1},
		{name: "mongo_requires_database", mutate: func(c *Config) { c.Database = "" }, wantErrors: 1},
		{
			name:   "sqlite_tolerates_empty_database",
			mutate: func(c *Config) { c.Kind = "sqlite"; c.Database = "" },
		},
		{name: "empty_collection", mutate: func(c *Config) { c.Collection = "" }, wantErrors: 1},
		{name: "zero_batch_size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErrors: 1},
		{name: "negative_batch_size", mutate: func(c *Config) { c.BatchSize = -5 }, wantErrors: 1},
		{name: "huge_batch_size_warns", mutate: func(c *Config) { c.BatchSize = 1_000_000 }, wantWarns: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := valid
			tc.mutate(&c)

			var errs, warns int
			for _, iss := range Validate(c) {
				switch iss.Severity {
				case SeverityError:
					errs++
				case SeverityWarning:
					warns++
				}
				if iss.Path == "" || iss.Message == "" {
					t.Fatalf("issue missing path or message: %+v", iss)
				}
			}
			if errs != tc.wantErrors || warns != tc.wantWarns {
				t.Fatalf("errors=%d warnings=%d, want %d/%d (issues: %v)",
					errs, warns, tc.wantErrors, tc.wantWarns, Validate(c))
			}
		})
	}
}
