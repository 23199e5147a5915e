package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into the
// config (e.g. "batch_size"); Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// knownKinds lists backend kinds this binary ships; unknown kinds are only a
// warning so externally registered backends keep working.
var knownKinds = map[string]struct{}{
	"mongo":    {},
	"postgres": {},
	"sqlite":   {},
}

// Validate performs static validation of a Config. It does not mutate the
// config; it returns a slice of issues that callers may surface in a CLI or
// tests, deciding for themselves whether warnings are fatal.
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "kind",
			Message:  "storage kind must not be empty",
		})
	} else if _, ok := knownKinds[c.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", c.Kind),
		})
	}

	if strings.TrimSpace(c.URI) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "uri",
			Message:  "store connection string must not be empty",
		})
	}
	if strings.TrimSpace(c.Database) == "" && c.Kind == "mongo" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "database",
			Message:  "database name must not be empty for the mongo backend",
		})
	}
	if strings.TrimSpace(c.Collection) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "collection",
			Message:  "collection must not be empty",
		})
	}
	if c.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "batch_size",
			Message:  fmt.Sprintf("batch_size=%d; must be positive", c.BatchSize),
		})
	} else if c.BatchSize > 100_000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "batch_size",
			Message:  fmt.Sprintf("batch_size=%d; very large sub-batches defeat partial-failure isolation", c.BatchSize),
		})
	}

	return issues
}
