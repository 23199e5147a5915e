// Package records defines the record and batch shapes shared by the reader,
// cleanser, and storage layers.
//
// A Record is a loosely-typed mapping of field name to value. Values are kept
// to a small closed set of kinds so that every storage backend can encode them
// without reflection surprises:
//
//	string, float64, int64, time.Time, nil
//
// The reader produces string or nil values only; typed values appear when a
// caller coerces them before ingestion. Nested maps are permitted for the
// single well-known "_metadata" field attached by the ingestor.
package records

import "time"

// Well-known field names. Every sensor-reading file must carry at least these
// two columns; everything else is passed through unmodified.
const (
	FieldTS     = "ts"
	FieldDevice = "device"

	// FieldMetadata is the reserved provenance field attached by the ingestor.
	FieldMetadata = "_metadata"
)

// Record is one sensor reading: a map of column name to value.
type Record map[string]any

// Clone returns a shallow-per-field copy of the record. Top-level keys are
// copied into a fresh map; values of map type (the _metadata block) are copied
// one level deep so that records never alias each other's metadata.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if m, ok := v.(map[string]any); ok {
			mm := make(map[string]any, len(m))
			for mk, mv := range m {
				mm[mk] = mv
			}
			out[k] = mm
			continue
		}
		out[k] = v
	}
	return out
}

// Has reports whether field is present with a usable (non-nil, non-empty
// string) value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}

// Timestamp reserved for callers that coerce ts into time.Time before write;
// returns the zero time when ts is absent or not a time.Time.
func (r Record) Timestamp() time.Time {
	if t, ok := r[FieldTS].(time.Time); ok {
		return t
	}
	return time.Time{}
}

// Batch is an ordered sequence of records moving through the pipeline as a
// unit. It has no identity beyond its contents.
type Batch struct {
	Records []Record
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.Records) }

// Clone returns a batch whose records are independent copies of the
// originals. Used where a stage must not mutate its input.
func (b Batch) Clone() Batch {
	out := Batch{Records: make([]Record, len(b.Records))}
	for i, r := range b.Records {
		out.Records[i] = r.Clone()
	}
	return out
}
