// Package cleanse applies the fixed row-quality pipeline to record batches:
//
//  1. duplicate removal, keyed on (ts, device), keep-first
//  2. missing-value rejection on ts and device
//
// The order matters for stats attribution: the missing-value pass only sees
// rows that survived de-duplication. Rows missing either key field cannot be
// keyed and bypass the duplicate pass entirely; they are then dropped (and
// counted) by the missing-value pass.
package cleanse

import (
	"fmt"

	"github.com/zeebo/xxh3"

	"sensoringest/pkg/records"
)

// Stats accumulates drop counters across cleansing passes. Counters only grow;
// a fresh Cleanser is the only way to reset them.
type Stats struct {
	DuplicatesRemoved    int `json:"duplicates_removed"`
	MissingValuesDropped int `json:"missing_values_dropped"`
}

// Add returns the element-wise sum of two snapshots. Callers running one
// Cleanser per chunk use it to fold per-chunk stats into a global total.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		DuplicatesRemoved:    s.DuplicatesRemoved + o.DuplicatesRemoved,
		MissingValuesDropped: s.MissingValuesDropped + o.MissingValuesDropped,
	}
}

// Cleanser owns one cumulative Stats value. It is not safe for concurrent use;
// concurrent chunk loads should either construct one Cleanser each and sum the
// snapshots, or serialize their Cleanse calls.
type Cleanser struct {
	stats Stats
}

// New returns a Cleanser with zeroed stats.
func New() *Cleanser { return &Cleanser{} }

// Stats returns a snapshot copy of the cumulative counters. The Cleanser's
// internal counters are never handed out by reference.
func (c *Cleanser) Stats() Stats { return c.stats }

// Cleanse runs the pipeline over in and returns the survivors as a new batch,
// preserving input order. The input slice is left untouched; surviving Record
// maps are shared with the input, not copied.
//
// Cleansing is idempotent: running the output through Cleanse again drops
// nothing and leaves the stats unchanged.
func (c *Cleanser) Cleanse(in records.Batch) records.Batch {
	deduped := c.dropDuplicates(in.Records)
	kept := c.dropMissing(deduped)
	return records.Batch{Records: kept}
}

// dropDuplicates keeps the first occurrence of each (ts, device) key. Keys are
// hashed with xxh3-128; at 128 bits an accidental collision is not a practical
// concern for batch-sized inputs.
func (c *Cleanser) dropDuplicates(in []records.Record) []records.Record {
	out := make([]records.Record, 0, len(in))
	seen := make(map[xxh3.Uint128]struct{}, len(in))
	for _, rec := range in {
		key, ok := dedupKey(rec)
		if !ok {
			// Not keyable; the missing-value pass decides its fate.
			out = append(out, rec)
			continue
		}
		if _, dup := seen[key]; dup {
			c.stats.DuplicatesRemoved++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// dropMissing rejects records without a usable ts or device value.
func (c *Cleanser) dropMissing(in []records.Record) []records.Record {
	out := make([]records.Record, 0, len(in))
	for _, rec := range in {
		if !rec.Has(records.FieldTS) || !rec.Has(records.FieldDevice) {
			c.stats.MissingValuesDropped++
			continue
		}
		out = append(out, rec)
	}
	return out
}

// dedupKey builds the 128-bit hash of ts and device. ok is false when either
// field is absent or empty, which removes the record from the de-dup domain.
func dedupKey(rec records.Record) (xxh3.Uint128, bool) {
	if !rec.Has(records.FieldTS) || !rec.Has(records.FieldDevice) {
		return xxh3.Uint128{}, false
	}
	ts := stringify(rec[records.FieldTS])
	dev := stringify(rec[records.FieldDevice])

	buf := make([]byte, 0, len(ts)+len(dev)+1)
	buf = append(buf, ts...)
	buf = append(buf, 0x1f) // unlikely separator
	buf = append(buf, dev...)
	return xxh3.Hash128(buf), true
}

// stringify stabilizes key-field values across kinds; reader output is always
// string or nil, but coerced callers may pass typed values.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
