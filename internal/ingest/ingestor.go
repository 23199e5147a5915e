// Package ingest orchestrates the cleanse-then-load pipeline: read a row
// range, cleanse it, stamp provenance, and write the survivors to the document
// store in bounded sub-batches with unordered semantics.
//
// Failure model: a sub-batch in which individual documents are rejected is a
// partial success — the rejections are counted, a bounded sample is logged,
// and the run continues. Only two conditions abort a call: the source file
// cannot be read, or the store cannot be communicated with at all.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"sensoringest/internal/cleanse"
	"sensoringest/internal/metrics"
	"sensoringest/internal/reader"
	"sensoringest/internal/storage"
	"sensoringest/pkg/records"
)

// DefaultBatchSize bounds one store write when the caller does not configure
// a sub-batch size.
const DefaultBatchSize = 1000

// maxLoggedWriteErrors bounds the per-sub-batch error sample in logs.
const maxLoggedWriteErrors = 3

// Stats is the immutable result of one ingestion call.
//
// Invariant: RowsInserted <= RowsAfterCleansing <= RowsRead. For chunk loads
// RowsRead is the requested range size (end-start); for full loads it is the
// number of data rows encountered in the file, malformed rows included.
type Stats struct {
	RowsRead           int           `json:"rows_read"`
	RowsAfterCleansing int           `json:"rows_after_cleansing"`
	RowsInserted       int           `json:"rows_inserted"`
	Cleansing          cleanse.Stats `json:"cleansing_stats"`
	BatchID            string        `json:"batch_id"`
}

// Ingestor drives the pipeline against one Store. A single Ingestor runs its
// calls sequentially; concurrent chunk workers should construct one Ingestor
// (and, through it, one Cleanser) each and sum the stats.
type Ingestor struct {
	store     storage.Store
	cleanser  *cleanse.Cleanser
	batchSize int
}

// New constructs an Ingestor writing through store.
//
// The cleanser argument makes stats scoping an explicit choice: pass nil for a
// private Cleanser whose counters cover only this Ingestor's calls, or pass a
// shared Cleanser to accumulate totals across several sequential Ingestors.
// batchSize <= 0 selects DefaultBatchSize.
func New(store storage.Store, cleanser *cleanse.Cleanser, batchSize int) *Ingestor {
	if cleanser == nil {
		cleanser = cleanse.New()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Ingestor{store: store, cleanser: cleanser, batchSize: batchSize}
}

// LoadChunk ingests the data rows in [startRow, endRow) of path. The rows
// actually read may fall short of the request near EOF; RowsRead still
// reports the requested size so distributed callers can reconcile chunk plans.
func (ing *Ingestor) LoadChunk(ctx context.Context, path string, startRow, endRow int, batchID string) (Stats, error) {
	nrows := endRow - startRow
	if nrows < 0 {
		nrows = 0
	}
	log.Printf("ingest: loading chunk rows %d-%d from %s", startRow, endRow, path)

	res, err := reader.ReadRange(ctx, path, startRow, endRow)
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: read chunk: %w", err)
	}
	if res.Malformed > 0 {
		log.Printf("ingest: skipped %d malformed rows in %d-%d", res.Malformed, startRow, endRow)
		metrics.RecordRows(batchID, "malformed", int64(res.Malformed))
	}

	meta := provenance(batchID, fmt.Sprintf("%d-%d", startRow, endRow))
	return ing.run(ctx, res.Batch, meta, batchID, nrows)
}

// LoadFull ingests every data row of path. An empty batchID generates one
// from the wall clock with second resolution: full_<YYYYMMDD_HHMMSS>.
func (ing *Ingestor) LoadFull(ctx context.Context, path, batchID string) (Stats, error) {
	if batchID == "" {
		batchID = time.Now().Format("full_20060102_150405")
	}
	log.Printf("ingest: loading full file %s (batch %s)", path, batchID)

	res, err := reader.ReadAll(ctx, path)
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: read full: %w", err)
	}
	if res.Malformed > 0 {
		log.Printf("ingest: skipped %d malformed rows in %s", res.Malformed, path)
		metrics.RecordRows(batchID, "malformed", int64(res.Malformed))
	}

	meta := provenance(batchID, "") // full loads carry no source_rows
	return ing.run(ctx, res.Batch, meta, batchID, res.Batch.Len()+res.Malformed)
}

// run executes cleanse → annotate → batched unordered writes and assembles
// the final statistics.
func (ing *Ingestor) run(ctx context.Context, in records.Batch, meta map[string]any, batchID string, rowsRead int) (Stats, error) {
	before := ing.cleanser.Stats()
	cleaned := ing.cleanser.Cleanse(in)
	after := ing.cleanser.Stats()
	log.Printf("ingest: cleansing complete: %d -> %d rows", in.Len(), cleaned.Len())

	metrics.RecordRows(batchID, "read", int64(rowsRead))
	metrics.RecordRows(batchID, "duplicates_removed", int64(after.DuplicatesRemoved-before.DuplicatesRemoved))
	metrics.RecordRows(batchID, "missing_dropped", int64(after.MissingValuesDropped-before.MissingValuesDropped))

	docs := annotate(cleaned, meta)

	var inserted, writeErrs, batches int64
	for i := 0; i < len(docs); i += ing.batchSize {
		end := i + ing.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		sub := docs[i:end]

		res, err := ing.store.InsertMany(ctx, sub, false)
		inserted += res.InsertedCount
		batches++
		if err != nil {
			return Stats{}, fmt.Errorf("ingest: write sub-batch %d-%d: %w", i, end, err)
		}
		if n := len(res.WriteErrors); n > 0 {
			writeErrs += int64(n)
			sample := res.WriteErrors
			if len(sample) > maxLoggedWriteErrors {
				sample = sample[:maxLoggedWriteErrors]
			}
			log.Printf("ingest: sub-batch %d-%d: %d write errors (sample: %v)", i, end, n, sample)
		}
	}

	metrics.RecordRows(batchID, "inserted", inserted)
	metrics.RecordRows(batchID, "write_errors", writeErrs)
	metrics.RecordBatches(batchID, batches)

	stats := Stats{
		RowsRead:           rowsRead,
		RowsAfterCleansing: cleaned.Len(),
		RowsInserted:       int(inserted),
		Cleansing:          ing.cleanser.Stats(),
		BatchID:            batchID,
	}
	log.Printf("ingest: batch complete: %+v", stats)
	return stats, nil
}

// provenance builds the metadata block shared by every document of one
// ingestion call. ingested_at and batch_id are fixed here, before the write
// loop, so all documents of the call carry identical values.
func provenance(batchID, sourceRows string) map[string]any {
	meta := map[string]any{
		"ingested_at": time.Now(),
		"batch_id":    batchID,
	}
	if sourceRows != "" {
		meta["source_rows"] = sourceRows
	}
	return meta
}

// annotate returns write-ready documents: each record is cloned and given its
// own copy of the metadata block, so no document can corrupt a sibling's
// provenance through aliasing.
func annotate(batch records.Batch, meta map[string]any) []records.Record {
	docs := make([]records.Record, batch.Len())
	for i, rec := range batch.Records {
		doc := rec.Clone()
		mm := make(map[string]any, len(meta))
		for k, v := range meta {
			mm[k] = v
		}
		doc[records.FieldMetadata] = mm
		docs[i] = doc
	}
	return docs
}
