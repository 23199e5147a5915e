package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sensoringest/internal/config"
	"sensoringest/internal/ingest"
	"sensoringest/internal/metrics"
	"sensoringest/internal/metrics/datadog"
	"sensoringest/internal/metrics/prompush"
	"sensoringest/internal/reader"
	"sensoringest/internal/storage"

	// register all backends with the storage factory.
	_ "sensoringest/internal/storage/all"
)

// main is the entry point for the ingest binary. It resolves configuration
// (flag → env → default), opens the document store, ensures indexes, and runs
// either a full-file load, a single chunk load, or a worker-split chunked load.
func main() {
	var (
		cfg = config.FromEnv()

		filePath string
		batchID  string
		full     bool
		startRow int
		endRow   int
		workers  int
		validate bool

		metricsBackendFlg string
		pushGatewayURLFlg string
		dogstatsdAddrFlg  string
	)

	flag.StringVar(&filePath, "file", "", "path to the delimited input file (required)")
	flag.StringVar(&cfg.Kind, "backend", cfg.Kind, "storage backend: mongo, postgres, or sqlite")
	flag.StringVar(&cfg.URI, "uri", cfg.URI, "store connection string (env "+config.EnvURI+")")
	flag.StringVar(&cfg.Database, "db", cfg.Database, "database name (env "+config.EnvDatabase+")")
	flag.StringVar(&cfg.Collection, "collection", cfg.Collection, "collection/table name")
	flag.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "documents per bulk write")
	flag.StringVar(&batchID, "batch-id", "", "batch identifier (default: generated)")
	flag.BoolVar(&full, "full", false, "load the entire file in one pass")
	flag.IntVar(&startRow, "start", 0, "chunk start row (0-based, header excluded)")
	flag.IntVar(&endRow, "end", 0, "chunk end row (exclusive)")
	flag.IntVar(&workers, "workers", 1, "split the file into N concurrently loaded chunks")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&dogstatsdAddrFlg, "dogstatsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fatalf("configuration is invalid")
	}
	if validate {
		log.Printf("configuration is valid")
		os.Exit(0)
	}

	if filePath == "" {
		fatalf("usage: ingest -file <path> [-full | -start N -end M | -workers N]")
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		// Decide Pushgateway URL: flag → env → default.
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		jobName := cfg.Collection
		if jobName == "" {
			jobName = "ingest_job"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "datadog":
		addr := dogstatsdAddrFlg
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}

		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "ingest."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: addr=%v, backend=%v", addr, backendName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	store, err := storage.New(ctx, storage.Config{
		Kind:       cfg.Kind,
		URI:        cfg.URI,
		Database:   cfg.Database,
		Collection: cfg.Collection,
	})
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.EnsureIndexes(ctx); err != nil {
		fatalf("ensure indexes: %v", err)
	}
	if *verbose {
		log.Printf("store ready: backend=%s collection=%s batch_size=%d", cfg.Kind, cfg.Collection, cfg.BatchSize)
	}

	var stats ingest.Stats
	switch {
	case full:
		ing := ingest.New(store, nil, cfg.BatchSize)
		stats, err = ing.LoadFull(ctx, filePath, batchID)

	case endRow > startRow:
		if batchID == "" {
			batchID = uuid.NewString()
		}
		ing := ingest.New(store, nil, cfg.BatchSize)
		stats, err = ing.LoadChunk(ctx, filePath, startRow, endRow, batchID)

	case workers > 1:
		if batchID == "" {
			batchID = uuid.NewString()
		}
		stats, err = loadChunked(ctx, store, cfg.BatchSize, filePath, batchID, workers)

	default:
		fatalf("nothing to do: pass -full, a -start/-end range, or -workers > 1")
	}
	metrics.RecordStage(stats.BatchID, "load", err, time.Since(start))
	if err != nil {
		if ferr := metrics.Flush(); ferr != nil {
			log.Printf("metrics: flush error: %v", ferr)
		}
		fatalf("%v", err)
	}

	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Printf("Final statistics: %s\n", out)

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// loadChunked splits the file into workers contiguous row ranges and loads
// them concurrently. Each worker owns its own Ingestor (and thus its own
// Cleanser), so no cleansing state is shared; per-chunk stats are summed here.
// All chunks share one batch id; documents stay distinguishable through their
// source_rows provenance.
func loadChunked(ctx context.Context, store storage.Store, batchSize int, path, batchID string, workers int) (ingest.Stats, error) {
	total, err := reader.CountRows(path)
	if err != nil {
		return ingest.Stats{}, err
	}
	if total == 0 {
		return ingest.Stats{BatchID: batchID}, nil
	}
	if workers > total {
		workers = total
	}

	chunk := (total + workers - 1) / workers
	log.Printf("ingest: %d rows across %d workers (%d rows per chunk)", total, workers, chunk)

	var (
		mu  sync.Mutex
		sum = ingest.Stats{BatchID: batchID}
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		startRow := w * chunk
		endRow := startRow + chunk
		if endRow > total {
			endRow = total
		}
		g.Go(func() error {
			ing := ingest.New(store, nil, batchSize)
			st, err := ing.LoadChunk(gctx, path, startRow, endRow, batchID)
			if err != nil {
				return err
			}
			mu.Lock()
			sum.RowsRead += st.RowsRead
			sum.RowsAfterCleansing += st.RowsAfterCleansing
			sum.RowsInserted += st.RowsInserted
			sum.Cleansing = sum.Cleansing.Add(st.Cleansing)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ingest.Stats{}, err
	}
	return sum, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
