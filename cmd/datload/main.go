// Command datload materializes a .dat container and loads the records into
// a database.
//
// The load pipeline is the dump pipeline with a storage sink: apply a
// serialized schema (from -headers or the header cache), collect the
// materialized records, ensure the destination table exists and insert in
// batches. A missing destination table is created from the collected
// dataset, with the synthetic _rid column as primary key.
//
// # DSN overrides
//
// The backend is chosen with -backend (default from DB_BACKEND). The
// connection string resolves with strict precedence:
//
//  1. -dsn flag
//  2. DSN env var (DATABASE_URL is also accepted)
//  3. DSN_* component env vars (DSN_HOST, DSN_PORT, DSN_USER, DSN_PASSWORD,
//     DSN_DB, plus DSN_SSLMODE for postgres, DSN_ENCRYPT for mssql and
//     DSN_SQLITE for sqlite), with optional DSN_PARAMS appended
//
// # Metrics
//
// -metrics (or METRICS_ENABLED=true) installs the Datadog backend; step
// durations and row counters are flushed once more on exit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"datview/internal/config"
	"datview/internal/datfile"
	"datview/internal/export"
	"datview/internal/headercache"
	"datview/internal/metrics"
	"datview/internal/metrics/datadog"
	"datview/internal/schema"
	"datview/internal/sheet"
	"datview/internal/storage"

	// register all backends with the storage factory.
	// config selects which one to use but support for all of them is built in.
	_ "datview/internal/storage/all"
)

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject a fake repository and metrics factory, capture
//     stdout/stderr.
//   - Alternate runtimes: swap the storage or metrics wiring.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	OpenRepo       func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (metrics.Backend, error)
}

// runConfig holds the parsed flags for a run. Zero values defer to the
// loaded configuration.
type runConfig struct {
	File     string
	Headers  string
	CacheDir string
	Backend  string
	DSN      string
	Table    string
	DBSchema string
	Batch    int
	Metrics  bool
	Timeout  time.Duration
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		OpenRepo: storage.New,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (metrics.Backend, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
	})
	os.Exit(code)
}

// run executes the load and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the container, schema or load could not be processed.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.OpenRepo == nil {
		fmt.Fprintln(d.Stderr, "internal error: OpenRepo is nil")
		return 2
	}
	if d.BackendFactory == nil {
		fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
		return 2
	}

	rc, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	// A .env in the working directory is a local-run convenience; absence
	// is the normal case.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(d.Stderr, "datload: %v\n", err)
		return 2
	}

	// Flags win over loaded configuration.
	backend := cfg.DB.Backend
	if rc.Backend != "" {
		backend = rc.Backend
	}
	batch := cfg.Export.BatchSize
	if rc.Batch > 0 {
		batch = rc.Batch
	}
	dbSchema := cfg.Export.Schema
	if rc.DBSchema != "" {
		dbSchema = rc.DBSchema
	}
	timeout := cfg.Export.Timeout
	if rc.Timeout > 0 {
		timeout = rc.Timeout
	}
	cacheDir := cfg.Cache.Dir
	if rc.CacheDir != "" {
		cacheDir = rc.CacheDir
	}

	dsn, err := cfg.DB.ResolveDSN(backend, rc.DSN)
	if err != nil {
		fmt.Fprintf(d.Stderr, "datload: resolve DSN: %v\n", err)
		return 2
	}

	runID := uuid.NewString()
	logger := log.New(d.Stderr, "", log.LstdFlags)
	start := time.Now()

	f, err := datfile.Open(rc.File)
	if err != nil {
		logger.Printf("stage=open status=error run_id=%s err=%v", runID, err)
		return 1
	}

	store := headercache.NewStore(cacheDir)
	entries, source, err := loadEntries(rc, store, f)
	if err != nil {
		logger.Printf("stage=schema status=error run_id=%s file=%s err=%v", runID, f.Name, err)
		return 1
	}

	s := sheet.New(f, sheet.Config{
		NumberingStart: cfg.Session.NumberingStart,
		Log:            logger,
	})
	if err := s.ImportSerializedHeaders(entries, sheet.ImportOptions{YieldEvery: cfg.Session.YieldEvery}); err != nil {
		logger.Printf("stage=import status=error run_id=%s file=%s err=%v", runID, f.Name, err)
		return 1
	}

	rows, columns, err := s.CollectData()
	if err != nil {
		logger.Printf("stage=collect status=error run_id=%s file=%s err=%v", runID, f.Name, err)
		return 1
	}

	if rc.Metrics || cfg.Metrics.Enabled {
		tags := append(datadog.ParseTagsCSV(cfg.Metrics.Tags), "tool:datload")
		b, err := d.BackendFactory(ctx, "datload", tags, cfg.Metrics.FlushInterval)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datload: metrics backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(b)
		defer func() {
			_ = metrics.Flush()
			_ = b.Close()
			metrics.SetBackend(nil)
		}()
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	repo, err := d.OpenRepo(ctx, storage.Config{Backend: backend, DSN: dsn, Schema: dbSchema})
	if err != nil {
		logger.Printf("stage=connect status=error run_id=%s backend=%s err=%v", runID, backend, err)
		return 1
	}
	defer repo.Close()

	eng := export.Engine{Repo: repo, Backend: backend, Logger: logger}
	res, err := eng.Run(ctx, export.LoadSpec{
		Table:      rc.Table,
		Schema:     dbSchema,
		BatchSize:  batch,
		AutoCreate: true,
	}, columns, rows)
	if err != nil {
		logger.Printf("stage=load status=error run_id=%s table=%s err=%v", runID, rc.Table, err)
		return 1
	}

	logger.Printf("stage=load status=ok run_id=%s file=%s schema=%s backend=%s duration=%s",
		runID, f.Name, source, backend, time.Since(start).Truncate(time.Millisecond))
	fmt.Fprintf(d.Stdout, "loaded table=%s rows=%d batches=%d\n", res.Table, res.Rows, res.Batches)
	return 0
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid/missing required flags.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("datload", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.File, "file", "", "Path of the .dat container to load")
	fs.StringVar(&cfg.Headers, "headers", "", "JSON schema file; empty consults the header cache")
	fs.StringVar(&cfg.CacheDir, "cache-dir", "", "Header cache directory (default from CACHE_DIR)")
	fs.StringVar(&cfg.Backend, "backend", "", "Storage backend: postgres, sqlite or mssql (default from DB_BACKEND)")
	fs.StringVar(&cfg.DSN, "dsn", "", "Full connection string; overrides DSN and DSN_* variables")
	fs.StringVar(&cfg.Table, "table", "", "Destination table, optionally schema-qualified")
	fs.StringVar(&cfg.DBSchema, "db-schema", "", "Destination schema (default from EXPORT_SCHEMA)")
	fs.IntVar(&cfg.Batch, "batch", 0, "Rows per INSERT batch (default from EXPORT_BATCH_SIZE)")
	fs.BoolVar(&cfg.Metrics, "metrics", false, "Enable the Datadog metrics backend (METRICS_ENABLED=true also enables)")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "Bound for the whole load (default from EXPORT_TIMEOUT)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.File == "" {
		return runConfig{}, errors.New("missing required -file <container>")
	}
	if cfg.Table == "" {
		return runConfig{}, errors.New("missing required -table <name>")
	}
	if cfg.Batch < 0 {
		return runConfig{}, errors.New("-batch must be >= 0")
	}
	if cfg.Timeout < 0 {
		return runConfig{}, errors.New("-timeout must be >= 0")
	}

	return cfg, nil
}

// loadEntries resolves the schema for a container: an explicit -headers file
// wins, otherwise the header cache is consulted under the container's
// identity. The returned source is "file" or "cache" for logging.
func loadEntries(rc runConfig, store *headercache.Store, f *datfile.File) ([]schema.SerializedHeader, string, error) {
	if rc.Headers != "" {
		entries, err := readHeadersFile(rc.Headers)
		if err != nil {
			return nil, "", err
		}
		return entries, "file", nil
	}
	entries, err := store.Load(headercache.IdentityOf(f))
	if err != nil {
		if errors.Is(err, headercache.ErrNotCached) {
			return nil, "", fmt.Errorf("%w; pass -headers to import a schema first", err)
		}
		return nil, "", err
	}
	return entries, "cache", nil
}

// readHeadersFile reads a JSON array of serialized headers.
func readHeadersFile(path string) ([]schema.SerializedHeader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}
	var entries []schema.SerializedHeader
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse headers %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}
