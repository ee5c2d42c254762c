// Command datdump materializes a .dat container into a dataset file.
//
// The container's raw rows carry no field boundaries of their own; datdump
// applies a serialized schema, decodes every materializable column and writes
// the resulting records as JSON. The schema comes from an explicit -headers
// file or, when that flag is absent, from the header cache entry saved by an
// earlier run.
//
// Output
//
//   - -format json: one indented JSON array of records.
//   - -format ndjson: one record per line, for streaming consumers.
//   - -compress gzip|zstd wraps the output; file output is written through a
//     temp file and renamed into place so partial datasets never land under
//     the final name.
//
// Every record starts with the synthetic _rid column numbering the source
// rows. Each run is tagged with a fresh run id in its log lines.
package main

import (
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
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"datview/internal/config"
	"datview/internal/datfile"
	"datview/internal/headercache"
	"datview/internal/schema"
	"datview/internal/sheet"
	"datview/pkg/records"
)

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	File      string
	Headers   string
	CacheDir  string
	SaveCache bool
	Out       string
	Format    string
	Compress  string
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	os.Exit(run(os.Args[1:], deps{Stdout: os.Stdout, Stderr: os.Stderr}))
}

// run executes the dump and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the container, schema or output could not be processed.
//   - 2: configuration error.
func run(args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
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
		fmt.Fprintf(d.Stderr, "datdump: %v\n", err)
		return 2
	}

	cacheDir := cfg.Cache.Dir
	if rc.CacheDir != "" {
		cacheDir = rc.CacheDir
	}
	store := headercache.NewStore(cacheDir)

	runID := uuid.NewString()
	logger := log.New(d.Stderr, "", log.LstdFlags)
	start := time.Now()

	f, err := datfile.Open(rc.File)
	if err != nil {
		logger.Printf("stage=open status=error run_id=%s err=%v", runID, err)
		return 1
	}

	entries, source, err := loadEntries(rc, store, f)
	if err != nil {
		logger.Printf("stage=schema status=error run_id=%s file=%s err=%v", runID, f.Name, err)
		return 1
	}

	s := sheet.New(f, sheet.Config{
		NumberingStart: cfg.Session.NumberingStart,
		UpdateHeaders: func(f *datfile.File, entries []schema.SerializedHeader) error {
			return store.Update(headercache.IdentityOf(f), entries)
		},
		Log: logger,
	})
	if err := s.ImportSerializedHeaders(entries, sheet.ImportOptions{YieldEvery: cfg.Session.YieldEvery}); err != nil {
		logger.Printf("stage=import status=error run_id=%s file=%s err=%v", runID, f.Name, err)
		return 1
	}
	if rc.SaveCache {
		s.SaveHeadersToFileCache()
	}

	rows, columns, err := s.CollectData()
	if err != nil {
		logger.Printf("stage=collect status=error run_id=%s file=%s err=%v", runID, f.Name, err)
		return 1
	}

	if err := writeDataset(d.Stdout, rc, rows); err != nil {
		logger.Printf("stage=write status=error run_id=%s file=%s err=%v", runID, f.Name, err)
		return 1
	}

	logger.Printf("stage=dump status=ok run_id=%s file=%s schema=%s rows=%d columns=%d format=%s compress=%s duration=%s",
		runID, f.Name, source, len(rows), len(columns), rc.Format, rc.Compress,
		time.Since(start).Truncate(time.Millisecond))
	return 0
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid/missing required flags.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("datdump", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.File, "file", "", "Path of the .dat container to dump")
	fs.StringVar(&cfg.Headers, "headers", "", "JSON schema file; empty consults the header cache")
	fs.StringVar(&cfg.CacheDir, "cache-dir", "", "Header cache directory (default from CACHE_DIR)")
	fs.BoolVar(&cfg.SaveCache, "save-cache", false, "Write the imported schema back to the header cache")
	fs.StringVar(&cfg.Out, "out", "", "Output path; empty writes to stdout")
	fs.StringVar(&cfg.Format, "format", "json", "Output format: json or ndjson")
	fs.StringVar(&cfg.Compress, "compress", "none", "Output compression: none, gzip or zstd")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.File == "" {
		return runConfig{}, errors.New("missing required -file <container>")
	}
	switch cfg.Format {
	case "json", "ndjson":
	default:
		return runConfig{}, fmt.Errorf("-format must be json or ndjson, got %q", cfg.Format)
	}
	switch cfg.Compress {
	case "none", "gzip", "zstd":
	default:
		return runConfig{}, fmt.Errorf("-compress must be none, gzip or zstd, got %q", cfg.Compress)
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

// writeDataset encodes rows to -out, or to stdout when -out is empty.
func writeDataset(stdout io.Writer, rc runConfig, rows []records.Record) error {
	if rc.Out == "" {
		return encodeDataset(stdout, rc, rows)
	}
	return writeFileAtomic(rc.Out, func(w io.Writer) error {
		return encodeDataset(w, rc, rows)
	})
}

func encodeDataset(w io.Writer, rc runConfig, rows []records.Record) error {
	cw, finish, err := compressWriter(w, rc.Compress)
	if err != nil {
		return err
	}
	if err := encodeRows(cw, rc.Format, rows); err != nil {
		return err
	}
	return finish()
}

// compressWriter wraps w per the -compress flag. The returned finish func
// flushes and closes the wrapper, never the underlying writer.
func compressWriter(w io.Writer, compress string) (io.Writer, func() error, error) {
	switch compress {
	case "none":
		return w, func() error { return nil }, nil
	case "gzip":
		zw := gzip.NewWriter(w)
		return zw, zw.Close, nil
	case "zstd":
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("init zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported compression %q", compress)
}

func encodeRows(w io.Writer, format string, rows []records.Record) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "ndjson":
		enc := json.NewEncoder(w)
		for k, row := range rows {
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("encode row %d: %w", k, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported format %q", format)
}

// writeFileAtomic writes through a temp file in the destination directory
// and renames into place on success.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".datdump-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	writeErr := write(tmp)
	closeErr := tmp.Close()

	if writeErr != nil {
		_ = os.Remove(tmpName)
		return writeErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return closeErr
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
