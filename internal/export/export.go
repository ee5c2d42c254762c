// Package export loads materialized row sets into a storage backend.
package export

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"datview/internal/metrics"
	"datview/internal/storage"
	"datview/internal/validation"
	"datview/pkg/records"
)

// Logger is the minimal logging interface used by the export engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// DefaultBatchSize is the number of rows per insert statement when LoadSpec
// leaves BatchSize unset.
const DefaultBatchSize = 500

// ridColumn is the row identity column the collector emits first. It becomes
// the destination primary key.
const ridColumn = "_rid"

// LoadSpec describes one table load, typically assembled from CLI flags.
type LoadSpec struct {
	Table      string `json:"table" validate:"required"`
	Schema     string `json:"schema,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty" validate:"omitempty,min=1,max=10000"`
	AutoCreate bool   `json:"auto_create,omitempty"`
}

// Result summarizes a finished load.
type Result struct {
	Table   string
	Rows    int64
	Batches int
}

// Engine streams a collected row set into a Repository.
//
// The zero value is not usable; Repo is required. Backend is the registered
// backend name and only participates in table qualification.
type Engine struct {
	Repo    storage.Repository
	Backend string
	Logger  Logger
}

// Run validates spec, ensures the destination table, and inserts rows in
// batches of spec.BatchSize.
//
// Rows already written stay written when a later batch fails; the returned
// Result carries the counts that made it in either case.
func (e *Engine) Run(ctx context.Context, spec LoadSpec, columns []string, rows []records.Record) (Result, error) {
	if e.Repo == nil {
		return Result{}, fmt.Errorf("export: Repo is required")
	}
	logf := e.logger()

	if msgs := validation.Validate(spec, nil); msgs != nil {
		return Result{}, fmt.Errorf("export: invalid load spec: %s", flattenMessages(msgs))
	}

	table := storage.QualifyTable(e.Backend, spec.Schema, spec.Table)
	res := Result{Table: table}

	tspec := InferTable(table, columns, rows)
	tspec.AutoCreate = spec.AutoCreate

	ddlStart := time.Now()
	err := e.Repo.EnsureTable(ctx, tspec)
	observeStep("ensure_table", ddlStart, err)
	if err != nil {
		logf("stage=ensure_table status=error table=%s err=%v", table, err)
		return res, err
	}
	logf("stage=ensure_table status=ok table=%s duration=%s", table, durMS(ddlStart))

	batchSize := spec.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	insertStart := time.Now()
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		batch := make([][]any, 0, end-start)
		for _, rec := range rows[start:end] {
			batch = append(batch, rowValues(rec, columns))
		}

		n, err := e.Repo.InsertRows(ctx, table, columns, batch)
		res.Rows += n
		if err != nil {
			observeStep("insert_rows", insertStart, err)
			logf("stage=insert status=error table=%s batch=%d err=%v", table, res.Batches, err)
			return res, fmt.Errorf("export: insert batch %d: %w", res.Batches, err)
		}

		res.Batches++
		metrics.IncCounter("datview_batches_total", 1, nil)
		metrics.IncCounter("datview_rows_total", float64(n), metrics.Labels{"kind": "exported"})
	}
	observeStep("insert_rows", insertStart, nil)

	logf("stage=export status=ok table=%s rows=%d batches=%d duration=%s",
		table, res.Rows, res.Batches, durMS(insertStart))
	return res, nil
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

// InferTable derives a destination TableSpec from the column order and the
// values actually present in rows.
//
// Mapping: bool=>boolean, int64=>bigint, float64=>double precision,
// string=>text. Arrays load as their JSON text, so they also map to text, as
// do columns whose values are all nil. A column named "_rid" becomes a
// bigint primary key instead of a regular column.
func InferTable(table string, columns []string, rows []records.Record) storage.TableSpec {
	spec := storage.TableSpec{Name: table}

	for _, col := range columns {
		if col == ridColumn {
			spec.PrimaryKey = &storage.PrimaryKeySpec{Name: ridColumn, Type: "bigint"}
			continue
		}
		spec.Columns = append(spec.Columns, storage.ColumnSpec{
			Name: col,
			Type: inferColumnType(col, rows),
		})
	}
	return spec
}

// inferColumnType picks the SQL type from the first non-nil value in the
// column.
func inferColumnType(col string, rows []records.Record) string {
	for _, rec := range rows {
		switch rec[col].(type) {
		case nil:
			continue
		case bool:
			return "boolean"
		case int64:
			return "bigint"
		case float64:
			return "double precision"
		default:
			return "text"
		}
	}
	return "text"
}

// rowValues projects a record onto the column order. Missing fields become
// nil, which backends bind as SQL NULL.
func rowValues(rec records.Record, columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = rec[c]
	}
	return out
}

// observeStep records the step counter and duration histogram for one
// engine step.
func observeStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := metrics.Labels{"step": step, "status": status}
	metrics.IncCounter("datview_step_total", 1, labels)
	metrics.ObserveHistogram("datview_step_duration_seconds", time.Since(start).Seconds(), labels)
}

func flattenMessages(msgs map[string][]string) string {
	fields := make([]string, 0, len(msgs))
	for f := range msgs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(msgs[f], ", ")))
	}
	return strings.Join(parts, "; ")
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
