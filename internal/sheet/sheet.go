// Package sheet maintains the working state of one open data file: the
// ordered state-column sequence and the typed header list, two synchronized
// views over the same byte range.
//
// A sheet is single-writer. Import and the byte-view toggles never edit the
// column sequence in place: every change builds a fresh slice and installs
// it under a new version, so a reader holding a previously returned slice
// keeps a consistent snapshot. Callers must not run two mutating operations
// concurrently; no internal locking is provided.
package sheet

import (
	"datview/internal/colstat"
	"datview/internal/datfile"
	"datview/internal/schema"
)

// Logger is the minimal logging interface used by the sheet.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// UpdateHeadersFn persists a file's serialized headers. The header cache
// provides the production implementation; tests inject their own.
type UpdateHeadersFn func(f *datfile.File, entries []schema.SerializedHeader) error

// Config carries the sheet's injected settings and collaborator seams.
type Config struct {
	// NumberingStart offsets the wrapped tick labels of state columns. It
	// is passed in explicitly; display preferences are not package state.
	NumberingStart int

	// UpdateHeaders receives the serialized header list on save. Optional.
	UpdateHeaders UpdateHeadersFn

	// Log receives progress lines. Optional.
	Log Logger
}

// Sheet owns the state-column sequence and the header list for one file.
type Sheet struct {
	file  *datfile.File
	stats []colstat.ColumnStat
	cfg   Config

	version uint64
	cols    []StateColumn
	headers []*schema.Header
}

// New analyzes f and builds a sheet with every byte column still raw.
func New(f *datfile.File, cfg Config) *Sheet {
	s := &Sheet{file: f, cfg: cfg}
	s.Rebuild(colstat.Analyze(f))
	return s
}

// Rebuild replaces the statistics snapshot and rebuilds the projection from
// scratch. Existing headers are dropped: the raw sequence is defined by its
// statistics, and headers imported against old statistics may no longer
// validate against new ones.
func (s *Sheet) Rebuild(stats []colstat.ColumnStat) {
	s.stats = stats
	s.headers = nil
	s.install(buildColumns(stats, s.file.Memsize, s.cfg.NumberingStart))
}

// File returns the underlying data file.
func (s *Sheet) File() *datfile.File { return s.file }

// Stats returns the statistics snapshot the projection was built from.
func (s *Sheet) Stats() []colstat.ColumnStat { return s.stats }

// Version identifies the current projection; it bumps on every install.
func (s *Sheet) Version() uint64 { return s.version }

// Columns returns the current projection. Callers must treat the slice as
// read-only; mutating operations replace it rather than edit it.
func (s *Sheet) Columns() []StateColumn { return s.cols }

// Headers returns the committed header list in offset order.
func (s *Sheet) Headers() []*schema.Header { return s.headers }

// SerializedHeaders flattens the current header list into wire entries,
// gaps included.
func (s *Sheet) SerializedHeaders() ([]schema.SerializedHeader, error) {
	hs := make([]schema.Header, len(s.headers))
	for i, h := range s.headers {
		hs[i] = *h
	}
	return schema.SerializeHeaders(hs, s.file.RowLength)
}

// SaveHeadersToFileCache serializes the current headers through the
// configured persistence sink. Sink failures are logged, not returned.
func (s *Sheet) SaveHeadersToFileCache() {
	if s.cfg.UpdateHeaders == nil {
		return
	}
	entries, err := s.SerializedHeaders()
	if err != nil {
		s.logf("stage=save_headers status=error err=%v", err)
		return
	}
	if err := s.cfg.UpdateHeaders(s.file, entries); err != nil {
		s.logf("stage=save_headers status=error err=%v", err)
		return
	}
	s.logf("stage=save_headers status=ok entries=%d", len(entries))
}

// install replaces the projection and bumps the version.
func (s *Sheet) install(cols []StateColumn) {
	s.cols = cols
	s.version++
}

func (s *Sheet) logf(format string, v ...any) {
	if s.cfg.Log == nil {
		return
	}
	s.cfg.Log.Printf(format, v...)
}
