package sheet

import (
	"errors"
	"fmt"

	"datview/internal/decode"
	"datview/internal/schema"
)

// ErrSchemaInvalid flags a serialized header whose declared type or length
// is incompatible with the file's byte statistics. Import stops at the
// first offending entry; match with errors.Is.
var ErrSchemaInvalid = errors.New("sheet: imported schema is invalid")

// defaultYieldEvery is the number of entries an import processes between
// yield points when the caller does not choose a budget.
const defaultYieldEvery = 64

// ImportOptions tunes the cooperative scheduling of an import run.
type ImportOptions struct {
	// YieldEvery is the number of entries processed between yields.
	// Zero means defaultYieldEvery.
	YieldEvery int

	// Yield runs at each yield point when set. Interactive hosts use it to
	// hand control back between steps; tests use it to observe progress.
	// There is no cancellation: a started import always runs to completion
	// or to its first failure.
	Yield func()
}

// importState is the whole resume state of a suspended import: the byte
// offset accumulated so far and the index of the next entry to consume.
type importState struct {
	offset int
	next   int
}

// ImportSerializedHeaders applies a serialized schema to the sheet.
//
// Entries are consumed strictly in order; each starts at the byte offset
// where the previous one ended, so reordering entries shifts everything
// after the move. Nameless entries advance the offset without creating a
// header. A named entry is validated against the statistics, promoted into
// a committed header and, when its kind is materializable, eagerly decoded
// and collapsed out of the projection.
//
// The first invalid entry aborts the run with ErrSchemaInvalid. Entries
// committed earlier in the run stay committed, collapsed state included:
// the sheet is left partially migrated but order-consistent, and the caller
// decides whether to keep it or rebuild from statistics.
func (s *Sheet) ImportSerializedHeaders(entries []schema.SerializedHeader, opts ImportOptions) error {
	every := opts.YieldEvery
	if every <= 0 {
		every = defaultYieldEvery
	}
	overlay := buildOverlay(s.stats, s.file.Memsize)

	st := importState{}
	for st.next < len(entries) {
		if err := s.importStep(&st, entries, overlay); err != nil {
			s.logf("stage=import status=error entry=%d err=%v", st.next-1, err)
			return err
		}
		if opts.Yield != nil && st.next < len(entries) && st.next%every == 0 {
			opts.Yield()
		}
	}
	s.logf("stage=import status=ok entries=%d headers=%d columns=%d",
		len(entries), len(s.headers), len(s.cols))
	return nil
}

// importStep consumes exactly one serialized entry, advancing st in place.
// Keeping the loop body a step function makes the sequential offset
// accumulation explicit: resuming with the same state continues the same
// run, which is what lets the driver yield between steps.
func (s *Sheet) importStep(st *importState, entries []schema.SerializedHeader, overlay []ColumnOverlay) error {
	i := st.next
	e := entries[i]
	st.next++

	length := schema.EntryLength(e, s.file.Memsize)
	if e.Name == nil {
		st.offset += length
		return nil
	}

	kind, ok := schema.EntryKind(e)
	if !ok {
		return fmt.Errorf("%w: entry %d %q has unknown type %q", ErrSchemaInvalid, i, *e.Name, e.Type)
	}

	h := &schema.Header{Name: e.Name, Offset: st.offset, Length: length, Kind: kind}
	if !validateWithOverlay(h, s.stats, overlay, s.file.Memsize) {
		return fmt.Errorf("%w: entry %d %q (%s, %d bytes) does not match the statistics at offset %d",
			ErrSchemaInvalid, i, *e.Name, e.Type, length, st.offset)
	}
	if err := s.commitHeader(h); err != nil {
		return err
	}

	if h.Kind.Materializable() {
		vals, err := decode.ReadColumn(h, s.file)
		if err != nil {
			return fmt.Errorf("%w: entry %d %q: %v", ErrSchemaInvalid, i, *e.Name, err)
		}
		h.View = vals
		s.DisableByteView(h)
	}

	st.offset += length
	return nil
}

// commitHeader promotes h's byte range into the committed header list: the
// covering projection entries are marked selected, the header is merged
// into the list in offset order, and the selection is cleared again. The
// selection pass mirrors the interactive flow, where a run is marked by
// hand before being promoted.
func (s *Sheet) commitHeader(h *schema.Header) error {
	if n := s.selectRange(h.Offset, h.Length); n != h.Length {
		s.clearSelection()
		return fmt.Errorf("%w: header %q needs %d raw columns at offset %d, found %d",
			ErrSchemaInvalid, h.DisplayName(), h.Length, h.Offset, n)
	}

	at := len(s.headers)
	for j, existing := range s.headers {
		if existing.Offset > h.Offset {
			at = j
			break
		}
	}
	s.headers = append(s.headers, nil)
	copy(s.headers[at+1:], s.headers[at:])
	s.headers[at] = h

	s.clearSelection()
	return nil
}

// selectRange marks the raw projection entries covering [off, off+length)
// and returns how many it marked. Collapsed anchors never participate in a
// selection.
func (s *Sheet) selectRange(off, length int) int {
	cols := append([]StateColumn(nil), s.cols...)
	n := 0
	for i := range cols {
		if cols[i].Header == nil && cols[i].Offset >= off && cols[i].Offset < off+length {
			cols[i].Selected = true
			n++
		}
	}
	s.install(cols)
	return n
}

func (s *Sheet) clearSelection() {
	cols := append([]StateColumn(nil), s.cols...)
	for i := range cols {
		cols[i].Selected = false
	}
	s.install(cols)
}
