package sheet

import (
	"fmt"

	"datview/internal/schema"
)

// DisableByteView collapses h's byte range: the Length full-resolution
// entries starting at h's offset are replaced by a single anchor entry
// carrying the back-reference to h. This is the only operation that
// shrinks the projection, and every untouched entry keeps its relative
// order.
//
// Preconditions are programmer errors and panic: h must belong to this
// sheet, be currently expanded, and cover a contiguous run of raw entries.
func (s *Sheet) DisableByteView(h *schema.Header) {
	s.mustOwn(h, "DisableByteView")
	if !h.Kind.ByteView {
		panic(fmt.Sprintf("sheet: DisableByteView called on %q, which is already collapsed", h.DisplayName()))
	}
	at := indexOf(s.cols, h.Offset)
	if at < 0 {
		panic(fmt.Sprintf("sheet: DisableByteView(%q): no projection entry at offset %d", h.DisplayName(), h.Offset))
	}
	for j := 0; j < h.Length; j++ {
		if at+j >= len(s.cols) || s.cols[at+j].Offset != h.Offset+j || s.cols[at+j].Header != nil {
			panic(fmt.Sprintf("sheet: DisableByteView(%q): offsets [%d,%d) are not a contiguous raw run",
				h.DisplayName(), h.Offset, h.End()))
		}
	}

	h.Kind.ByteView = false

	anchor := s.cols[at]
	anchor.Selected = false
	anchor.Header = h

	cols := make([]StateColumn, 0, len(s.cols)-h.Length+1)
	cols = append(cols, s.cols[:at]...)
	cols = append(cols, anchor)
	cols = append(cols, s.cols[at+h.Length:]...)
	s.install(cols)
}

// EnableByteView expands h back to full resolution. The header stays in
// the list with its marker flipped back to visible; a freshly built run of
// raw entries replaces the collapsed anchor, none of them referencing h
// anymore. The run's overlay comes from the statistics snapshot, so the
// projection's contents end up exactly as if h had never been collapsed.
//
// Panics when h does not belong to this sheet or is not currently
// collapsed to an anchor entry.
func (s *Sheet) EnableByteView(h *schema.Header) {
	s.mustOwn(h, "EnableByteView")
	if h.Kind.ByteView {
		panic(fmt.Sprintf("sheet: EnableByteView called on %q, which is already expanded", h.DisplayName()))
	}
	at := s.anchorIndex(h)
	if at < 0 {
		panic(fmt.Sprintf("sheet: EnableByteView(%q): no collapsed anchor in the projection", h.DisplayName()))
	}

	h.Kind.ByteView = true

	run := buildRange(s.stats, s.file.Memsize, s.cfg.NumberingStart, h.Offset, h.End())
	cols := make([]StateColumn, 0, len(s.cols)-1+len(run))
	cols = append(cols, s.cols[:at]...)
	cols = append(cols, run...)
	cols = append(cols, s.cols[at+1:]...)
	s.install(cols)
}

// anchorIndex finds the single collapsed entry backing h, -1 if none.
func (s *Sheet) anchorIndex(h *schema.Header) int {
	for i := range s.cols {
		if s.cols[i].Header == h {
			return i
		}
	}
	return -1
}

// mustOwn panics unless h is in this sheet's header list.
func (s *Sheet) mustOwn(h *schema.Header, op string) {
	if h == nil {
		panic("sheet: " + op + " called with nil header")
	}
	for _, own := range s.headers {
		if own == h {
			return
		}
	}
	panic(fmt.Sprintf("sheet: %s(%q): header does not belong to this sheet", op, h.DisplayName()))
}
