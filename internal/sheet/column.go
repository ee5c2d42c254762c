package sheet

import (
	"fmt"
	"strconv"

	"datview/internal/colstat"
	"datview/internal/schema"
)

// ColumnOverlay is the per-byte-column snapshot of statistics membership,
// with each construct's flags propagated across its full byte span. It is
// purely informational: overlay flags never change ownership of a byte.
type ColumnOverlay struct {
	String   bool
	Array    bool
	Nullable bool
}

// StateColumn is one entry of the projection: either a single raw byte
// column, or the collapsed anchor of a header spanning several bytes.
type StateColumn struct {
	// Offset is the original byte index, kept even after neighbors are
	// absorbed into headers.
	Offset int

	// TickLabel is the wrapped two-digit numbering group, IndexLabel the
	// plain byte index.
	TickLabel  string
	IndexLabel string

	// Selected is a transient flag marking a candidate run before it is
	// promoted into a header.
	Selected bool

	// Header points back to the owning header when this entry is a
	// collapsed anchor, nil while the byte is raw.
	Header *schema.Header

	// DataStart marks offsets where a detected construct begins.
	DataStart bool

	// Stats is the overlay snapshot for this byte offset.
	Stats ColumnOverlay
}

// buildColumns produces the full-resolution projection: one entry per byte
// offset, nothing collapsed.
func buildColumns(stats []colstat.ColumnStat, memsize, numberingStart int) []StateColumn {
	overlay := buildOverlay(stats, memsize)
	cols := make([]StateColumn, len(stats))
	for i := range cols {
		cols[i] = newColumn(i, stats, overlay, numberingStart)
	}
	return cols
}

// buildRange rebuilds full-resolution entries for offsets [from, to). The
// overlay is recomputed from the statistics snapshot rather than copied
// from any earlier projection, so stale flags cannot survive a rebuild.
func buildRange(stats []colstat.ColumnStat, memsize, numberingStart, from, to int) []StateColumn {
	overlay := buildOverlay(stats, memsize)
	out := make([]StateColumn, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, newColumn(i, stats, overlay, numberingStart))
	}
	return out
}

func newColumn(offset int, stats []colstat.ColumnStat, overlay []ColumnOverlay, numberingStart int) StateColumn {
	return StateColumn{
		Offset:     offset,
		TickLabel:  tickLabel(numberingStart + offset),
		IndexLabel: strconv.Itoa(offset),
		DataStart:  stats[offset].Units > 0,
		Stats:      overlay[offset],
	}
}

// buildOverlay propagates each construct flag across the construct's whole
// byte span: one unit for strings and nullable boxes, two for arrays. Spans
// are clamped to the row, though the analyzer never emits one that needs it.
func buildOverlay(stats []colstat.ColumnStat, memsize int) []ColumnOverlay {
	out := make([]ColumnOverlay, len(stats))
	for i, c := range stats {
		span := c.Units * memsize
		if span <= 0 {
			continue
		}
		end := i + span
		if end > len(out) {
			end = len(out)
		}
		for j := i; j < end; j++ {
			switch {
			case c.RefString:
				out[j].String = true
			case c.RefArray:
				out[j].Array = true
			case c.NullableUnit:
				out[j].Nullable = true
			}
		}
	}
	return out
}

// tickLabel renders the wrapped numbering group for one offset.
func tickLabel(n int) string {
	n %= 100
	if n < 0 {
		n += 100
	}
	return fmt.Sprintf("%02d", n)
}

// indexOf locates the projection entry whose original offset is off, -1
// when no entry carries it (the offset is interior to a collapsed header).
func indexOf(cols []StateColumn, off int) int {
	for i := range cols {
		if cols[i].Offset == off {
			return i
		}
	}
	return -1
}
