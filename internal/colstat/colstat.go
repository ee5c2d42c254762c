// Package colstat derives per-byte-offset statistics from the raw rows of a
// fixed-width data file.
//
// The statistics feed two consumers: schema validation, where an imported
// header whose declared type needs a heap construct must land exactly on an
// offset where that construct was observed, and display, where raw byte
// bounds describe columns no header has claimed yet.
package colstat

import (
	"encoding/binary"

	"datview/internal/datfile"
)

// ColumnStat describes what was observed at one byte offset across every row
// of a file.
//
// Construct flags always refer to the offset where the construct starts; a
// flagged construct occupies Units addressable units from that offset, and
// the analyzer never flags overlapping constructs.
type ColumnStat struct {
	// RefString marks a unit whose nonzero values are all valid heap
	// references to length-prefixed strings.
	RefString bool `json:"ref_string"`

	// RefArray marks a unit pair (reference, element count) consistent with
	// the heap in every row. Scalar foreign keys share this shape: their
	// second unit is reserved and always zero, indistinguishable from an
	// empty array.
	RefArray bool `json:"ref_array"`

	// NullableUnit marks a unit observed both zero and nonzero, the layout
	// used for optional boxed values.
	NullableUnit bool `json:"nullable_unit"`

	// Units is the construct width in addressable units: 1 for strings and
	// nullable boxes, 2 for arrays and keys, 0 when nothing was detected.
	Units int `json:"units"`

	// B00 and BMax are the smallest and largest raw byte values observed at
	// this offset.
	B00  byte `json:"b00"`
	BMax byte `json:"b_max"`
}

// Analyze scans every row of f and produces one ColumnStat per byte offset.
//
// Two passes run over the rows. The first records per-offset byte bounds.
// The second walks the unit grid left to right probing for multi-byte
// constructs; heap references only ever sit on unit boundaries, so probing
// between them would read construct halves as false starts. When a probe
// matches, the start offset is flagged and the walk skips past the whole
// construct, so detected constructs can never overlap.
//
// Detection is evidence-based: a construct is flagged only when every row is
// consistent with it and at least one row actually uses it. An all-zero
// column therefore carries no flags at all. Where several constructs would
// match the same offset, strings win over arrays and arrays over nullable
// boxes.
//
// Analyze never fails. A file with no rows yields zeroed statistics.
func Analyze(f *datfile.File) []ColumnStat {
	stats := make([]ColumnStat, f.RowLength)
	if f.RowLength == 0 || f.RowCount == 0 {
		return stats
	}

	for k := 0; k < f.RowCount; k++ {
		row := f.Row(k)
		for i, b := range row {
			if k == 0 {
				stats[i].B00, stats[i].BMax = b, b
				continue
			}
			if b < stats[i].B00 {
				stats[i].B00 = b
			}
			if b > stats[i].BMax {
				stats[i].BMax = b
			}
		}
	}

	m := f.Memsize
	for off := 0; off+m <= f.RowLength; {
		switch {
		case stringConstructAt(f, off):
			stats[off].RefString = true
			stats[off].Units = 1
			off += m
		case arrayConstructAt(f, off):
			stats[off].RefArray = true
			stats[off].Units = 2
			off += 2 * m
		case nullableBoxAt(f, off):
			stats[off].NullableUnit = true
			stats[off].Units = 1
			off += m
		default:
			off += m
		}
	}
	return stats
}

func stringConstructAt(f *datfile.File, off int) bool {
	m := f.Memsize
	if off+m > f.RowLength {
		return false
	}
	saw := false
	for k := 0; k < f.RowCount; k++ {
		ref := datfile.Uint(f.Row(k)[off : off+m])
		if ref == 0 {
			continue
		}
		if !stringRefValid(f, ref) {
			return false
		}
		saw = true
	}
	return saw
}

// stringRefValid reports whether ref points at a length-prefixed string that
// lies fully inside the heap.
func stringRefValid(f *datfile.File, ref uint64) bool {
	heap := uint64(f.HeapSize())
	if ref == 0 || ref > heap || ref+2 > heap {
		return false
	}
	hdr, err := f.HeapAt(int(ref), 2)
	if err != nil {
		return false
	}
	n := int(binary.LittleEndian.Uint16(hdr))
	_, err = f.HeapAt(int(ref)+2, n)
	return err == nil
}

func arrayConstructAt(f *datfile.File, off int) bool {
	m := f.Memsize
	if off+2*m > f.RowLength {
		return false
	}
	heap := uint64(f.HeapSize())
	saw := false
	for k := 0; k < f.RowCount; k++ {
		row := f.Row(k)
		ref := datfile.Uint(row[off : off+m])
		count := datfile.Uint(row[off+m : off+2*m])
		if ref == 0 && count == 0 {
			continue
		}
		saw = true
		if count == 0 {
			// First unit is a record id with the reserved second unit zero,
			// the scalar foreign-key shape. Nothing to bounds-check.
			continue
		}
		if ref == 0 || ref > heap {
			return false
		}
		// Conservative element width of one unit; the decoder enforces the
		// exact width once the element type is known.
		if count > heap/uint64(m) || ref+count*uint64(m) > heap {
			return false
		}
	}
	return saw
}

func nullableBoxAt(f *datfile.File, off int) bool {
	m := f.Memsize
	if off+m > f.RowLength {
		return false
	}
	var sawZero, sawValue bool
	for k := 0; k < f.RowCount; k++ {
		if datfile.Uint(f.Row(k)[off:off+m]) == 0 {
			sawZero = true
		} else {
			sawValue = true
		}
		if sawZero && sawValue {
			return true
		}
	}
	return false
}
