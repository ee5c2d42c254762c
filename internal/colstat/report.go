package colstat

import (
	"fmt"
	"strings"

	"datview/internal/datfile"
)

// Report bundles a file's geometry with its column statistics for output.
type Report struct {
	File      string       `json:"file"`
	Memsize   int          `json:"memsize"`
	RowLength int          `json:"row_length"`
	RowCount  int          `json:"row_count"`
	HeapSize  int          `json:"heap_size"`
	Columns   []ColumnStat `json:"columns"`

	// NumberingStart offsets the wrapped tick labels in the text rendering.
	// It is a display preference, not a property of the file, so it stays
	// out of the JSON form.
	NumberingStart int `json:"-"`
}

func BuildReport(f *datfile.File, stats []ColumnStat) Report {
	return Report{
		File:      f.Name,
		Memsize:   f.Memsize,
		RowLength: f.RowLength,
		RowCount:  f.RowCount,
		HeapSize:  f.HeapSize(),
		Columns:   append([]ColumnStat(nil), stats...),
	}
}

// FormatReport renders r as an aligned text table, one line per byte offset.
// Construct flags show as a single letter (S string, A array, N nullable) on
// the offset where the construct starts. The tick column carries the wrapped
// two-digit numbering used to line the table up against a hex view.
func FormatReport(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "file=%s\tmemsize=%d\trow_length=%d\trow_count=%d\theap=%d\n",
		r.File, r.Memsize, r.RowLength, r.RowCount, r.HeapSize)
	fmt.Fprintf(&b, "%-6s\t%-4s\t%-4s\t%-4s\t%-4s\tunits\n", "offset", "tick", "b00", "bmax", "flag")

	for i, c := range r.Columns {
		fmt.Fprintf(
			&b,
			"%-6d\t%-4s\t0x%02x\t0x%02x\t%-4s\t%d\n",
			i,
			tickLabel(r.NumberingStart+i),
			c.B00,
			c.BMax,
			flagLetter(c),
			c.Units,
		)
	}

	return strings.TrimRight(b.String(), "\n")
}

// tickLabel wraps n into the two-digit numbering group.
func tickLabel(n int) string {
	n %= 100
	if n < 0 {
		n += 100
	}
	return fmt.Sprintf("%02d", n)
}

func flagLetter(c ColumnStat) string {
	switch {
	case c.RefString:
		return "S"
	case c.RefArray:
		return "A"
	case c.NullableUnit:
		return "N"
	}
	return "-"
}
