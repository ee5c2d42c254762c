package colstat

import (
	"strings"
	"testing"

	"datview/internal/datfile"
)

// mixedFixture builds a three-row file exercising every construct the
// analyzer knows: a nullable string reference at 0, an integer array at 2,
// a scalar foreign key at 6, a nullable unit at 10, and a boolean byte plus
// a raw high byte at 12..13.
func mixedFixture(t *testing.T) *datfile.File {
	t.Helper()

	b := datfile.NewBuilder(2, 14)
	alpha := b.InternString("alpha")
	be := b.InternString("b\u00e9")
	arrA := b.InternUnits(1, 2)
	arrC := b.InternUnits(3)

	type rec struct {
		str, aref, acount, rid, nul uint64
		boolByte, rawByte           byte
	}
	recs := []rec{
		{str: alpha, aref: arrA, acount: 2, rid: 5, nul: 0, boolByte: 0, rawByte: 0xFF},
		{str: be, aref: 0, acount: 0, rid: 9, nul: 7, boolByte: 1, rawByte: 0xFF},
		{str: 0, aref: arrC, acount: 1, rid: 0, nul: 0, boolByte: 0, rawByte: 0xFF},
	}
	for _, r := range recs {
		row := make([]byte, 14)
		datfile.PutUint(row[0:2], r.str)
		datfile.PutUint(row[2:4], r.aref)
		datfile.PutUint(row[4:6], r.acount)
		datfile.PutUint(row[6:8], r.rid)
		// Unit at 8 is the key's reserved component, always zero.
		datfile.PutUint(row[10:12], r.nul)
		row[12] = r.boolByte
		row[13] = r.rawByte
		b.AddRow(row)
	}
	return b.File()
}

func TestAnalyzeDetectsConstructs(t *testing.T) {
	t.Parallel()

	stats := Analyze(mixedFixture(t))
	if len(stats) != 14 {
		t.Fatalf("len(stats) = %d, want 14", len(stats))
	}

	tests := []struct {
		name   string
		offset int
		want   ColumnStat
	}{
		{"string_ref", 0, ColumnStat{RefString: true, Units: 1, B00: 0x00, BMax: 0x08}},
		{"int_array", 2, ColumnStat{RefArray: true, Units: 2, B00: 0x00, BMax: 0x10}},
		{"scalar_key", 6, ColumnStat{RefArray: true, Units: 2, B00: 0x00, BMax: 0x09}},
		{"nullable_unit", 10, ColumnStat{NullableUnit: true, Units: 1, B00: 0x00, BMax: 0x07}},
		{"boolean_byte", 12, ColumnStat{B00: 0x00, BMax: 0x01}},
		{"raw_byte", 13, ColumnStat{B00: 0xFF, BMax: 0xFF}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := stats[tt.offset]; got != tt.want {
				t.Fatalf("stats[%d] = %+v, want %+v", tt.offset, got, tt.want)
			}
		})
	}
}

// TestAnalyzeConstructInteriorsUnflagged verifies that only a construct's
// starting offset carries flags. Interior offsets keep their byte bounds but
// stay unflagged, so no two constructs can overlap.
func TestAnalyzeConstructInteriorsUnflagged(t *testing.T) {
	t.Parallel()

	stats := Analyze(mixedFixture(t))
	for _, off := range []int{1, 3, 4, 5, 7, 8, 9, 11} {
		c := stats[off]
		if c.RefString || c.RefArray || c.NullableUnit || c.Units != 0 {
			t.Fatalf("stats[%d] = %+v, want no construct flags", off, c)
		}
	}
}

func TestAnalyzeAllZeroColumn(t *testing.T) {
	t.Parallel()

	b := datfile.NewBuilder(2, 2)
	b.AddRow([]byte{0, 0})
	b.AddRow([]byte{0, 0})

	stats := Analyze(b.File())
	if got, want := stats[0], (ColumnStat{}); got != want {
		t.Fatalf("stats[0] = %+v, want zero value (no evidence, no flags)", got)
	}
}

func TestAnalyzeEmptyFile(t *testing.T) {
	t.Parallel()

	stats := Analyze(datfile.NewBuilder(4, 8).File())
	if len(stats) != 8 {
		t.Fatalf("len(stats) = %d, want 8", len(stats))
	}
	for i, c := range stats {
		if c != (ColumnStat{}) {
			t.Fatalf("stats[%d] = %+v, want zero value for empty file", i, c)
		}
	}
}

// TestAnalyzeRejectsDanglingArray verifies that one row with an element run
// extending past the heap disqualifies the whole construct.
func TestAnalyzeRejectsDanglingArray(t *testing.T) {
	t.Parallel()

	// Element values are chosen so the reference never doubles as a valid
	// string prefix, keeping the string probe out of the way.
	build := func(counts ...uint64) *datfile.File {
		b := datfile.NewBuilder(2, 4)
		off := b.InternUnits(500, 600)
		for _, c := range counts {
			row := make([]byte, 4)
			datfile.PutUint(row[0:2], off)
			datfile.PutUint(row[2:4], c)
			b.AddRow(row)
		}
		return b.File()
	}

	if stats := Analyze(build(2)); !stats[0].RefArray {
		t.Fatalf("stats[0].RefArray = false for an in-bounds element run, want true")
	}
	if stats := Analyze(build(2, 1000)); stats[0].RefArray {
		t.Fatalf("stats[0].RefArray = true with a dangling element run, want false")
	}
}

func TestFormatReport(t *testing.T) {
	t.Parallel()

	f := mixedFixture(t)
	r := BuildReport(f, Analyze(f))

	if r.RowLength != 14 || r.RowCount != 3 || r.Memsize != 2 {
		t.Fatalf("report geometry = (%d,%d,%d), want (14,3,2)", r.RowLength, r.RowCount, r.Memsize)
	}

	out := FormatReport(r)
	lines := strings.Split(out, "\n")
	// One banner, one column header, one line per byte offset.
	if len(lines) != 2+14 {
		t.Fatalf("FormatReport produced %d lines, want %d", len(lines), 2+14)
	}
	for _, want := range []string{"row_length=14", "\tS   \t1", "\tA   \t2", "\tN   \t1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("FormatReport output missing %q:\n%s", want, out)
		}
	}
}

// TestFormatReportTicks pins the wrapped numbering column: ticks start at
// NumberingStart and wrap at 100.
func TestFormatReportTicks(t *testing.T) {
	t.Parallel()

	f := mixedFixture(t)
	r := BuildReport(f, Analyze(f))
	r.NumberingStart = 98

	lines := strings.Split(FormatReport(r), "\n")
	for i, wantTick := range []string{"98", "99", "00", "01"} {
		line := lines[2+i]
		if !strings.Contains(line, "\t"+wantTick+"  \t") {
			t.Fatalf("offset %d line = %q, want tick %q", i, line, wantTick)
		}
	}
}
