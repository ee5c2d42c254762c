package sheet

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"datview/internal/datfile"
	"datview/internal/schema"
	"datview/pkg/records"
)

func TestCollectData(t *testing.T) {
	t.Parallel()

	log := &fakeLogger{}
	s := New(demoFile(t), Config{Log: log})
	if err := s.ImportSerializedHeaders(demoEntries(), ImportOptions{}); err != nil {
		t.Fatalf("import: %v", err)
	}

	rows, columns, err := s.CollectData()
	if err != nil {
		t.Fatalf("CollectData: %v", err)
	}

	wantColumns := []string{"_rid", "name", "score", "parent", "tags"}
	if !reflect.DeepEqual(columns, wantColumns) {
		t.Fatalf("columns = %v, want %v", columns, wantColumns)
	}

	wantRows := []records.Record{
		{"_rid": int64(0), "name": "ada", "score": int64(100), "parent": int64(3), "tags": []int64{10, 20}},
		{"_rid": int64(1), "name": "bob", "score": int64(-1), "parent": int64(1), "tags": []int64{}},
		{"_rid": int64(2), "name": nil, "score": int64(7), "parent": int64(0), "tags": []int64{5}},
	}
	if len(rows) != len(wantRows) {
		t.Fatalf("got %d rows, want %d", len(rows), len(wantRows))
	}
	for k := range wantRows {
		if !reflect.DeepEqual(rows[k], wantRows[k]) {
			t.Fatalf("row %d = %v, want %v", k, rows[k], wantRows[k])
		}
	}

	found := false
	for _, m := range log.msgs {
		if m == "stage=collect status=ok rows=3 columns=5" {
			found = true
		}
	}
	if !found {
		t.Fatalf("collect success was not logged, got %q", log.msgs)
	}
}

// TestCollectUnknownNaming numbers unnamed headers by their position among
// the materializable ones; raw headers consume neither a number nor a
// column.
func TestCollectUnknownNaming(t *testing.T) {
	t.Parallel()

	s := New(demoFile(t), Config{})
	s.headers = []*schema.Header{
		{Offset: 0, Length: 2, Kind: schema.Kind{Tag: schema.Raw}},
		{Offset: 2, Length: 2, Kind: schema.Kind{Tag: schema.Integer}},
		{Name: strptr("parent"), Offset: 4, Length: 4, Kind: schema.Kind{Tag: schema.Key}},
		{Offset: 10, Length: 2, Kind: schema.Kind{Tag: schema.Integer}},
	}

	rows, columns, err := s.CollectData()
	if err != nil {
		t.Fatalf("CollectData: %v", err)
	}
	wantColumns := []string{"_rid", "Unknown1", "parent", "Unknown3"}
	if !reflect.DeepEqual(columns, wantColumns) {
		t.Fatalf("columns = %v, want %v", columns, wantColumns)
	}
	want := records.Record{"_rid": int64(0), "Unknown1": int64(100), "parent": int64(3), "Unknown3": int64(2)}
	if !reflect.DeepEqual(rows[0], want) {
		t.Fatalf("row 0 = %v, want %v", rows[0], want)
	}
}

// TestCollectNameCollisionLaterWins pins the duplicate-name contract: one
// column in the list, the later header's values in every record.
func TestCollectNameCollisionLaterWins(t *testing.T) {
	t.Parallel()

	s := New(demoFile(t), Config{})
	s.headers = []*schema.Header{
		{Name: strptr("score"), Offset: 2, Length: 2, Kind: schema.Kind{Tag: schema.Integer}},
		{Name: strptr("score"), Offset: 4, Length: 2, Kind: schema.Kind{Tag: schema.Integer}},
	}

	rows, columns, err := s.CollectData()
	if err != nil {
		t.Fatalf("CollectData: %v", err)
	}
	if want := []string{"_rid", "score"}; !reflect.DeepEqual(columns, want) {
		t.Fatalf("columns = %v, want %v", columns, want)
	}
	// Offset 4 holds 3 | 1 | 0; offset 2 holds 100 | -1 | 7 and must lose.
	for k, want := range []int64{3, 1, 0} {
		if got := rows[k]["score"]; got != want {
			t.Fatalf("row %d score = %v, want %d from the later header", k, got, want)
		}
	}
}

func TestCollectKeyReservedNonzero(t *testing.T) {
	t.Parallel()

	t.Run("scalar", func(t *testing.T) {
		t.Parallel()

		b := datfile.NewBuilder(2, 4)
		row := make([]byte, 4)
		datfile.PutUint(row[0:2], 7)
		datfile.PutUint(row[2:4], 5)
		b.AddRow(row)

		s := New(b.File(), Config{})
		s.headers = []*schema.Header{
			{Name: strptr("parent"), Offset: 0, Length: 4, Kind: schema.Kind{Tag: schema.Key}},
		}
		rows, _, err := s.CollectData()
		if !errors.Is(err, ErrKeyEncoding) {
			t.Fatalf("err = %v, want ErrKeyEncoding", err)
		}
		if !strings.Contains(err.Error(), "reserved component 5") {
			t.Fatalf("err = %v, want it to name the reserved component", err)
		}
		if rows != nil {
			t.Fatalf("got %d rows despite the encoding failure", len(rows))
		}
	})

	t.Run("array_element", func(t *testing.T) {
		t.Parallel()

		b := datfile.NewBuilder(2, 4)
		ref := b.InternUnits(9, 4) // one pair element with reserved = 4
		row := make([]byte, 4)
		datfile.PutUint(row[0:2], uint64(ref))
		datfile.PutUint(row[2:4], 1)
		b.AddRow(row)

		s := New(b.File(), Config{})
		s.headers = []*schema.Header{
			{Name: strptr("parents"), Offset: 0, Length: 4, Kind: schema.Kind{Tag: schema.Key, Array: true}},
		}
		_, _, err := s.CollectData()
		if !errors.Is(err, ErrKeyEncoding) {
			t.Fatalf("err = %v, want ErrKeyEncoding", err)
		}
		if !strings.Contains(err.Error(), "element 0") {
			t.Fatalf("err = %v, want it to name the offending element", err)
		}
	})

	t.Run("cached_view_wrong_type", func(t *testing.T) {
		t.Parallel()

		s := New(demoFile(t), Config{})
		s.headers = []*schema.Header{
			{Name: strptr("parent"), Offset: 4, Length: 4, Kind: schema.Kind{Tag: schema.Key},
				View: []any{int64(3), int64(1), int64(0)}},
		}
		_, _, err := s.CollectData()
		if !errors.Is(err, ErrKeyEncoding) {
			t.Fatalf("err = %v, want ErrKeyEncoding", err)
		}
		if !strings.Contains(err.Error(), "want a key pair") {
			t.Fatalf("err = %v, want a type complaint", err)
		}
	})
}

// TestCollectUsesCachedView proves collection reads the decoded view cached
// on the header instead of going back to the file bytes.
func TestCollectUsesCachedView(t *testing.T) {
	t.Parallel()

	s := New(demoFile(t), Config{})
	if err := s.ImportSerializedHeaders(demoEntries(), ImportOptions{}); err != nil {
		t.Fatalf("import: %v", err)
	}
	s.Headers()[0].View = []any{"x", "y", "z"}

	rows, _, err := s.CollectData()
	if err != nil {
		t.Fatalf("CollectData: %v", err)
	}
	for k, want := range []string{"x", "y", "z"} {
		if got := rows[k]["name"]; got != want {
			t.Fatalf("row %d name = %v, want cached %q", k, got, want)
		}
	}
}
