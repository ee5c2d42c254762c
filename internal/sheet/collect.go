package sheet

import (
	"errors"
	"fmt"

	"datview/internal/decode"
	"datview/internal/schema"
	"datview/pkg/records"
)

// ErrKeyEncoding reports a foreign-key entry whose reserved component is
// nonzero. The byte layout then breaks the key encoding assumption, and
// collection aborts instead of emitting wrong identifiers. Unlike
// ErrSchemaInvalid this is not a user input problem; match with errors.Is.
var ErrKeyEncoding = errors.New("sheet: foreign key encoding assumption violated")

// RIDColumn is the name of the synthetic record-id column every collected
// dataset starts with.
const RIDColumn = "_rid"

// outputColumn pairs a materializable header with its effective name.
type outputColumn struct {
	header *schema.Header
	name   string
}

// materialized lists the headers CollectData will decode, in header order.
// Unnamed headers get Unknown<N> names, numbered 1-based by position among
// the materializable headers.
func (s *Sheet) materialized() []outputColumn {
	out := make([]outputColumn, 0, len(s.headers))
	n := 0
	for _, h := range s.headers {
		if !h.Kind.Materializable() {
			continue
		}
		n++
		name := h.DisplayName()
		if name == "" {
			name = fmt.Sprintf("Unknown%d", n)
		}
		out = append(out, outputColumn{header: h, name: name})
	}
	return out
}

// CollectData materializes the sheet into one record per row.
//
// The returned column list starts with RIDColumn and then follows header
// order, keeping the first position of each distinct name. Records map
// column names to values; when two headers share a name, the later one
// silently overwrites the earlier in every record, never an error.
//
// Foreign keys collapse to bare record ids. Any entry or array element
// whose reserved component is nonzero aborts the whole collection with
// ErrKeyEncoding; no partial dataset is returned.
func (s *Sheet) CollectData() ([]records.Record, []string, error) {
	cols := s.materialized()

	columns := make([]string, 0, len(cols)+1)
	columns = append(columns, RIDColumn)
	seen := map[string]bool{RIDColumn: true}
	for _, c := range cols {
		if !seen[c.name] {
			seen[c.name] = true
			columns = append(columns, c.name)
		}
	}

	values := make([][]any, len(cols))
	for i, c := range cols {
		vals := c.header.View
		if vals == nil {
			decoded, err := decode.ReadColumn(c.header, s.file)
			if err != nil {
				return nil, nil, fmt.Errorf("sheet: collect %q: %w", c.name, err)
			}
			c.header.View = decoded
			vals = decoded
		}
		if c.header.Kind.Tag == schema.Key {
			unwrapped, err := unwrapKeys(c.name, vals)
			if err != nil {
				return nil, nil, err
			}
			vals = unwrapped
		}
		values[i] = vals
	}

	rows := make([]records.Record, s.file.RowCount)
	for k := range rows {
		rec := make(records.Record, len(cols)+1)
		rec[RIDColumn] = int64(k)
		for i, c := range cols {
			rec[c.name] = values[i][k]
		}
		rows[k] = rec
	}

	s.logf("stage=collect status=ok rows=%d columns=%d", len(rows), len(columns))
	return rows, columns, nil
}

// unwrapKeys replaces decoded key pairs with bare record ids, verifying
// the reserved component is zero in every entry and array element.
func unwrapKeys(name string, vals []any) ([]any, error) {
	out := make([]any, len(vals))
	for k, v := range vals {
		switch t := v.(type) {
		case decode.KeyPair:
			if t.Reserved != 0 {
				return nil, fmt.Errorf("%w: column %q row %d has reserved component %d",
					ErrKeyEncoding, name, k, t.Reserved)
			}
			out[k] = t.RID
		case []decode.KeyPair:
			ids := make([]int64, len(t))
			for j, p := range t {
				if p.Reserved != 0 {
					return nil, fmt.Errorf("%w: column %q row %d element %d has reserved component %d",
						ErrKeyEncoding, name, k, j, p.Reserved)
				}
				ids[j] = p.RID
			}
			out[k] = ids
		default:
			return nil, fmt.Errorf("%w: column %q row %d holds %T, want a key pair", ErrKeyEncoding, name, k, v)
		}
	}
	return out, nil
}
