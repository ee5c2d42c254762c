// Package records defines the materialized row object shared by the data
// collector and the export engine.
package records

// Record is one materialized row: field name -> decoded value.
//
// Values are the decoded Go types (bool, int64, float64, string, []int64) or
// nil. Records are plain maps, so iteration order is undefined; callers that
// need a stable column order carry a []string alongside.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
