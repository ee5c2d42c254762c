package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// NormalizeValue converts a materialized row value to a form every backend
// driver can bind.
//
// Scalars (nil, bool, int64, float64, string) pass through unchanged. Arrays
// become their JSON text so they can live in a text column regardless of
// backend; time values become RFC3339Nano UTC strings; []byte becomes string.
//
// Backends must not assume a particular underlying type for values; this
// helper keeps bound parameters consistent across backends.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []int64, []float64, []string, []bool, []any:
		return jsonText(t)
	default:
		return fmt.Sprint(v)
	}
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Slices of the scalar kinds above cannot fail to marshal; this
		// path exists only for []any holding something exotic.
		return fmt.Sprint(v)
	}
	return string(b)
}
