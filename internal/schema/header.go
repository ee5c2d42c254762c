package schema

// Header is a named, typed field covering a contiguous byte range of a row.
//
// Name is nil for a gap: a range nobody has assigned yet, carried as a
// nameless header so a serialized schema still accounts for every byte of
// the row.
type Header struct {
	Name   *string
	Offset int
	Length int
	Kind   Kind

	// View caches the header's decoded values, one per row in record order.
	// nil means not decoded yet.
	View []any
}

// DisplayName returns the header's name, or "" when unassigned.
func (h *Header) DisplayName() string {
	if h.Name == nil {
		return ""
	}
	return *h.Name
}

// End returns the first byte offset past the header's range.
func (h *Header) End() int {
	return h.Offset + h.Length
}
