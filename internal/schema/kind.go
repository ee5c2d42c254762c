// Package schema models typed headers over raw byte columns and their wire
// form.
//
// A header claims a contiguous byte range of a row and gives it a name and a
// decoded type. The wire form is ordered and offset-free: entries are laid
// end to end, so a schema written against one file applies to any file with
// the same row layout.
package schema

// KindTag identifies the decoded type of a header.
type KindTag int

// Header types, by wire name. Raw is the zero value: a header that only
// groups bytes and never decodes.
const (
	Raw KindTag = iota
	Boolean
	Decimal
	Integer
	Key
	String
)

var kindNames = [...]string{
	Raw:     "raw",
	Boolean: "boolean",
	Decimal: "decimal",
	Integer: "integer",
	Key:     "key",
	String:  "string",
}

// String returns the tag's wire name.
func (t KindTag) String() string {
	if t >= 0 && int(t) < len(kindNames) {
		return kindNames[t]
	}
	return "unknown"
}

// ParseTag maps a wire type name to its tag. The second return reports
// whether the name is known.
func ParseTag(s string) (KindTag, bool) {
	for t, n := range kindNames {
		if n == s {
			return KindTag(t), true
		}
	}
	return Raw, false
}

// Kind is a header's full type: the main tag plus two markers independent
// of it.
type Kind struct {
	Tag KindTag

	// Array marks a heap-backed sequence of Tag-typed elements. Only
	// integer and key elements occur in practice.
	Array bool

	// ByteView marks a header whose bytes are currently displayed as raw
	// byte columns instead of one collapsed typed field. Raw-tagged headers
	// are always byte views.
	ByteView bool
}

// Materializable reports whether values of this kind decode into row
// objects. Raw-tagged headers only group bytes.
func (k Kind) Materializable() bool {
	return k.Tag != Raw
}
