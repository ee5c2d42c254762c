package schema

import (
	"fmt"
	"sort"
)

// SerializedHeader is the wire form of one header.
//
// Entries carry no offset. A serialized schema is an ordered sequence whose
// entries are consumed front to back, each starting where the previous one
// ended; reordering entries therefore shifts every offset after the move.
// Size is only meaningful for types without an implied width (raw, integer,
// decimal) and is omitted otherwise.
type SerializedHeader struct {
	Name  *string `json:"name"`
	Type  string  `json:"type"`
	Size  int     `json:"size,omitempty"`
	Array bool    `json:"array,omitempty"`
}

// EntryLength returns the number of row bytes an entry occupies, the only
// length information the wire form carries.
//
// Array-marked entries always span a reference and a count unit. Booleans
// are a single byte, strings one unit, scalar keys an id and a reserved
// unit. Everything else declares its width in Size.
func EntryLength(e SerializedHeader, memsize int) int {
	if e.Array {
		return 2 * memsize
	}
	tag, ok := ParseTag(e.Type)
	if !ok {
		return e.Size
	}
	switch tag {
	case Boolean:
		return 1
	case String:
		return memsize
	case Key:
		return 2 * memsize
	default:
		return e.Size
	}
}

// EntryKind decodes an entry's type. ok is false for unknown type names;
// callers must treat those entries as invalid rather than guess.
//
// The wire form carries no display state, so every decoded kind starts as
// an expanded byte view; collapsing it is the owner's explicit step.
func EntryKind(e SerializedHeader) (Kind, bool) {
	tag, ok := ParseTag(e.Type)
	if !ok {
		return Kind{}, false
	}
	return Kind{Tag: tag, Array: e.Array, ByteView: true}, true
}

// SerializeHeaders flattens headers into wire entries ordered by offset.
//
// Unclaimed ranges between headers become nameless raw entries, so the
// entry lengths of the result always sum to rowLength. Overlapping headers
// and headers running past the row are reported as errors; both indicate a
// corrupted header list rather than bad user input.
func SerializeHeaders(headers []Header, rowLength int) ([]SerializedHeader, error) {
	hs := append([]Header(nil), headers...)
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Offset < hs[j].Offset })

	out := make([]SerializedHeader, 0, len(hs)+1)
	off := 0
	for i := range hs {
		h := &hs[i]
		if h.Length <= 0 {
			return nil, fmt.Errorf("schema: header %q has non-positive length %d", h.DisplayName(), h.Length)
		}
		if h.Offset < off {
			return nil, fmt.Errorf("schema: header %q at offset %d overlaps the previous header ending at %d",
				h.DisplayName(), h.Offset, off)
		}
		if h.Offset > off {
			out = append(out, gapEntry(h.Offset-off))
		}
		out = append(out, entryFor(h))
		off = h.End()
	}
	if off > rowLength {
		return nil, fmt.Errorf("schema: headers end at %d, past row length %d", off, rowLength)
	}
	if off < rowLength {
		out = append(out, gapEntry(rowLength-off))
	}
	return out, nil
}

func gapEntry(n int) SerializedHeader {
	return SerializedHeader{Type: Raw.String(), Size: n}
}

func entryFor(h *Header) SerializedHeader {
	e := SerializedHeader{Name: h.Name, Type: h.Kind.Tag.String(), Array: h.Kind.Array}
	if !h.Kind.Array {
		switch h.Kind.Tag {
		case Raw, Integer, Decimal:
			e.Size = h.Length
		}
	}
	return e
}
