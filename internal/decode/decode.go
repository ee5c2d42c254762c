// Package decode reads typed header values out of raw row bytes.
//
// Decoding is driven entirely by the header's offset, length and kind; the
// package holds no state of its own. Heap-backed values (strings, arrays)
// are bounds-checked on every access because header metadata is data, not
// trusted input.
package decode

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/charmap"

	"datview/internal/datfile"
	"datview/internal/schema"
)

// KeyPair is one decoded foreign-key entry: a record id plus the reserved
// second component. Well-formed files keep Reserved at zero everywhere.
type KeyPair struct {
	RID      int64
	Reserved int64
}

// ReadColumn decodes one value per row for h.
//
// Value types by kind: boolean bool, integer int64, decimal float64, string
// string (nil for a null reference), key KeyPair, and []int64 / []KeyPair
// for the array-marked variants. Raw headers have no decoded form and are
// rejected.
//
// The first undecodable row aborts the whole column.
func ReadColumn(h *schema.Header, f *datfile.File) ([]any, error) {
	if h.Kind.Tag == schema.Raw {
		return nil, fmt.Errorf("decode: column %q is a raw byte view with no decoded form", h.DisplayName())
	}
	if h.Offset < 0 || h.Length <= 0 || h.End() > f.RowLength {
		return nil, fmt.Errorf("decode: column %q spans [%d,%d), outside row length %d",
			h.DisplayName(), h.Offset, h.End(), f.RowLength)
	}

	out := make([]any, f.RowCount)
	for k := 0; k < f.RowCount; k++ {
		v, err := decodeField(h, f, f.Row(k))
		if err != nil {
			return nil, fmt.Errorf("decode: column %q row %d: %w", h.DisplayName(), k, err)
		}
		out[k] = v
	}
	return out, nil
}

func decodeField(h *schema.Header, f *datfile.File, row []byte) (any, error) {
	b := row[h.Offset:h.End()]
	m := f.Memsize

	if h.Kind.Array {
		switch h.Kind.Tag {
		case schema.Integer:
			return readIntArray(f, b)
		case schema.Key:
			return readKeyArray(f, b)
		}
		return nil, fmt.Errorf("arrays of %s are not supported", h.Kind.Tag)
	}

	switch h.Kind.Tag {
	case schema.Boolean:
		return b[0] != 0, nil
	case schema.Integer:
		return datfile.Int(b), nil
	case schema.Decimal:
		return readDecimal(b)
	case schema.String:
		if len(b) != m {
			return nil, fmt.Errorf("string field is %d bytes, want one unit of %d", len(b), m)
		}
		return readString(f, datfile.Uint(b))
	case schema.Key:
		if len(b) != 2*m {
			return nil, fmt.Errorf("key field is %d bytes, want two units of %d", len(b), m)
		}
		return KeyPair{
			RID:      int64(datfile.Uint(b[:m])),
			Reserved: int64(datfile.Uint(b[m:])),
		}, nil
	}
	return nil, fmt.Errorf("unsupported type %s", h.Kind.Tag)
}

func readDecimal(b []byte) (any, error) {
	switch len(b) {
	case 4:
		return float64(math.Float32frombits(uint32(datfile.Uint(b)))), nil
	case 8:
		return math.Float64frombits(datfile.Uint(b)), nil
	}
	return nil, fmt.Errorf("decimal width %d not supported, want 4 or 8", len(b))
}

// readString dereferences a heap string: a u16 byte count followed by that
// many Windows-1252 bytes. Reference zero is the null string.
func readString(f *datfile.File, ref uint64) (any, error) {
	if ref == 0 {
		return nil, nil
	}
	if ref > uint64(f.HeapSize()) {
		return nil, fmt.Errorf("string ref %d past heap end %d", ref, f.HeapSize())
	}
	hdr, err := f.HeapAt(int(ref), 2)
	if err != nil {
		return nil, fmt.Errorf("string ref %d: %w", ref, err)
	}
	n := int(binary.LittleEndian.Uint16(hdr))
	raw, err := f.HeapAt(int(ref)+2, n)
	if err != nil {
		return nil, fmt.Errorf("string ref %d payload: %w", ref, err)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("string ref %d: %w", ref, err)
	}
	return string(s), nil
}

func readIntArray(f *datfile.File, b []byte) (any, error) {
	m := f.Memsize
	ref, count, err := arrayRef(f, b, m)
	if err != nil {
		return nil, err
	}
	out := make([]int64, count)
	for i := range out {
		elem, err := f.HeapAt(ref+i*m, m)
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", i, err)
		}
		out[i] = datfile.Int(elem)
	}
	return out, nil
}

func readKeyArray(f *datfile.File, b []byte) (any, error) {
	m := f.Memsize
	ref, count, err := arrayRef(f, b, 2*m)
	if err != nil {
		return nil, err
	}
	out := make([]KeyPair, count)
	for i := range out {
		elem, err := f.HeapAt(ref+i*2*m, 2*m)
		if err != nil {
			return nil, fmt.Errorf("key array element %d: %w", i, err)
		}
		out[i] = KeyPair{
			RID:      int64(datfile.Uint(elem[:m])),
			Reserved: int64(datfile.Uint(elem[m:])),
		}
	}
	return out, nil
}

// arrayRef validates an array field's (reference, count) unit pair against
// the heap and returns both as ints. A zero count is an empty array no
// matter what the reference holds; scalar keys rely on that.
func arrayRef(f *datfile.File, b []byte, elemSize int) (ref, count int, err error) {
	m := f.Memsize
	if len(b) != 2*m {
		return 0, 0, fmt.Errorf("array field is %d bytes, want two units of %d", len(b), m)
	}
	r := datfile.Uint(b[:m])
	c := datfile.Uint(b[m:])
	if c == 0 {
		return 0, 0, nil
	}
	heap := uint64(f.HeapSize())
	if r == 0 {
		return 0, 0, fmt.Errorf("array count %d with a null heap ref", c)
	}
	if r > heap || c > heap/uint64(elemSize) || r+c*uint64(elemSize) > heap {
		return 0, 0, fmt.Errorf("array of %d elements at ref %d runs past heap end %d", c, r, heap)
	}
	return int(r), int(c), nil
}
