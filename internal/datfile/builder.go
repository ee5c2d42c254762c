package datfile

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Builder assembles a .dat container in memory. It is the canonical fixture
// writer for tests and small producers.
//
// Builder methods panic on misuse (wrong row length, unencodable string):
// the builder is for code that knows its layout, and a bad fixture is a
// defect, not a runtime condition.
type Builder struct {
	memsize   int
	rowLength int
	rowCount  int
	rows      []byte
	heap      []byte
}

// NewBuilder starts an empty container with the given geometry.
func NewBuilder(memsize, rowLength int) *Builder {
	if memsize < 1 || memsize > MaxMemsize {
		panic(fmt.Sprintf("datfile: memsize %d out of range [1,%d]", memsize, MaxMemsize))
	}
	if rowLength < 1 {
		panic("datfile: rowLength must be >= 1")
	}
	return &Builder{
		memsize:   memsize,
		rowLength: rowLength,
		// Reserve heap offset 0 as the null reference.
		heap: []byte{0},
	}
}

// AddRow appends one record. The row bytes are copied.
func (b *Builder) AddRow(row []byte) {
	if len(row) != b.rowLength {
		panic(fmt.Sprintf("datfile: row of %d bytes, want %d", len(row), b.rowLength))
	}
	b.rows = append(b.rows, row...)
	b.rowCount++
}

// InternString stores s in the heap as a length-prefixed Windows-1252 string
// and returns its heap offset.
func (b *Builder) InternString(s string) uint64 {
	enc, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("datfile: encode %q: %v", s, err))
	}
	if len(enc) > 0xFFFF {
		panic(fmt.Sprintf("datfile: string of %d encoded bytes exceeds length prefix", len(enc)))
	}
	off := uint64(len(b.heap))
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(enc)))
	b.heap = append(b.heap, prefix[:]...)
	b.heap = append(b.heap, enc...)
	return off
}

// InternUnits stores vals as consecutive memsize-wide little-endian units
// and returns the heap offset of the first.
func (b *Builder) InternUnits(vals ...uint64) uint64 {
	off := uint64(len(b.heap))
	unit := make([]byte, b.memsize)
	for _, v := range vals {
		PutUint(unit, v)
		b.heap = append(b.heap, unit...)
	}
	return off
}

// Bytes assembles the container.
func (b *Builder) Bytes() []byte {
	var hdr [HeaderSize]byte
	copy(hdr[0:4], Magic)
	binary.LittleEndian.PutUint16(hdr[4:6], Version)
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(b.memsize))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(b.rowLength))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(b.rowCount))
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(b.heap)))

	out := make([]byte, 0, HeaderSize+len(b.rows)+len(b.heap))
	out = append(out, hdr[:]...)
	out = append(out, b.rows...)
	out = append(out, b.heap...)
	return out
}

// File parses the assembled bytes back into a container.
func (b *Builder) File() *File {
	f, err := Parse(b.Bytes())
	if err != nil {
		panic(fmt.Sprintf("datfile: builder produced invalid container: %v", err))
	}
	return f
}
