// Package datfile reads and writes the .dat fixed-width row container.
//
// Layout, all integers little-endian:
//
//	offset 0   magic "DATV"
//	offset 4   uint16 format version (must be 1)
//	offset 6   uint16 memsize, bytes per addressable unit (1..8)
//	offset 8   uint32 rowLength, bytes per record
//	offset 12  uint32 rowCount
//	offset 16  uint32 heapSize
//	offset 20  uint32 reserved, zero
//	offset 24  rows region, rowCount*rowLength bytes
//	...        heap region, heapSize bytes
//
// Variable-length payloads (strings, array elements) live in the heap and
// are referenced from rows by byte offset. Heap byte 0 is reserved so that
// offset 0 always means "null/absent"; Builder writes a zero byte there.
package datfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// Magic identifies a .dat container.
	Magic = "DATV"

	// Version is the only supported format version.
	Version = 1

	// HeaderSize is the fixed byte size of the container header.
	HeaderSize = 24

	// MaxMemsize bounds the addressable unit width; units are read into
	// uint64.
	MaxMemsize = 8
)

// File is a fully loaded .dat container.
type File struct {
	// Name is the base name of the source file, empty for in-memory
	// containers.
	Name string

	Memsize   int
	RowLength int
	RowCount  int

	rows []byte
	heap []byte
}

// Open reads and parses the container at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open dat file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	f.Name = filepath.Base(path)
	return f, nil
}

// Parse validates data and returns the container. The returned File keeps
// sub-slices of data; callers must not mutate it afterwards.
func Parse(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("container too short: %d bytes", len(data))
	}
	if string(data[0:4]) != Magic {
		return nil, fmt.Errorf("bad magic %q", data[0:4])
	}
	version := int(binary.LittleEndian.Uint16(data[4:6]))
	if version != Version {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	memsize := int(binary.LittleEndian.Uint16(data[6:8]))
	if memsize < 1 || memsize > MaxMemsize {
		return nil, fmt.Errorf("memsize %d out of range [1,%d]", memsize, MaxMemsize)
	}
	rowLength := int(binary.LittleEndian.Uint32(data[8:12]))
	rowCount := int(binary.LittleEndian.Uint32(data[12:16]))
	heapSize := int(binary.LittleEndian.Uint32(data[16:20]))
	if rowLength < 1 {
		return nil, fmt.Errorf("rowLength must be >= 1")
	}

	want := uint64(HeaderSize) + uint64(rowCount)*uint64(rowLength) + uint64(heapSize)
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("container size %d does not match header (want %d)", len(data), want)
	}

	rowsEnd := HeaderSize + rowCount*rowLength
	return &File{
		Memsize:   memsize,
		RowLength: rowLength,
		RowCount:  rowCount,
		rows:      data[HeaderSize:rowsEnd],
		heap:      data[rowsEnd:],
	}, nil
}

// HeapSize returns the heap region size in bytes.
func (f *File) HeapSize() int { return len(f.heap) }

// Row returns the raw bytes of record k. The slice aliases the container;
// treat it as read-only. Out-of-range k panics like any slice access.
func (f *File) Row(k int) []byte {
	start := k * f.RowLength
	return f.rows[start : start+f.RowLength]
}

// HeapAt returns n heap bytes starting at off.
func (f *File) HeapAt(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(f.heap) {
		return nil, fmt.Errorf("heap reference [%d,%d) outside heap of %d bytes", off, off+n, len(f.heap))
	}
	return f.heap[off : off+n], nil
}

// Uint reads the little-endian unsigned value of b. len(b) must be 1..8.
func Uint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Int reads the little-endian two's-complement value of b. len(b) must be
// 1..8.
func Int(b []byte) int64 {
	v := Uint(b)
	bits := uint(len(b)) * 8
	if bits < 64 && v&(1<<(bits-1)) != 0 {
		v |= ^uint64(0) << bits
	}
	return int64(v)
}

// PutUint writes v little-endian into all of b, truncating to len(b) bytes.
func PutUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}
