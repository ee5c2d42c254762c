// Package headercache persists serialized header schemas on disk, keyed by
// the identity of the container they describe.
//
// Entries are small JSON documents compressed with zstd; one file per
// container identity. The cache is advisory: a miss or a corrupt entry
// never blocks a session, callers fall back to importing an explicit
// schema or working from statistics alone.
package headercache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"datview/internal/datfile"
	"datview/internal/schema"
)

// ErrNotCached reports a lookup for a container with no cache entry.
// Match with errors.Is.
var ErrNotCached = errors.New("headercache: no cached headers for this file")

const (
	docVersion = 1
	fileSuffix = ".hdr.zst"
)

// Shared zstd coders; EncodeAll and DecodeAll are safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("headercache: init zstd encoder: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("headercache: init zstd decoder: " + err.Error())
	}
}

// Identity names a container for cache purposes. Two files agree on the
// same cache entry when name, unit width and row geometry all match; a
// rewritten file with a different row count misses on purpose, since its
// statistics may no longer validate the cached schema.
type Identity struct {
	Name      string
	Memsize   int
	RowLength int
	RowCount  int
}

// IdentityOf derives the cache identity of a loaded container.
func IdentityOf(f *datfile.File) Identity {
	return Identity{
		Name:      f.Name,
		Memsize:   f.Memsize,
		RowLength: f.RowLength,
		RowCount:  f.RowCount,
	}
}

// Key returns the cache file stem: hex SHA-256 of the canonical identity
// string. The fields are joined with an unprintable separator so no two
// identities share a canonical form.
func (id Identity) Key() string {
	s := strings.Join([]string{
		id.Name,
		strconv.Itoa(id.Memsize),
		strconv.Itoa(id.RowLength),
		strconv.Itoa(id.RowCount),
	}, "\x1f")
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// document is the on-disk cache entry, JSON before compression. RunID and
// SavedAt identify the run that wrote the entry; they are diagnostic only
// and never consulted on load.
type document struct {
	Version   int                       `json:"version"`
	RunID     string                    `json:"run_id"`
	SavedAt   time.Time                 `json:"saved_at"`
	File      string                    `json:"file"`
	Memsize   int                       `json:"memsize"`
	RowLength int                       `json:"row_length"`
	RowCount  int                       `json:"row_count"`
	Entries   []schema.SerializedHeader `json:"entries"`
}

// Store reads and writes cache entries under a single directory.
type Store struct {
	// Dir is the cache directory, created on the first Update.
	Dir string

	// now is an optional seam to make timestamps testable. When nil,
	// time.Now is used.
	now func() time.Time
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) entryPath(id Identity) string {
	return filepath.Join(s.Dir, id.Key()+fileSuffix)
}

// Update writes entries as the cache entry for id, replacing any previous
// one.
func (s *Store) Update(id Identity, entries []schema.SerializedHeader) error {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	doc := document{
		Version:   docVersion,
		RunID:     uuid.NewString(),
		SavedAt:   now().UTC(),
		File:      id.Name,
		Memsize:   id.Memsize,
		RowLength: id.RowLength,
		RowCount:  id.RowCount,
		Entries:   entries,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("headercache: encode document: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("headercache: create cache dir: %w", err)
	}
	compressed := encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	if err := os.WriteFile(s.entryPath(id), compressed, 0o644); err != nil {
		return fmt.Errorf("headercache: write cache entry: %w", err)
	}
	return nil
}

// Load returns the cached entries for id, or ErrNotCached when the
// container has no entry.
func (s *Store) Load(id Identity) ([]schema.SerializedHeader, error) {
	compressed, err := os.ReadFile(s.entryPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, id.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("headercache: read cache entry: %w", err)
	}
	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("headercache: decompress cache entry: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("headercache: decode cache entry: %w", err)
	}
	if doc.Version != docVersion {
		return nil, fmt.Errorf("headercache: unsupported cache document version %d", doc.Version)
	}
	return doc.Entries, nil
}
