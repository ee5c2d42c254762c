package headercache

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"datview/internal/schema"
)

func strptr(s string) *string { return &s }

func testIdentity() Identity {
	return Identity{Name: "orders.dat", Memsize: 2, RowLength: 12, RowCount: 3}
}

func testEntries() []schema.SerializedHeader {
	return []schema.SerializedHeader{
		{Name: strptr("name"), Type: "string"},
		{Type: "raw", Size: 2},
		{Name: strptr("parent"), Type: "key"},
		{Name: strptr("tags"), Type: "integer", Array: true},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	id := testIdentity()
	if err := s.Update(id, testEntries()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, testEntries()) {
		t.Fatalf("Load = %+v, want the entries written", got)
	}

	raw, err := os.ReadFile(s.entryPath(id))
	if err != nil {
		t.Fatalf("reading entry file: %v", err)
	}
	// zstd frame magic; the entry must not be stored as plain JSON.
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Fatalf("entry file does not start with a zstd frame, got % x", raw[:4])
	}
}

func TestStoreUpdateReplaces(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	id := testIdentity()
	if err := s.Update(id, testEntries()); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	second := []schema.SerializedHeader{{Name: strptr("only"), Type: "integer", Size: 4}}
	if err := s.Update(id, second); err != nil {
		t.Fatalf("second Update: %v", err)
	}

	got, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("Load = %+v, want the second write only", got)
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	_, err := s.Load(testIdentity())
	if !errors.Is(err, ErrNotCached) {
		t.Fatalf("Load on empty dir = %v, want ErrNotCached", err)
	}
}

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	id := testIdentity()
	k := id.Key()
	if len(k) != 64 || strings.ToLower(k) != k {
		t.Fatalf("Key() = %q, want 64 lowercase hex chars", k)
	}
	if id.Key() != k {
		t.Fatalf("Key() is not deterministic")
	}

	variants := []Identity{
		{Name: "other.dat", Memsize: 2, RowLength: 12, RowCount: 3},
		{Name: "orders.dat", Memsize: 4, RowLength: 12, RowCount: 3},
		{Name: "orders.dat", Memsize: 2, RowLength: 14, RowCount: 3},
		{Name: "orders.dat", Memsize: 2, RowLength: 12, RowCount: 4},
	}
	for _, v := range variants {
		if v.Key() == k {
			t.Fatalf("identity %+v collides with %+v", v, id)
		}
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	id := testIdentity()

	doc := document{Version: 99, Entries: testEntries()}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(s.entryPath(id), encoder.EncodeAll(raw, nil), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err = s.Load(id)
	if err == nil || !strings.Contains(err.Error(), "version 99") {
		t.Fatalf("Load = %v, want a version complaint", err)
	}
}

func TestUpdateStampsDocument(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(t.TempDir())
	s.now = func() time.Time { return fixed }

	id := testIdentity()
	if err := s.Update(id, testEntries()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	compressed, err := os.ReadFile(s.entryPath(id))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if doc.Version != docVersion {
		t.Fatalf("document version = %d, want %d", doc.Version, docVersion)
	}
	if !doc.SavedAt.Equal(fixed) {
		t.Fatalf("SavedAt = %v, want %v", doc.SavedAt, fixed)
	}
	if _, err := uuid.Parse(doc.RunID); err != nil {
		t.Fatalf("RunID %q is not a UUID: %v", doc.RunID, err)
	}
	if doc.File != id.Name || doc.Memsize != id.Memsize || doc.RowLength != id.RowLength || doc.RowCount != id.RowCount {
		t.Fatalf("document identity = %+v, want %+v", doc, id)
	}
}
