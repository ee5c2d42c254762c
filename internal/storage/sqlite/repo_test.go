package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"datview/internal/storage"
)

func boolPtr(v bool) *bool { return &v }

func TestBuildCreateSQL_IntegerPrimaryKeyAliasesRowid(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "loads",
		AutoCreate: true,
		PrimaryKey: &storage.PrimaryKeySpec{Name: "_rid", Type: "bigint"},
		Columns: []storage.ColumnSpec{
			{Name: "name", Type: "text"},
			{Name: "score", Type: "bigint", Nullable: boolPtr(false)},
			{Name: "ratio", Type: "double precision"},
		},
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS loads") {
		t.Fatalf("ddl missing CREATE TABLE: %q", ddl)
	}
	// "bigint" must be rewritten so the primary key aliases the rowid.
	if !strings.Contains(ddl, `"_rid" INTEGER PRIMARY KEY`) {
		t.Fatalf("ddl missing INTEGER PRIMARY KEY: %q", ddl)
	}
	if !strings.Contains(ddl, `"score" bigint NOT NULL`) {
		t.Fatalf("ddl missing NOT NULL on score: %q", ddl)
	}
	// Non-integer column types pass through; affinity handles them.
	if !strings.Contains(ddl, `"ratio" double precision`) {
		t.Fatalf("ddl missing pass-through column type: %q", ddl)
	}
}

func TestBuildCreateSQL_NonIntegerPrimaryKeyPassesThrough(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "loads",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "key", Type: "text"},
		Columns:    []storage.ColumnSpec{{Name: "v", Type: "text"}},
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(ddl, `"key" text PRIMARY KEY`) {
		t.Fatalf("expected pass-through primary key type: %q", ddl)
	}
}

func TestBuildCreateSQL_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TableSpec
	}{
		{"empty table name", storage.TableSpec{Columns: []storage.ColumnSpec{{Name: "a", Type: "text"}}}},
		{"no columns", storage.TableSpec{Name: "loads"}},
		{"unnamed column", storage.TableSpec{Name: "loads", Columns: []storage.ColumnSpec{{Type: "text"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := buildCreateSQL(tt.spec); err == nil {
				t.Fatalf("expected error, got none")
			}
		})
	}
}

func TestBuildInsertSQL_PlaceholdersAndNormalizedArgs(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL(
		"loads",
		[]string{"_rid", "name", "tags"},
		[][]any{
			{int64(0), "ada", []int64{10, 20}},
			{int64(1), nil, []int64{}},
		},
	)

	if !strings.Contains(q, "INSERT INTO loads") {
		t.Fatalf("unexpected insert SQL: %q", q)
	}
	if !strings.Contains(q, "VALUES (?,?,?), (?,?,?)") {
		t.Fatalf("unexpected placeholders: %q", q)
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
	if args[2] != "[10,20]" {
		t.Fatalf("expected JSON text for array, got %#v", args[2])
	}
	if args[4] != nil {
		t.Fatalf("expected nil for null value, got %#v", args[4])
	}
	if args[5] != "[]" {
		t.Fatalf("expected JSON text for empty array, got %#v", args[5])
	}
}

func TestRepoRoundTrip_InMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := New(ctx, storage.Config{Backend: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	spec := storage.TableSpec{
		Name:       "loads",
		AutoCreate: true,
		PrimaryKey: &storage.PrimaryKeySpec{Name: "_rid", Type: "bigint"},
		Columns: []storage.ColumnSpec{
			{Name: "name", Type: "text"},
			{Name: "tags", Type: "text"},
		},
	}
	if err := repo.EnsureTable(ctx, spec); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	// Running the same DDL again must be a no-op.
	if err := repo.EnsureTable(ctx, spec); err != nil {
		t.Fatalf("EnsureTable second run: %v", err)
	}

	// 700 rows x 3 columns forces several insert chunks.
	const rowCount = 700
	rows := make([][]any, 0, rowCount)
	for i := range rowCount {
		rows = append(rows, []any{int64(i), fmt.Sprintf("name%d", i), []int64{int64(i)}})
	}
	rows[5][1] = nil

	n, err := repo.InsertRows(ctx, "loads", []string{"_rid", "name", "tags"}, rows)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != rowCount {
		t.Fatalf("expected %d rows inserted, got %d", rowCount, n)
	}

	db := repo.(*Repo).db

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM loads").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != rowCount {
		t.Fatalf("expected %d rows in table, got %d", rowCount, count)
	}

	var tags string
	if err := db.QueryRowContext(ctx, "SELECT tags FROM loads WHERE _rid = 10").Scan(&tags); err != nil {
		t.Fatalf("select tags: %v", err)
	}
	if tags != "[10]" {
		t.Fatalf("expected JSON array text, got %q", tags)
	}

	var name sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT name FROM loads WHERE _rid = 5").Scan(&name); err != nil {
		t.Fatalf("select name: %v", err)
	}
	if name.Valid {
		t.Fatalf("expected NULL name for row 5, got %q", name.String)
	}
}
