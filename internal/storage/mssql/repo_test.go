package mssql

import (
	"strings"
	"testing"

	"datview/internal/storage"
)

func boolPtr(v bool) *bool { return &v }

func TestBuildCreateSQL_WrapsInObjectIDGuard(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "dbo.loads",
		AutoCreate: true,
		PrimaryKey: &storage.PrimaryKeySpec{Name: "_rid", Type: "bigint"},
		Columns: []storage.ColumnSpec{
			{Name: "name", Type: "text"},
			{Name: "active", Type: "boolean", Nullable: boolPtr(false)},
			{Name: "ratio", Type: "double precision"},
		},
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}

	if !strings.Contains(ddl, "IF OBJECT_ID(N'dbo.loads', N'U') IS NULL BEGIN CREATE TABLE [dbo].[loads]") {
		t.Fatalf("ddl missing OBJECT_ID guard: %q", ddl)
	}
	if !strings.HasSuffix(ddl, "END;") {
		t.Fatalf("ddl missing closing END: %q", ddl)
	}
	if !strings.Contains(ddl, "[_rid] BIGINT PRIMARY KEY") {
		t.Fatalf("ddl missing primary key: %q", ddl)
	}

	// Postgres type spellings must be translated.
	if !strings.Contains(ddl, "[name] NVARCHAR(MAX)") {
		t.Fatalf("text not translated to NVARCHAR(MAX): %q", ddl)
	}
	if !strings.Contains(ddl, "[active] BIT NOT NULL") {
		t.Fatalf("boolean not translated to BIT: %q", ddl)
	}
	if !strings.Contains(ddl, "[ratio] FLOAT") {
		t.Fatalf("double precision not translated to FLOAT: %q", ddl)
	}
}

func TestBuildCreateSQL_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TableSpec
	}{
		{"empty table name", storage.TableSpec{Columns: []storage.ColumnSpec{{Name: "a", Type: "text"}}}},
		{"no columns", storage.TableSpec{Name: "dbo.loads"}},
		{"untyped column", storage.TableSpec{Name: "dbo.loads", Columns: []storage.ColumnSpec{{Name: "a"}}}},
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

func TestBuildInsertSQL_NamedPlaceholders(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL(
		"dbo.loads",
		[]string{"_rid", "name", "tags"},
		[][]any{
			{int64(0), "ada", []int64{10, 20}},
			{int64(1), nil, []int64{}},
		},
	)

	if !strings.Contains(q, "INSERT INTO [dbo].[loads] ([_rid], [name], [tags])") {
		t.Fatalf("unexpected insert prefix: %q", q)
	}
	if !strings.Contains(q, "VALUES (@p1, @p2, @p3), (@p4, @p5, @p6)") {
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
}

func TestMssqlIdent_EscapesBrackets(t *testing.T) {
	t.Parallel()

	if got := mssqlIdent("we]ird"); got != "[we]]ird]" {
		t.Fatalf("mssqlIdent: got %q", got)
	}
	if got := mssqlTableIdent("etl.loads"); got != "[etl].[loads]" {
		t.Fatalf("mssqlTableIdent: got %q", got)
	}
	if got := mssqlTableIdent("loads"); got != "[loads]" {
		t.Fatalf("mssqlTableIdent bare: got %q", got)
	}
}

func TestMssqlType_Translation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"boolean", "BIT"},
		{"bigint", "BIGINT"},
		{"double precision", "FLOAT"},
		{"text", "NVARCHAR(MAX)"},
		{"Double Precision", "FLOAT"},
		{"datetime2", "datetime2"},
	}
	for _, tt := range tests {
		if got := mssqlType(tt.in); got != tt.want {
			t.Fatalf("mssqlType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
