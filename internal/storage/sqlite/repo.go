package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"datview/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite's default variable limit is 999, so bulk inserts are chunked
//     well below that.
//   - modernc.org/sqlite allows a single writer; the pool is capped at one
//     connection so concurrent batch inserts serialize instead of failing
//     with SQLITE_BUSY.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (or creates) the SQLite database at cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTable creates the destination table when spec.AutoCreate is set.
// The statement uses CREATE TABLE IF NOT EXISTS, so startup stays idempotent.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	if !spec.AutoCreate {
		return nil
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertRows performs chunked multi-row inserts.
//
// Each chunk stays below the SQLite variable limit. A failure mid-way leaves
// earlier chunks committed; callers that need atomicity should load into a
// fresh database file.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: InsertRows: columns is empty")
	}

	maxRows := 900 / max(1, len(columns))
	if maxRows < 1 {
		maxRows = 1
	}

	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := start + maxRows
		if end > len(rows) {
			end = len(rows)
		}

		q, args := buildInsertSQL(table, columns, rows[start:end])
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// buildInsertSQL constructs one INSERT ... VALUES statement with "?"
// placeholders and its normalized args.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for j := range columns {
			args = append(args, storage.NormalizeValue(row[j]))
		}
	}
	return b.String(), args
}

// buildCreateSQL generates CREATE TABLE IF NOT EXISTS DDL.
//
// Column types pass through verbatim: SQLite's affinity rules map the
// Postgres spellings ("bigint", "double precision", "text") to the right
// storage classes. Only the primary key type is translated, because an
// integer primary key must be spelled INTEGER to alias the rowid.
func buildCreateSQL(spec storage.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string

	if spec.PrimaryKey != nil {
		pk := strings.TrimSpace(spec.PrimaryKey.Name)
		pkType := strings.ToLower(strings.TrimSpace(spec.PrimaryKey.Type))
		if pk == "" || pkType == "" {
			return "", fmt.Errorf("table %s: primary_key.name and primary_key.type are required", spec.Name)
		}
		switch pkType {
		case "bigint", "int", "integer", "serial", "bigserial":
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY`, sqlIdent(pk)))
		default:
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(pk), spec.PrimaryKey.Type))
		}
	}

	for _, c := range spec.Columns {
		name := strings.TrimSpace(c.Name)
		typ := strings.TrimSpace(c.Type)
		if name == "" || typ == "" {
			return "", fmt.Errorf("table %s: column name/type must be set", spec.Name)
		}
		col := fmt.Sprintf("%s %s", sqlIdent(name), typ)
		nullable := true
		if c.Nullable != nil {
			nullable = *c.Nullable
		}
		if !nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("table %s: no columns", spec.Name)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		spec.Name, strings.Join(parts, ",\n  ")), nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
