package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"datview/internal/storage"
)

// Repo implements storage.Repository for SQL Server.
//
// Inserts are chunked to stay below SQL Server's statement parameter limit
// (2100). DDL uses an OBJECT_ID guard because SQL Server has no
// CREATE TABLE IF NOT EXISTS.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// Connectivity is validated via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty batch loads.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTable creates the destination table when spec.AutoCreate is set.
//
// The destination schema must already exist; only "dbo" is guaranteed.
// This method is idempotent and safe to run on every load.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	if !spec.AutoCreate {
		return nil
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertRows inserts rows in chunks sized to the parameter limit.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: InsertRows: columns is empty")
	}

	// SQL Server's limit is 2100 parameters per statement. Each row uses
	// len(columns) parameters; keep a margin below the hard cap.
	maxRows := 2000 / max(1, len(columns))
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
			return total, fmt.Errorf("mssql: insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// buildInsertSQL constructs one INSERT ... VALUES statement with @pN
// placeholders and its normalized args.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, storage.NormalizeValue(row[j]))
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args
}

// buildCreateSQL builds idempotent CREATE TABLE SQL wrapped in an OBJECT_ID
// guard. Column types arrive in Postgres spellings and are translated to
// their SQL Server equivalents.
func buildCreateSQL(spec storage.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var parts []string

	if spec.PrimaryKey != nil {
		pk := strings.TrimSpace(spec.PrimaryKey.Name)
		pkType := strings.TrimSpace(spec.PrimaryKey.Type)
		if pk == "" || pkType == "" {
			return "", fmt.Errorf("mssql: table %s: primary_key.name and primary_key.type are required", spec.Name)
		}
		parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk), mssqlType(pkType)))
	}

	for _, c := range spec.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: %w", spec.Name, err)
		}
		parts = append(parts, def)
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("mssql: table %s: no columns", spec.Name)
	}

	return wrapCreateIfMissing(spec.Name, strings.Join(parts, ", ")), nil
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
//
// This keeps EnsureTable idempotent without requiring IF NOT EXISTS syntax.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		tableName,
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// mssqlColumnDef builds a SQL Server column definition from storage.ColumnSpec.
func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("column %s type is empty", c.Name)
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(mssqlType(c.Type))

	nullable := true
	if c.Nullable != nil {
		nullable = *c.Nullable
	}
	if !nullable {
		b.WriteString(" NOT NULL")
	}
	return b.String(), nil
}

// mssqlType translates a Postgres-spelled column type to SQL Server.
// Unknown types pass through verbatim.
func mssqlType(typ string) string {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "boolean":
		return "BIT"
	case "bigint":
		return "BIGINT"
	case "double precision":
		return "FLOAT"
	case "text":
		return "NVARCHAR(MAX)"
	default:
		return typ
	}
}

// mssqlIdent returns a bracket-quoted identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.loads" -> [dbo].[loads]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
