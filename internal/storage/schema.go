package storage

// TableSpec describes a destination table for a collected row set.
//
// Column types use Postgres spellings ("bigint", "double precision", "text",
// "boolean"); the sqlite and mssql backends translate them to their own DDL
// dialects. The JSON tags let CLIs accept a table spec from a file alongside
// the inferred one.
type TableSpec struct {
	Name       string          `json:"name"`
	AutoCreate bool            `json:"auto_create,omitempty"`
	PrimaryKey *PrimaryKeySpec `json:"primary_key,omitempty"`
	Columns    []ColumnSpec    `json:"columns"`
}

// PrimaryKeySpec declares the primary key column. The column is created first
// and is not expected to appear again in Columns.
type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ColumnSpec declares one destination column.
//
// Nullable semantics:
//   - nil   => nullable (no NOT NULL clause)
//   - true  => nullable
//   - false => NOT NULL
type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable,omitempty"`
}
