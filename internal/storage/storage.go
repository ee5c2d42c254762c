package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config is the minimal configuration needed to create a row repository.
//
// When to use:
//   - Use Config when constructing a Repository via New.
//
// Edge cases:
//   - Backend must be non-empty and must match a registered backend name.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - Schema is advisory: it participates in QualifyTable but is not consumed
//     by the factories themselves.
type Config struct {
	Backend string
	DSN     string
	Schema  string
}

// Repository is a backend-agnostic destination for materialized row sets.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the export engine needs. Each backend implements these semantics
// in its own idiomatic way (Postgres CREATE TABLE IF NOT EXISTS, SQL Server
// OBJECT_ID guards, etc).
type Repository interface {
	// EnsureTable creates the destination table described by spec.
	//
	// Edge cases:
	//   - If spec.AutoCreate is false, EnsureTable is a no-op.
	//   - Implementations must be idempotent; running the same spec twice
	//     must not fail.
	EnsureTable(ctx context.Context, spec TableSpec) error

	// InsertRows appends rows to table. columns fixes the value order for
	// every row; each row must have exactly len(columns) values.
	//
	// Returns the number of rows the database reported written. Backends may
	// split the insert into several statements to respect driver parameter
	// limits, so a failure can leave earlier chunks committed.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Close releases any backend resources (connections, prepared statements, etc).
	//
	// Edge cases:
	//   - Implementations should be safe to call once at process shutdown.
	//   - Repeated calls may be a no-op or may panic, depending on backend;
	//     callers should treat Close as "call once".
	Close()
}

// Factory constructs a Repository from a resolved Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend factory under a name (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The name becomes the lookup key used by New.
//
// Panics:
//   - If name is empty.
//   - If f is nil.
//   - If name is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(name string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if name == "" {
		panic("storage: Register called with empty backend")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("storage: factory already registered for backend=%q", name))
	}

	factories[name] = f
}

// New constructs a Repository using the registered backend factory.
//
// Edge cases:
//   - If cfg.Backend is empty, New returns an error.
//   - If cfg.Backend is not registered, New returns an error naming the
//     backends that are.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Backend == "" {
		return nil, fmt.Errorf("storage: missing config.Backend")
	}

	factoryMu.RLock()
	f := factories[cfg.Backend]
	factoryMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.backend=%s (registered: %s)",
			cfg.Backend, strings.Join(Backends(), ", "))
	}
	return f(ctx, cfg)
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// QualifyTable resolves the fully qualified destination table name for a
// backend.
//
// Rules:
//   - A table that already contains a dot is returned unchanged.
//   - sqlite has no schemas; the bare table name is returned.
//   - An empty schema falls back to the backend default ("public" for
//     postgres, "dbo" for mssql).
func QualifyTable(backend, schema, table string) string {
	table = strings.TrimSpace(table)
	if strings.Contains(table, ".") {
		return table
	}
	if backend == "sqlite" {
		return table
	}

	schema = strings.TrimSpace(schema)
	if schema == "" {
		switch backend {
		case "postgres":
			schema = "public"
		case "mssql":
			schema = "dbo"
		}
	}
	if schema == "" {
		return table
	}
	return schema + "." + table
}
