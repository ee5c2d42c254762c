// Package config loads tool configuration from environment variables,
// applies defaults and validates the result before anything else starts.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"datview/internal/validation"
)

// Config holds every setting the command line tools share. Flags may
// override individual values after loading.
type Config struct {
	Session SessionConfig
	Cache   CacheConfig
	DB      DBConfig
	Export  ExportConfig
	Metrics MetricsConfig
}

// SessionConfig tunes the in-memory sheet session.
type SessionConfig struct {
	// NumberingStart offsets the wrap-around column tick labels.
	NumberingStart int `env:"NUMBERING_START" default:"0" json:"numbering_start" validate:"min=0"`

	// YieldEvery is the number of schema entries imported between yields.
	YieldEvery int `env:"IMPORT_YIELD_EVERY" default:"64" json:"import_yield_every" validate:"min=1"`
}

// CacheConfig locates the on-disk header cache.
type CacheConfig struct {
	// Dir is the header cache directory.
	Dir string `env:"CACHE_DIR" default:".datview-cache" json:"cache_dir" validate:"required"`
}

// DBConfig holds the load target. A full connection string in DSN wins
// over the component values; the components exist so deployments can keep
// credentials in separate variables.
type DBConfig struct {
	// Backend selects the storage driver.
	Backend string `env:"DB_BACKEND" default:"postgres" json:"db_backend" validate:"oneof=postgres sqlite mssql"`

	// DSN is the full connection string, when provided.
	DSN string `env:"DSN" envAlt:"DATABASE_URL" json:"-"`

	Host     string `env:"DSN_HOST" default:"localhost" json:"dsn_host"`
	Port     int    `env:"DSN_PORT" json:"dsn_port" validate:"min=0,max=65535"`
	User     string `env:"DSN_USER" json:"dsn_user"`
	Password string `env:"DSN_PASSWORD" json:"-"`
	Name     string `env:"DSN_DB" json:"dsn_db"`

	// SSLMode applies to postgres, Encrypt to mssql.
	SSLMode string `env:"DSN_SSLMODE" default:"disable" json:"dsn_sslmode"`
	Encrypt string `env:"DSN_ENCRYPT" default:"disable" json:"dsn_encrypt"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `env:"DSN_SQLITE" default:"datview.db" json:"dsn_sqlite"`

	// Params is appended verbatim to built DSNs, "k=v&k2=v2" form.
	Params string `env:"DSN_PARAMS" json:"dsn_params"`
}

// ExportConfig tunes the dataset export path.
type ExportConfig struct {
	// Schema is the target schema; empty means the backend default.
	Schema string `env:"EXPORT_SCHEMA" json:"export_schema"`

	// BatchSize is the number of rows per INSERT batch.
	BatchSize int `env:"EXPORT_BATCH_SIZE" default:"500" json:"export_batch_size" validate:"min=1,max=10000"`

	// Timeout bounds one whole load run.
	Timeout time.Duration `env:"EXPORT_TIMEOUT" default:"5m" json:"export_timeout" validate:"min=0"`
}

// MetricsConfig configures the optional Datadog backend.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" default:"false" json:"metrics_enabled"`

	// Env tags every submitted series. DD_ENV is the conventional name.
	Env string `env:"ENV" envAlt:"DD_ENV" default:"dev" json:"env"`

	FlushInterval time.Duration `env:"METRICS_FLUSH_INTERVAL" default:"10s" json:"metrics_flush_interval" validate:"min=1s"`

	// Tags holds extra "k:v" pairs, comma separated.
	Tags string `env:"METRICS_TAGS" json:"metrics_tags"`
}

// Validate checks the loaded values. All violations are reported at once.
func (c *Config) Validate() error {
	fieldErrs := validation.Validate(*c, nil)
	if fieldErrs == nil {
		return nil
	}
	parts := make([]string, 0, len(fieldErrs))
	for field, msgs := range fieldErrs {
		for _, m := range msgs {
			parts = append(parts, field+": "+m)
		}
	}
	sort.Strings(parts)
	return errors.New(strings.Join(parts, "; "))
}

// ResolveDSN returns the connection string for backend. Precedence:
// override (a -dsn flag), then the DSN environment value, then a DSN built
// from the component values.
func (c *DBConfig) ResolveDSN(backend, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch backend {
	case "postgres":
		return c.postgresDSN()
	case "mssql":
		return c.mssqlDSN()
	case "sqlite":
		return c.sqliteDSN()
	}
	return "", fmt.Errorf("no DSN builder for backend %q", backend)
}

func (c *DBConfig) postgresDSN() (string, error) {
	if c.Name == "" {
		return "", errors.New("building a postgres DSN requires DSN_DB")
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + strconv.Itoa(port),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = appendParams(q.Encode(), c.Params)
	return u.String(), nil
}

func (c *DBConfig) mssqlDSN() (string, error) {
	if c.Name == "" {
		return "", errors.New("building a mssql DSN requires DSN_DB")
	}
	port := c.Port
	if port == 0 {
		port = 1433
	}
	u := url.URL{
		Scheme: "sqlserver",
		Host:   c.Host + ":" + strconv.Itoa(port),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{}
	q.Set("database", c.Name)
	q.Set("encrypt", c.Encrypt)
	u.RawQuery = appendParams(q.Encode(), c.Params)
	return u.String(), nil
}

func (c *DBConfig) sqliteDSN() (string, error) {
	if c.SQLitePath == "" {
		return "", errors.New("building a sqlite DSN requires DSN_SQLITE")
	}
	if c.Params != "" {
		return c.SQLitePath + "?" + c.Params, nil
	}
	return c.SQLitePath, nil
}

func appendParams(encoded, params string) string {
	if params == "" {
		return encoded
	}
	if encoded == "" {
		return params
	}
	return encoded + "&" + params
}

// String renders the config for startup logging with credentials masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config{Cache: %q, ", c.Cache.Dir)
	fmt.Fprintf(&b, "DB: {Backend: %q, Host: %q, DB: %q, Password: [MASKED]}, ",
		c.DB.Backend, c.DB.Host, c.DB.Name)
	fmt.Fprintf(&b, "Export: {Schema: %q, BatchSize: %d, Timeout: %s}, ",
		c.Export.Schema, c.Export.BatchSize, c.Export.Timeout)
	fmt.Fprintf(&b, "Metrics: {Enabled: %v, Env: %q}}", c.Metrics.Enabled, c.Metrics.Env)
	return b.String()
}
