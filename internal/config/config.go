// Package config loads server configuration from defaults, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj707chen/postgres-mcp-server/internal/gateway"
)

const (
	DefaultDriver = "postgres"
	DefaultHost   = "127.0.0.1"
	DefaultPort   = 8080
)

// Config holds the gateway and transport settings.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	// Driver selects the dialect. Empty means infer from the DatabaseURL scheme.
	Driver string `yaml:"driver"`

	AllowWrite         bool          `yaml:"dangerously_allow_write_ops"`
	StrictReadOnly     bool          `yaml:"strict_read_only"`
	ValidateTableNames bool          `yaml:"validate_table_names"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text or json

	RateLimitRPS       float64  `yaml:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Warnings collects non-fatal problems found while loading. They are
	// logged once the logger exists.
	Warnings []string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		ConnectTimeout: gateway.DefaultConnectTimeout,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load applies the YAML file at path (if non-empty) and then the
// environment on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return gateway.ConfigError("read config file %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return gateway.ConfigError("parse config file %s: %v", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("DATABASE_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := getenv("DANGEROUSLY_ALLOW_WRITE_OPS"); v != "" {
		c.AllowWrite = v == "1" || strings.EqualFold(v, "true")
	}
	c.StrictReadOnly = c.boolEnv(getenv, "STRICT_READ_ONLY", c.StrictReadOnly)
	c.ValidateTableNames = c.boolEnv(getenv, "VALIDATE_TABLE_NAMES", c.ValidateTableNames)

	if v := getenv("MCP_SERVER_HOST"); v != "" {
		c.Host = v
	}
	if v := getenv("MCP_SERVER_PORT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.Port = int(n)
		} else {
			c.warn("ignoring invalid MCP_SERVER_PORT %q", v)
		}
	}
	if v := getenv("CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConnectTimeout = d
		} else {
			c.warn("ignoring invalid CONNECT_TIMEOUT %q", v)
		}
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	// Rate limiting
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimitRPS = f
		} else {
			c.warn("ignoring invalid RATE_LIMIT_RPS %q", v)
		}
	}
	if v := getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitBurst = n
		} else {
			c.warn("ignoring invalid RATE_LIMIT_BURST %q", v)
		}
	}

	// CORS
	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}
}

func (c *Config) boolEnv(getenv func(string) string, name string, def bool) bool {
	v := getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.warn("ignoring invalid %s %q", name, v)
		return def
	}
	return b
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return gateway.ConfigError("port %d out of range", c.Port)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return gateway.ConfigError("unsupported log format %q (text or json)", c.LogFormat)
	}
	if c.RateLimitRPS < 0 {
		return gateway.ConfigError("rate limit must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = int(c.RateLimitRPS*2) + 1
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// DialectName resolves the driver: explicit setting, else the URL scheme,
// else postgres.
func (c *Config) DialectName() string {
	if c.Driver != "" {
		return c.Driver
	}
	if c.DatabaseURL != "" {
		if u, err := url.Parse(c.DatabaseURL); err == nil {
			switch strings.ToLower(u.Scheme) {
			case "postgres", "postgresql":
				return "postgres"
			case "mysql":
				return "mysql"
			case "sqlite", "sqlite3", "file":
				return "sqlite"
			case "duckdb":
				return "duckdb"
			}
		}
	}
	return DefaultDriver
}

// Resolve returns the dialect and the DSN to hand to its driver. When
// DatabaseURL is empty the dialect builds a DSN from its own variables.
func (c *Config) Resolve(getenv func(string) string) (gateway.Dialect, string, error) {
	dialect, err := gateway.LookupDialect(c.DialectName())
	if err != nil {
		return nil, "", err
	}

	var dsn string
	if c.DatabaseURL != "" {
		dsn, err = dialect.NormalizeDSN(c.DatabaseURL)
	} else {
		dsn, err = dialect.BuildDSN(getenv, !c.AllowWrite)
	}
	if err != nil {
		return nil, "", err
	}
	if dsn == "" {
		return nil, "", gateway.ConfigError("DATABASE_URL environment variable not set")
	}
	return dialect, dsn, nil
}

// GatewayConfig converts the settings for gateway.New.
func (c *Config) GatewayConfig(dialect gateway.Dialect, dsn string, logger *slog.Logger) gateway.Config {
	return gateway.Config{
		Dialect:            dialect,
		DSN:                dsn,
		AllowWrite:         c.AllowWrite,
		StrictReadOnly:     c.StrictReadOnly,
		ValidateTableNames: c.ValidateTableNames,
		ConnectTimeout:     c.ConnectTimeout,
		Logger:             logger,
	}
}
