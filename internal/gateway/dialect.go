package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect captures everything store-specific the gateway needs.
// Each supported database (PostgreSQL, MySQL, SQLite, DuckDB) implements it.
type Dialect interface {
	// Name is the configuration name of the dialect (e.g. "postgres").
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// Product is the human-readable store name used in resource descriptions.
	Product() string

	// ServerName returns the MCP server name reported by initialize.
	ServerName() string

	// URIScheme returns the resource URI scheme (e.g. "postgres").
	URIScheme() string

	// BuildDSN constructs a DSN from per-store environment variables. It is
	// used only when no connection URL is configured.
	BuildDSN(getenv func(string) string, readOnly bool) (string, error)

	// NormalizeDSN turns a configured connection URL into a DSN the driver accepts.
	NormalizeDSN(dsn string) (string, error)

	// ReadOnlyStatement is executed after connecting when writes are
	// disallowed. Empty means the store has no session-level switch.
	ReadOnlyStatement() string

	// ListTablesQuery lists table names of the default schema, one column per row.
	ListTablesQuery() string

	// ReadSchemaQuery returns the SQL query and arguments to read column info for a table.
	ReadSchemaQuery(tableName string) (string, []any)

	// ScanSchemaRow scans a single row from the schema query result into a column map.
	ScanSchemaRow(rows *sqlx.Rows) (map[string]any, error)

	// ColumnType maps a normalized database type name to the marshaler's enumeration.
	ColumnType(typeName string) ColumnType

	// QuoteIdentifier quotes a table name for interpolation.
	QuoteIdentifier(name string) string

	// StrictRules returns the lexical and keyword rules of the strict validator.
	StrictRules() StrictRules
}

var dialects = map[string]Dialect{}

func registerDialect(d Dialect, aliases ...string) {
	dialects[d.Name()] = d
	for _, a := range aliases {
		dialects[a] = d
	}
}

func init() {
	registerDialect(&PostgresDialect{}, "postgresql", "pg")
	registerDialect(&MySQLDialect{})
	registerDialect(&SQLiteDialect{}, "sqlite3")
	registerDialect(&DuckDBDialect{})
}

// LookupDialect returns the dialect registered under name (case-insensitive).
func LookupDialect(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ConfigError("unsupported database driver %q (supported: %s)", name, strings.Join(DialectNames(), ", "))
	}
	return d, nil
}

// DialectNames lists the canonical dialect names.
func DialectNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, d := range dialects {
		if !seen[d.Name()] {
			seen[d.Name()] = true
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)
	return names
}

// missingEnv reports which of the named variables are empty.
func missingEnv(getenv func(string) string, names ...string) error {
	var missing []string
	for _, n := range names {
		if getenv(n) == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return ConfigError("missing required environment variables: %v", missing)
	}
	return nil
}

// ansiQuote wraps an identifier in double quotes, doubling embedded quotes.
func ansiQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func lookupType(table map[string]ColumnType, typeName string) ColumnType {
	if ct, ok := table[typeName]; ok {
		return ct
	}
	return Unknown
}

func stripScheme(dsn string, schemes ...string) string {
	for _, s := range schemes {
		if rest, ok := strings.CutPrefix(dsn, s); ok {
			return rest
		}
	}
	return dsn
}

func describeTable(product, table string) string {
	return fmt.Sprintf("%s table: %s", product, table)
}
