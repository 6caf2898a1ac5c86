package gateway

import (
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
)

// DuckDBDialect implements Dialect for DuckDB database files.
type DuckDBDialect struct{}

func (d *DuckDBDialect) Name() string       { return "duckdb" }
func (d *DuckDBDialect) DriverName() string { return "duckdb" }
func (d *DuckDBDialect) Product() string    { return "DuckDB" }
func (d *DuckDBDialect) ServerName() string { return "duckdb-mcp-server" }
func (d *DuckDBDialect) URIScheme() string  { return "duckdb" }

// BuildDSN opens MCP_DUCKDB_PATH; an empty path is an in-memory database.
// DuckDB has no session-level read-only switch, so read-only mode is
// requested through the access_mode open option instead.
func (d *DuckDBDialect) BuildDSN(getenv func(string) string, readOnly bool) (string, error) {
	dbPath := getenv("MCP_DUCKDB_PATH")
	if !readOnly || dbPath == "" || strings.Contains(dbPath, "access_mode=") {
		return dbPath, nil
	}
	if strings.Contains(dbPath, "?") {
		return dbPath + "&access_mode=read_only", nil
	}
	return dbPath + "?access_mode=read_only", nil
}

func (d *DuckDBDialect) NormalizeDSN(dsn string) (string, error) {
	return stripScheme(dsn, "duckdb://", "duckdb:"), nil
}

func (d *DuckDBDialect) ReadOnlyStatement() string { return "" }

func (d *DuckDBDialect) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`
}

func (d *DuckDBDialect) ReadSchemaQuery(tableName string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position`, []any{tableName}
}

// ScanSchemaRow shares the information_schema layout used by PostgreSQL.
func (d *DuckDBDialect) ScanSchemaRow(rows *sqlx.Rows) (map[string]any, error) {
	return (&PostgresDialect{}).ScanSchemaRow(rows)
}

var duckdbTypes = map[string]ColumnType{
	"TINYINT":                  SmallInt,
	"SMALLINT":                 SmallInt,
	"UTINYINT":                 SmallInt,
	"INTEGER":                  Int,
	"USMALLINT":                Int,
	"BIGINT":                   BigInt,
	"UINTEGER":                 BigInt,
	"VARCHAR":                  Text,
	"BOOLEAN":                  Bool,
	"FLOAT":                    Real,
	"DOUBLE":                   Double,
	"DECIMAL":                  Decimal,
	"HUGEINT":                  Decimal,
	"UBIGINT":                  Decimal,
	"TIMESTAMP":                Timestamp,
	"TIMESTAMP_S":              Timestamp,
	"TIMESTAMP_MS":             Timestamp,
	"TIMESTAMP_NS":             Timestamp,
	"TIMESTAMPTZ":              TimestampTZ,
	"TIMESTAMP WITH TIME ZONE": TimestampTZ,
	"DATE":                     Date,
	"TIME":                     Time,
	"TIMETZ":                   TimeTZ,
	"UUID":                     UUID,
	"JSON":                     Document,
}

func (d *DuckDBDialect) ColumnType(typeName string) ColumnType {
	return lookupType(duckdbTypes, typeName)
}

func (d *DuckDBDialect) QuoteIdentifier(name string) string { return ansiQuote(name) }

var duckdbStrictRules = newStrictRules(
	lexRules{dollarQuotes: true, doubleQuoteIdent: true},
	[]string{"COPY", "ATTACH", "DETACH", "INSTALL", "LOAD", "EXPORT", "IMPORT", "CALL", "CHECKPOINT", "VACUUM"},
	[]patternRule{
		{`(?i)\bCOPY\s+.*\bTO\b`, "COPY ... TO"},
		{`(?i)\bread_(?:text|blob)\s*\(`, "read_text()"},
	},
)

func (d *DuckDBDialect) StrictRules() StrictRules { return duckdbStrictRules }
