package gateway

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresDialect implements Dialect for PostgreSQL via lib/pq.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "postgres" }
func (d *PostgresDialect) Product() string    { return "PostgreSQL" }
func (d *PostgresDialect) ServerName() string { return "postgres-mcp-server" }
func (d *PostgresDialect) URIScheme() string  { return "postgres" }

func (d *PostgresDialect) BuildDSN(getenv func(string) string, _ bool) (string, error) {
	if err := missingEnv(getenv, "MCP_PG_HOST", "MCP_PG_PORT", "MCP_PG_DB", "MCP_PG_USER", "MCP_PG_PASSWORD"); err != nil {
		return "", err
	}
	sslmode := getenv("MCP_PG_SSLMODE")
	if sslmode == "" {
		sslmode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getenv("MCP_PG_USER"), getenv("MCP_PG_PASSWORD")),
		Host:     getenv("MCP_PG_HOST") + ":" + getenv("MCP_PG_PORT"),
		Path:     "/" + getenv("MCP_PG_DB"),
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String(), nil
}

// NormalizeDSN accepts both URL and key=value forms unchanged; lib/pq parses either.
func (d *PostgresDialect) NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", ConfigError("empty PostgreSQL connection string")
	}
	return dsn, nil
}

func (d *PostgresDialect) ReadOnlyStatement() string {
	return "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"
}

func (d *PostgresDialect) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
}

func (d *PostgresDialect) ReadSchemaQuery(tableName string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_catalog = current_database() AND table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, []any{tableName}
}

func (d *PostgresDialect) ScanSchemaRow(rows *sqlx.Rows) (map[string]any, error) {
	var colName, dataType, isNullable string
	var colDefault sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colDefault); err != nil {
		return nil, fmt.Errorf("scan column info: %w", err)
	}

	col := map[string]any{
		"column_name": colName,
		"data_type":   dataType,
		"is_nullable": isNullable,
	}
	if colDefault.Valid {
		col["column_default"] = colDefault.String
	}
	return col, nil
}

// lib/pq reports upper-cased type names from pg_type.
var postgresTypes = map[string]ColumnType{
	"INT2":        SmallInt,
	"INT4":        Int,
	"INT8":        BigInt,
	"TEXT":        Text,
	"VARCHAR":     Text,
	"BPCHAR":      Text,
	"NAME":        Text,
	"BOOL":        Bool,
	"FLOAT4":      Real,
	"FLOAT8":      Double,
	"NUMERIC":     Decimal,
	"TIMESTAMP":   Timestamp,
	"TIMESTAMPTZ": TimestampTZ,
	"DATE":        Date,
	"TIME":        Time,
	"TIMETZ":      TimeTZ,
	"UUID":        UUID,
	"JSON":        Document,
	"JSONB":       Document,
}

func (d *PostgresDialect) ColumnType(typeName string) ColumnType {
	return lookupType(postgresTypes, typeName)
}

func (d *PostgresDialect) QuoteIdentifier(name string) string { return ansiQuote(name) }

var postgresStrictRules = newStrictRules(
	lexRules{dollarQuotes: true, doubleQuoteIdent: true},
	[]string{"CALL", "EXECUTE", "COPY", "LISTEN", "NOTIFY", "PREPARE", "DEALLOCATE", "VACUUM", "REINDEX", "CLUSTER"},
	[]patternRule{
		{`(?i)\bCOPY\s+.*\bTO\b`, "COPY ... TO"},
		{`(?i)\bCOPY\s+.*\bFROM\b`, "COPY ... FROM"},
		{`(?i)\bpg_read_file\s*\(`, "pg_read_file()"},
		{`(?i)\bpg_read_binary_file\s*\(`, "pg_read_binary_file()"},
		{`(?i)\bpg_ls_dir\s*\(`, "pg_ls_dir()"},
		{`(?i)\blo_import\s*\(`, "lo_import()"},
		{`(?i)\blo_export\s*\(`, "lo_export()"},
		{`(?i)\bpg_sleep(?:_for|_until)?\s*\(`, "pg_sleep()"},
		{`(?i)\bpg_(?:try_)?advisory(?:_xact)?_lock\s*\(`, "pg_advisory_lock()"},
	},
)

func (d *PostgresDialect) StrictRules() StrictRules { return postgresStrictRules }
