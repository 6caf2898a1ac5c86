package gateway

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }
func (d *SQLiteDialect) Product() string    { return "SQLite" }
func (d *SQLiteDialect) ServerName() string { return "sqlite-mcp-server" }
func (d *SQLiteDialect) URIScheme() string  { return "sqlite" }

func (d *SQLiteDialect) BuildDSN(getenv func(string) string, readOnly bool) (string, error) {
	if err := missingEnv(getenv, "MCP_SQLITE_PATH"); err != nil {
		return "", err
	}
	dbPath := getenv("MCP_SQLITE_PATH")
	if !readOnly || strings.Contains(dbPath, "mode=") {
		return dbPath, nil
	}
	// mode=ro is only honored for URI filenames.
	if !strings.HasPrefix(dbPath, "file:") {
		dbPath = "file:" + dbPath
	}
	if strings.Contains(dbPath, "?") {
		return dbPath + "&mode=ro", nil
	}
	return dbPath + "?mode=ro", nil
}

func (d *SQLiteDialect) NormalizeDSN(dsn string) (string, error) {
	dsn = stripScheme(dsn, "sqlite3://", "sqlite://", "sqlite:")
	if dsn == "" {
		return "", ConfigError("empty SQLite database path")
	}
	return dsn, nil
}

// ReadOnlyStatement relies on PRAGMA query_only, which applies to the
// session's single connection.
func (d *SQLiteDialect) ReadOnlyStatement() string { return "PRAGMA query_only = ON" }

func (d *SQLiteDialect) ListTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func (d *SQLiteDialect) ReadSchemaQuery(tableName string) (string, []any) {
	// PRAGMA table_info cannot use ? placeholders, so we embed the table name as a literal.
	return fmt.Sprintf("PRAGMA table_info('%s')", strings.ReplaceAll(tableName, "'", "''")), nil
}

func (d *SQLiteDialect) ScanSchemaRow(rows *sqlx.Rows) (map[string]any, error) {
	// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
	var cid int
	var name, colType string
	var notNull, pk int
	var dfltValue sql.NullString

	if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
		return nil, fmt.Errorf("scan column info: %w", err)
	}

	isNullable := "YES"
	if notNull == 1 {
		isNullable = "NO"
	}

	col := map[string]any{
		"column_name": name,
		"data_type":   colType,
		"is_nullable": isNullable,
	}
	if pk > 0 {
		col["column_key"] = "PRI"
	}
	if dfltValue.Valid {
		col["column_default"] = dfltValue.String
	}
	return col, nil
}

var sqliteTypes = map[string]ColumnType{
	"BOOL":      Bool,
	"BOOLEAN":   Bool,
	"DATE":      Date,
	"DATETIME":  Timestamp,
	"TIMESTAMP": Timestamp,
	"TIME":      Time,
	"DECIMAL":   Decimal,
	"JSON":      Document,
	"UUID":      UUID,
}

// ColumnType follows SQLite's type affinity rules for declared types that are
// not listed explicitly. Expression columns carry no declared type and are
// decoded by value.
func (d *SQLiteDialect) ColumnType(typeName string) ColumnType {
	if ct, ok := sqliteTypes[typeName]; ok {
		return ct
	}
	switch {
	case typeName == "":
		return Dynamic
	case strings.Contains(typeName, "INT"):
		return BigInt
	case strings.Contains(typeName, "CHAR"), strings.Contains(typeName, "CLOB"), strings.Contains(typeName, "TEXT"):
		return Text
	case strings.Contains(typeName, "BLOB"):
		return Unknown
	case strings.Contains(typeName, "REAL"), strings.Contains(typeName, "FLOA"), strings.Contains(typeName, "DOUB"):
		return Double
	default:
		return Dynamic
	}
}

func (d *SQLiteDialect) QuoteIdentifier(name string) string { return ansiQuote(name) }

var sqliteStrictRules = newStrictRules(
	lexRules{doubleQuoteIdent: true, backticks: true, brackets: true},
	[]string{"REPLACE", "ATTACH", "DETACH", "REINDEX", "VACUUM"},
	[]patternRule{
		{`(?i)\bload_extension\s*\(`, "load_extension()"},
		{`(?i)\bwritefile\s*\(`, "writefile()"},
		{`(?i)\bedit\s*\(`, "edit()"},
		{`(?i)\bfts3_tokenizer\s*\(`, "fts3_tokenizer()"},
		{`(?i)\bPRAGMA\s+\w+\s*=`, "PRAGMA write"},
	},
)

func (d *SQLiteDialect) StrictRules() StrictRules { return sqliteStrictRules }
