package gateway

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQLDialect implements Dialect for MySQL via go-sql-driver/mysql.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string       { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }
func (d *MySQLDialect) Product() string    { return "MySQL" }
func (d *MySQLDialect) ServerName() string { return "mysql-mcp-server" }
func (d *MySQLDialect) URIScheme() string  { return "mysql" }

func (d *MySQLDialect) BuildDSN(getenv func(string) string, _ bool) (string, error) {
	if err := missingEnv(getenv, "MCP_MYSQL_HOST", "MCP_MYSQL_PORT", "MCP_MYSQL_DB", "MCP_MYSQL_USER", "MCP_MYSQL_PASSWORD"); err != nil {
		return "", err
	}

	cfg := mysql.NewConfig()
	cfg.User = getenv("MCP_MYSQL_USER")
	cfg.Passwd = getenv("MCP_MYSQL_PASSWORD")
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(getenv("MCP_MYSQL_HOST"), getenv("MCP_MYSQL_PORT"))
	cfg.DBName = getenv("MCP_MYSQL_DB")
	return cfg.FormatDSN(), nil
}

// NormalizeDSN accepts the driver's native DSN (user:pass@tcp(host:port)/db)
// or a mysql:// URL, which is converted to the native form.
func (d *MySQLDialect) NormalizeDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", ConfigError("invalid MySQL URL: %v", err)
		}
		cfg := mysql.NewConfig()
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		params := map[string]string{}
		for k, v := range u.Query() {
			params[k] = v[0]
		}
		if len(params) > 0 {
			cfg.Params = params
		}
		dsn = cfg.FormatDSN()
	}

	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", ConfigError("invalid MySQL DSN: %v", err)
	}
	return dsn, nil
}

func (d *MySQLDialect) ReadOnlyStatement() string {
	return "SET SESSION TRANSACTION READ ONLY"
}

func (d *MySQLDialect) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
}

func (d *MySQLDialect) ReadSchemaQuery(tableName string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_key, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, []any{tableName}
}

func (d *MySQLDialect) ScanSchemaRow(rows *sqlx.Rows) (map[string]any, error) {
	var colName, dataType, isNullable, colKey string
	var colDefault, extra sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colKey, &colDefault, &extra); err != nil {
		return nil, fmt.Errorf("scan column info: %w", err)
	}

	col := map[string]any{
		"column_name": colName,
		"data_type":   dataType,
		"is_nullable": isNullable,
		"column_key":  colKey,
	}
	if colDefault.Valid {
		col["column_default"] = colDefault.String
	}
	if extra.Valid && extra.String != "" {
		col["extra"] = extra.String
	}
	return col, nil
}

var mysqlTypes = map[string]ColumnType{
	"TINYINT":    SmallInt,
	"SMALLINT":   SmallInt,
	"MEDIUMINT":  Int,
	"INT":        Int,
	"YEAR":       Int,
	"BIGINT":     BigInt,
	"CHAR":       Text,
	"VARCHAR":    Text,
	"TEXT":       Text,
	"TINYTEXT":   Text,
	"MEDIUMTEXT": Text,
	"LONGTEXT":   Text,
	"ENUM":       Text,
	"SET":        Text,
	"BOOL":       Bool,
	"BOOLEAN":    Bool,
	"FLOAT":      Real,
	"DOUBLE":     Double,
	"DECIMAL":    Decimal,
	"DATETIME":   Timestamp,
	"TIMESTAMP":  Timestamp,
	"DATE":       Date,
	"TIME":       Time,
	"JSON":       Document,
}

func (d *MySQLDialect) ColumnType(typeName string) ColumnType {
	// Unsigned integers are reported as "UNSIGNED INT" etc.
	if rest, ok := strings.CutPrefix(typeName, "UNSIGNED "); ok {
		switch lookupType(mysqlTypes, rest) {
		case SmallInt, Int, BigInt:
			return BigInt
		}
		return Unknown
	}
	return lookupType(mysqlTypes, typeName)
}

func (d *MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var mysqlStrictRules = newStrictRules(
	lexRules{hashComments: true, backslashEscapes: true, backticks: true},
	[]string{"CALL", "EXEC", "EXECUTE", "REPLACE", "LOAD", "HANDLER", "RENAME"},
	[]patternRule{
		{`(?i)\bINTO\s+OUTFILE\b`, "INTO OUTFILE"},
		{`(?i)\bINTO\s+DUMPFILE\b`, "INTO DUMPFILE"},
		{`(?i)\bLOAD_FILE\s*\(`, "LOAD_FILE()"},
		{`(?i)\bINTO\s+@`, "INTO @variable"},
		{`(?i)\bSLEEP\s*\(`, "SLEEP()"},
		{`(?i)\bBENCHMARK\s*\(`, "BENCHMARK()"},
		{`(?i)\b(?:GET|RELEASE|IS_FREE|IS_USED)_LOCK\s*\(`, "GET_LOCK()"},
		{`(?i)\bWAIT_FOR_EXECUTED_GTID_SET\s*\(`, "WAIT_FOR_EXECUTED_GTID_SET()"},
		{`(?i)\bWAIT_UNTIL_SQL_THREAD_AFTER_GTIDS\s*\(`, "WAIT_UNTIL_SQL_THREAD_AFTER_GTIDS()"},
		{`(?i)\b(?:MASTER|SOURCE)_POS_WAIT\s*\(`, "MASTER_POS_WAIT()"},
	},
)

func (d *MySQLDialect) StrictRules() StrictRules { return mysqlStrictRules }
