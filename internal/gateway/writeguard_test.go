package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sql  string
		want Class
	}{
		{"SELECT 1", NonMutating},
		{"  insert into t values (1)", Mutating},
		{"\n\tUpdate t SET a = 1", Mutating},
		{"DELETE FROM t", Mutating},
		{"drop table t", Mutating},
		{"CREATE INDEX i ON t(a)", Mutating},
		{"ALTER TABLE t ADD COLUMN b INT", Mutating},
		{"TRUNCATE t", Mutating},
		{"SHOW TABLES", NonMutating},
		{"", NonMutating},
		// Only the leading keyword is inspected.
		{"WITH x AS (DELETE FROM t RETURNING *) SELECT * FROM x", NonMutating},
		{"-- comment\nDELETE FROM t", NonMutating},
		{"SELECT 1; DROP TABLE t", NonMutating},
	}

	for _, tc := range tests {
		t.Run(tc.sql, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.sql))
		})
	}
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "mutating", Mutating.String())
	assert.Equal(t, "non-mutating", NonMutating.String())
}

func TestWriteGuard_Enforce(t *testing.T) {
	t.Run("blocks writes by default", func(t *testing.T) {
		g := WriteGuard{Dialect: &PostgresDialect{}}
		err := g.Enforce("INSERT INTO t VALUES (1)")
		require.Error(t, err)
		assert.Equal(t, KindPolicy, KindOf(err))
		assert.Contains(t, err.Error(), "DANGEROUSLY_ALLOW_WRITE_OPS")
	})

	t.Run("allows reads", func(t *testing.T) {
		g := WriteGuard{Dialect: &PostgresDialect{}}
		assert.NoError(t, g.Enforce("SELECT * FROM t"))
	})

	t.Run("allow write bypasses everything", func(t *testing.T) {
		g := WriteGuard{AllowWrite: true, Strict: true, Dialect: &PostgresDialect{}}
		assert.NoError(t, g.Enforce("DROP TABLE t"))
		assert.NoError(t, g.Enforce("SELECT 1; DELETE FROM t"))
	})

	t.Run("strict rejects what the prefix check misses", func(t *testing.T) {
		loose := WriteGuard{Dialect: &PostgresDialect{}}
		strict := WriteGuard{Strict: true, Dialect: &PostgresDialect{}}
		sql := "WITH x AS (DELETE FROM t RETURNING *) SELECT * FROM x"

		assert.NoError(t, loose.Enforce(sql))
		err := strict.Enforce(sql)
		require.Error(t, err)
		assert.Equal(t, KindPolicy, KindOf(err))
		assert.Contains(t, err.Error(), "Query rejected")
	})
}

func TestStrictRules_AllowedQueries(t *testing.T) {
	common := []string{
		"SELECT * FROM users",
		"SELECT id, name FROM users WHERE id = 1",
		"select * from users",
		"EXPLAIN SELECT * FROM users",
		"SELECT * FROM settings", // contains 'set'
		"SELECT * FROM user_settings WHERE setting_name = 'theme'",
		"SELECT created_at FROM orders",  // contains 'create'
		"SELECT updated_at FROM products", // contains 'update'
		"SELECT deleted FROM items",       // contains 'delete'
		"SELECT * FROM users WHERE name = 'DROP TABLE users'",
		"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent",
		"VALUES (1, 2)",
		"SELECT 1;",
	}

	for _, d := range []Dialect{&PostgresDialect{}, &MySQLDialect{}, &SQLiteDialect{}, &DuckDBDialect{}} {
		rules := d.StrictRules()
		for _, q := range common {
			t.Run(d.Name()+"/"+q, func(t *testing.T) {
				assert.NoError(t, rules.Validate(q))
			})
		}
	}
}

func TestStrictRules_BlockedQueries(t *testing.T) {
	tests := []struct {
		dialect Dialect
		query   string
		reason  string
	}{
		// Common to every dialect.
		{&MySQLDialect{}, "INSERT INTO users VALUES (1, 'test')", "INSERT"},
		{&MySQLDialect{}, "UPDATE users SET name = 'test'", "UPDATE"},
		{&MySQLDialect{}, "DELETE FROM users", "DELETE"},
		{&MySQLDialect{}, "DROP TABLE users", "DROP"},
		{&MySQLDialect{}, "GRANT ALL ON *.* TO 'user'", "GRANT"},
		{&MySQLDialect{}, "SET @var = 1", "SET"},
		{&MySQLDialect{}, "SELECT 1; DROP TABLE users", "multiple statements"},
		{&MySQLDialect{}, "SELECT 1; -- comment\nDROP TABLE users", "multiple statements"},

		// MySQL
		{&MySQLDialect{}, "SELECT * INTO OUTFILE '/tmp/data.txt' FROM users", "INTO OUTFILE"},
		{&MySQLDialect{}, "SELECT * INTO DUMPFILE '/tmp/data.bin' FROM users", "INTO DUMPFILE"},
		{&MySQLDialect{}, "SELECT LOAD_FILE('/etc/passwd')", "LOAD_FILE"},
		{&MySQLDialect{}, "SELECT SLEEP(10)", "SLEEP"},
		{&MySQLDialect{}, "SELECT BENCHMARK(1000000, SHA1('test'))", "BENCHMARK"},
		{&MySQLDialect{}, "SELECT GET_LOCK('lock', 10)", "GET_LOCK"},
		{&MySQLDialect{}, "SELECT id INTO @v FROM users", "INTO @variable"},

		// PostgreSQL
		{&PostgresDialect{}, "SELECT pg_read_file('/etc/passwd')", "pg_read_file"},
		{&PostgresDialect{}, "SELECT pg_sleep(10)", "pg_sleep"},
		{&PostgresDialect{}, "SELECT pg_advisory_lock(1)", "pg_advisory_lock"},
		{&PostgresDialect{}, "SELECT lo_export(1, '/tmp/x')", "lo_export"},
		{&PostgresDialect{}, "COPY users TO '/tmp/users.csv'", "COPY"},
		{&PostgresDialect{}, "SELECT 1; NOTIFY chan", "multiple statements"},

		// SQLite
		{&SQLiteDialect{}, "SELECT load_extension('hack.so')", "load_extension"},
		{&SQLiteDialect{}, "SELECT writefile('/tmp/data', content)", "writefile"},
		{&SQLiteDialect{}, "ATTACH DATABASE '/tmp/other.db' AS other", "ATTACH"},
		{&SQLiteDialect{}, "VACUUM", "VACUUM"},
		{&SQLiteDialect{}, "EXPLAIN PRAGMA journal_mode = WAL", "PRAGMA write"},

		// DuckDB
		{&DuckDBDialect{}, "SELECT * FROM read_text('/etc/passwd')", "read_text"},
		{&DuckDBDialect{}, "EXPLAIN COPY users TO 'out.parquet'", "COPY"},
		{&DuckDBDialect{}, "SELECT 1; INSTALL httpfs", "multiple statements"},
	}

	for _, tc := range tests {
		t.Run(tc.dialect.Name()+"/"+tc.query, func(t *testing.T) {
			err := tc.dialect.StrictRules().Validate(tc.query)
			assert.Error(t, err, "expected block for %s", tc.reason)
		})
	}
}

func TestStrictRules_EmptyQuery(t *testing.T) {
	rules := (&PostgresDialect{}).StrictRules()
	assert.Error(t, rules.Validate(""))
	assert.Error(t, rules.Validate("   "))
}

func TestStrictRules_CommentsDoNotCountAsStatements(t *testing.T) {
	queries := []string{
		"SELECT 1 -- ; DROP TABLE users",
		"SELECT 1 /* ; DROP TABLE users */",
		"SELECT 1 # ; DROP TABLE users",
	}
	rules := (&MySQLDialect{}).StrictRules()
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			assert.NoError(t, rules.Validate(q))
		})
	}
}

func TestRemoveStringsAndComments(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		input   string
		want    string
	}{
		{"single quoted", &MySQLDialect{}, "SELECT * FROM users WHERE name = 'DROP TABLE'", "SELECT * FROM users WHERE name = ''"},
		{"line comment", &MySQLDialect{}, "SELECT * FROM users -- comment", "SELECT * FROM users  "},
		{"hash comment", &MySQLDialect{}, "SELECT 1 # note", "SELECT 1  "},
		{"block comment", &PostgresDialect{}, "SELECT /* c */ 1", "SELECT   1"},
		{"escaped quote", &PostgresDialect{}, "SELECT 'it''s' AS x", "SELECT '' AS x"},
		{"backslash escape", &MySQLDialect{}, `SELECT 'a\'b' AS x`, "SELECT '' AS x"},
		{"dollar quoted", &PostgresDialect{}, "SELECT $$DROP TABLE t$$", "SELECT ''"},
		{"tagged dollar quoted", &PostgresDialect{}, "SELECT $fn$ DELETE $fn$ AS body", "SELECT '' AS body"},
		{"positional params kept", &PostgresDialect{}, "SELECT $1, $2", "SELECT $1, $2"},
		{"double quoted identifier kept", &SQLiteDialect{}, `SELECT "name" FROM t`, `SELECT "name" FROM t`},
		{"double quoted string in mysql", &MySQLDialect{}, `SELECT "DROP" AS x`, `SELECT "" AS x`},
		{"backtick identifier kept", &MySQLDialect{}, "SELECT `order` FROM t", "SELECT `order` FROM t"},
		{"bracket identifier kept", &SQLiteDialect{}, "SELECT [order] FROM t", "SELECT [order] FROM t"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.dialect.StrictRules().RemoveStringsAndComments(tc.input)
			assert.Equal(t, tc.want, got)
		})
	}
}
