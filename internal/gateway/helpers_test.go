package gateway

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// newSQLiteStore creates a SQLite file with a small users table and a
// 150-row events table.
func newSQLiteStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")

	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	db.MustExec(`CREATE TABLE users (
		id     INTEGER PRIMARY KEY,
		name   TEXT NOT NULL,
		active BOOLEAN,
		score  REAL,
		meta   JSON,
		joined DATE
	)`)
	db.MustExec(`INSERT INTO users (id, name, active, score, meta, joined) VALUES
		(1, 'alice', 1, 9.5, '{"plan":"pro"}', '2024-01-15'),
		(2, 'bob', 0, NULL, 'not json', NULL)`)

	db.MustExec(`CREATE TABLE events (id INTEGER PRIMARY KEY, kind TEXT)`)
	tx := db.MustBegin()
	for i := 0; i < 150; i++ {
		tx.MustExec(`INSERT INTO events (kind) VALUES (?)`, "click")
	}
	require.NoError(t, tx.Commit())

	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestGateway(t *testing.T, path string, mutate func(*Config)) *Gateway {
	t.Helper()
	cfg := Config{
		Dialect: &SQLiteDialect{},
		DSN:     path,
		Logger:  discardLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	gw := New(cfg)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

// countingConnector wraps the SQLite connector and counts handshakes.
func countingConnector(path string, calls *atomic.Int32) Connector {
	inner := DialectConnector(&SQLiteDialect{}, path)
	return func(ctx context.Context) (*Session, error) {
		calls.Add(1)
		return inner(ctx)
	}
}
