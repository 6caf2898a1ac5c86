package transport

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/dj707chen/postgres-mcp-server/internal/gateway"
	"github.com/dj707chen/postgres-mcp-server/internal/mcp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestDispatcher(t *testing.T) *mcp.Dispatcher {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transport.db")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	db.MustExec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)`)
	db.MustExec(`INSERT INTO notes (body) VALUES ('first'), ('second')`)
	require.NoError(t, db.Close())

	gw := gateway.New(gateway.Config{
		Dialect: &gateway.SQLiteDialect{},
		DSN:     path,
		Logger:  testLogger(),
	})
	t.Cleanup(func() { _ = gw.Close() })
	return mcp.NewDispatcher(gw, "test", testLogger())
}
