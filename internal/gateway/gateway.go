// Package gateway is the query gateway core: it guards SQL text against
// writes, owns the single lazily established store connection, converts
// rows to JSON values by column type, and maps tables to resource URIs.
package gateway

import (
	"context"
	"log/slog"
	"time"
)

// Config configures a Gateway.
type Config struct {
	Dialect Dialect
	// Connect performs the handshake. Defaults to DialectConnector(Dialect, DSN).
	Connect Connector
	DSN     string

	AllowWrite         bool
	StrictReadOnly     bool
	ValidateTableNames bool
	ConnectTimeout     time.Duration
	RowLimit           int

	Logger *slog.Logger
}

// Gateway bundles the core components around one Manager.
type Gateway struct {
	Dialect   Dialect
	Guard     WriteGuard
	Manager   *Manager
	Marshaler Marshaler
	Catalog   *Catalog
}

func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connect := cfg.Connect
	if connect == nil {
		connect = DialectConnector(cfg.Dialect, cfg.DSN)
	}
	rowLimit := cfg.RowLimit
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	manager := NewManager(ManagerConfig{
		Connect:        connect,
		Dialect:        cfg.Dialect,
		AllowWrite:     cfg.AllowWrite,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	})
	marshaler := Marshaler{Dialect: cfg.Dialect}

	return &Gateway{
		Dialect:   cfg.Dialect,
		Guard:     WriteGuard{AllowWrite: cfg.AllowWrite, Strict: cfg.StrictReadOnly, Dialect: cfg.Dialect},
		Manager:   manager,
		Marshaler: marshaler,
		Catalog: &Catalog{
			dialect:       cfg.Dialect,
			manager:       manager,
			marshaler:     marshaler,
			logger:        logger,
			rowLimit:      rowLimit,
			validateNames: cfg.ValidateTableNames,
		},
	}
}

// Query enforces the write guard, then runs sql on the shared session.
func (g *Gateway) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	if err := g.Guard.Enforce(sql); err != nil {
		return nil, err
	}

	var rows []Row
	err := g.Manager.Do(ctx, func(s *Session) error {
		var err error
		if rows, err = s.Query(ctx, sql); err != nil {
			return InternalError("Failed to execute query", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g.Marshaler.RowsToArray(rows), nil
}

// Close releases the store connection.
func (g *Gateway) Close() error {
	return g.Manager.Close()
}
