package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// DefaultConnectTimeout bounds the connect handshake.
const DefaultConnectTimeout = 10 * time.Second

// Session is the single live connection to the store. It pins one driver
// connection; callers must not use it concurrently (see Manager.Do).
type Session struct {
	db   *sqlx.DB
	conn *sqlx.Conn
}

// OpenSession opens the store and pins exactly one connection. The ping is
// the connect handshake.
func OpenSession(ctx context.Context, dialect Dialect, dsn string) (*Session, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{db: db, conn: conn}, nil
}

// Query runs query and returns every row with its column metadata.
func (s *Session) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columns := make([]Column, len(types))
	for i, ct := range types {
		columns[i] = Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}

	var result []Row
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(result)+1, err)
		}
		result = append(result, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

// Select scans a query result into dest (a slice) using sqlx.
func (s *Session) Select(ctx context.Context, dest any, query string, args ...any) error {
	return s.conn.SelectContext(ctx, dest, query, args...)
}

// Queryx exposes raw rows for dialect-specific scanning.
func (s *Session) Queryx(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return s.conn.QueryxContext(ctx, query, args...)
}

func (s *Session) exec(ctx context.Context, stmt string) error {
	_, err := s.conn.ExecContext(ctx, stmt)
	return err
}

// Close releases the pinned connection and the underlying pool.
func (s *Session) Close() error {
	cerr := s.conn.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return cerr
}

// Connector performs the connect handshake.
type Connector func(ctx context.Context) (*Session, error)

// DialectConnector returns a Connector that opens dsn with dialect's driver.
func DialectConnector(dialect Dialect, dsn string) Connector {
	return func(ctx context.Context) (*Session, error) {
		return OpenSession(ctx, dialect, dsn)
	}
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Connect        Connector
	Dialect        Dialect
	AllowWrite     bool
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Manager owns at most one Session. The session is created by the first
// caller that needs it; the mutex is held across the handshake so that
// racing callers never open a second connection, and across every query
// because the session's connection is not safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	session *Session // nil until connected

	connect        Connector
	readOnlyStmt   string
	connectTimeout time.Duration
	logger         *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		connect:        cfg.Connect,
		connectTimeout: cfg.ConnectTimeout,
		logger:         cfg.Logger,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if !cfg.AllowWrite && cfg.Dialect != nil {
		m.readOnlyStmt = cfg.Dialect.ReadOnlyStatement()
	}
	return m
}

// Connected reports whether a session has been established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Do runs fn with exclusive use of the shared session.
func (m *Manager) Do(ctx context.Context, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.ensureLocked(ctx)
	if err != nil {
		return err
	}
	return fn(s)
}

func (m *Manager) ensureLocked(ctx context.Context) (*Session, error) {
	if m.session != nil {
		return m.session, nil
	}

	m.logger.Info("establishing database connection")
	cctx := ctx
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}

	s, err := m.connect(cctx)
	if err != nil {
		m.logger.Error("database connection failed", "error", err)
		return nil, ConnectionError(err)
	}

	if m.readOnlyStmt != "" {
		if err := s.exec(cctx, m.readOnlyStmt); err != nil {
			m.logger.Warn("could not set read-only session mode", "error", err)
		}
	}

	m.session = s
	m.logger.Info("database connection established")
	return s, nil
}

// Close releases the session. A later call reconnects.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
