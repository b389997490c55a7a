package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq"
	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/config"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
	_ "modernc.org/sqlite"
)

// DB wraps a connection to one BWIBBU store
type DB struct {
	conn   *sql.DB
	driver string
	dsn    string
	logger *log.Logger
}

// New connects to PostgreSQL
func New(connStr string) (*DB, error) {
	return open(config.DriverPostgres, stripChannelBinding(connStr))
}

// NewSQLite opens (or creates) a SQLite database file
func NewSQLite(path string) (*DB, error) {
	db, err := open(config.DriverSQLite, path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// one writer at a time; avoids SQLITE_BUSY on the bulk write
	db.conn.SetMaxOpenConns(1)
	return db, nil
}

// Open connects to the store described by cfg
func Open(ctx context.Context, cfg config.StoreConfig) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err = NewSQLite(cfg.Path)
	default:
		db, err = New(cfg.ConnectionString())
	}
	if err != nil {
		return nil, err
	}
	if err := db.conn.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func open(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{conn: conn, driver: driver, dsn: dsn, logger: logging.Nop()}, nil
}

// SetLogger sets the logger used for dropped-record warnings
func (db *DB) SetLogger(logger *log.Logger) {
	db.logger = logger
}

// Driver returns "postgres" or "sqlite"
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// stripChannelBinding removes the channel_binding URL parameter, which some
// hosted Postgres providers put in their connection strings but lib/pq
// would forward to the server as an unknown runtime parameter.
func stripChannelBinding(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.Scheme == "" {
		return connStr
	}
	q := u.Query()
	if _, ok := q["channel_binding"]; !ok {
		return connStr
	}
	q.Del("channel_binding")
	u.RawQuery = q.Encode()
	return u.String()
}
