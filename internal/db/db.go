// Package db opens the SQLite databases kept next to the CLI's config: the
// transfer history journal.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/sftpsync/internal/utils"
)

const memoryPath = ":memory:"

// one writer at a time, readers never block it
const defaultPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

type options struct {
	path        string
	pragmas     string
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*options)

// WithPath sets the database file. The default is an in-memory database.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithPragmas replaces the default pragmas.
func WithPragmas(pragmas string) Option {
	return func(o *options) {
		o.pragmas = pragmas
	}
}

// WithBusyTimeout sets how long a writer waits for a lock held by another
// process, e.g. a second sftpsync writing history at the same time.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// Open connects to SQLite and applies the pragmas. File databases get their
// parent directory created and a single connection.
func Open(opts ...Option) (*sqlx.DB, error) {
	o := &options{
		path:        memoryPath,
		pragmas:     defaultPragmas,
		busyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	dsn := memoryPath
	if o.path != memoryPath {
		if err := utils.EnsureParent(o.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", o.path)
	}

	slog.Debug("db", "driver", driverID, "path", o.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// an in-memory database lives and dies with its connection
	conn.SetMaxOpenConns(1)

	pragmas := o.pragmas + fmt.Sprintf("PRAGMA busy_timeout=%d;\n", o.busyTimeout.Milliseconds())
	if _, err := conn.Exec(pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return conn, nil
}

// Migrate runs schema statements in one transaction.
func Migrate(conn *sqlx.DB, statements ...string) error {
	tx, err := conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}
