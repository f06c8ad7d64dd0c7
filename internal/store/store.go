package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
)

// Config holds the settings used by Open
type Config struct {
	// Driver is a database/sql driver name: sqlite3, pgx or postgres
	Driver string
	// URL is the driver-specific data source name
	URL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Tables to register and migrate. Defaults to the tasks table.
	Tables []*Table
}

// DefaultConfig returns a config for a local SQLite file
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		URL:             "file:tasks.db?_foreign_keys=on",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// queryExecer is satisfied by both *sql.DB and *sql.Tx
type queryExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is a relational backing store for keyed tables. It relies on the
// database for write serialization and adds no locking of its own.
type Store struct {
	db      *sql.DB
	dialect Dialect
	tables  map[string]*Table
	closed  atomic.Bool
}

// New wraps an open database handle. Tables default to the tasks table.
func New(db *sql.DB, dialect Dialect, tables ...*Table) *Store {
	if len(tables) == 0 {
		tables = []*Table{TasksTable()}
	}

	registered := make(map[string]*Table, len(tables))
	for _, t := range tables {
		registered[t.Name] = t
	}

	return &Store{
		db:      db,
		dialect: dialect,
		tables:  registered,
	}
}

// Open connects to the configured database, verifies the connection and
// migrates the schema
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	for _, t := range cfg.Tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	configurePool(db, dialect, cfg)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db, dialect, cfg.Tables...)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// configurePool applies connection pool limits
func configurePool(db *sql.DB, dialect Dialect, cfg Config) {
	if dialect.Name == SQLite.Name {
		// SQLite allows a single writer, and :memory: databases live per connection
		db.SetMaxOpenConns(1)
		return
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// DB returns the database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close releases the database handle
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Table returns a registered table definition
func (s *Store) Table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

func (s *Store) tableList() []*Table {
	list := make([]*Table, 0, len(s.tables))
	for _, t := range s.tables {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// open returns the table and fails fast once the store is closed
func (s *Store) open(table string) (*Table, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.Table(table)
}

// validateColumn checks that a column exists on the table
func validateColumn(t *Table, column string) error {
	if !t.HasColumn(column) {
		return fmt.Errorf("%w: %s.%s", ErrFieldNotFound, t.Name, column)
	}
	return nil
}
