package store

import (
	"fmt"
	"strconv"
)

// Dialect captures the SQL differences between the supported drivers
type Dialect struct {
	// Name identifies the dialect ("sqlite", "postgres")
	Name string

	numbered  bool   // $1, $2 placeholders instead of ?
	returning bool   // INSERT ... RETURNING key instead of LastInsertId
	keyDDL    string // column definition for an auto-assigned integer key
}

var (
	// SQLite is the dialect for github.com/mattn/go-sqlite3
	SQLite = Dialect{
		Name:   "sqlite",
		keyDDL: "INTEGER PRIMARY KEY AUTOINCREMENT",
	}

	// Postgres is the dialect for pgx and lib/pq
	Postgres = Dialect{
		Name:      "postgres",
		numbered:  true,
		returning: true,
		keyDDL:    "BIGSERIAL PRIMARY KEY",
	}
)

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite3"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// DialectFor returns the dialect for a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return SQLite, nil
	case DriverPgx, DriverPostgres:
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Placeholder returns the bind parameter for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// String returns the dialect name
func (d Dialect) String() string {
	return d.Name
}
