package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/conduit-lang/taskprovider/internal/contract"
)

// SchemaVersion is bumped whenever a table definition changes. Databases at an
// older version have their tables dropped and recreated.
const SchemaVersion = 1

const versionTable = "schema_version"

// ColumnType is the storage class of a column
type ColumnType int

const (
	// ColumnText stores strings
	ColumnText ColumnType = iota
	// ColumnInteger stores whole numbers
	ColumnInteger
	// ColumnReal stores floating point numbers
	ColumnReal
)

// SQL returns the DDL type name
func (c ColumnType) SQL() string {
	switch c {
	case ColumnInteger:
		return "INTEGER"
	case ColumnReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Column describes a non-key column
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// Table describes a table with an auto-assigned integer key
type Table struct {
	Name    string
	Key     string
	Columns []Column
}

// identifierPattern is the subset of SQL identifiers accepted for table and
// column names. They are interpolated into statements unquoted.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateIdentifier rejects names that are not plain SQL identifiers
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%q is not a valid SQL identifier", name)
	}
	return nil
}

// Validate checks every name in the definition
func (t *Table) Validate() error {
	if err := ValidateIdentifier(t.Name); err != nil {
		return fmt.Errorf("table name: %w", err)
	}
	if err := ValidateIdentifier(t.Key); err != nil {
		return fmt.Errorf("table %s key: %w", t.Name, err)
	}
	for _, c := range t.Columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("table %s column: %w", t.Name, err)
		}
	}
	return nil
}

// TasksTable returns the definition of the tasks table
func TasksTable() *Table {
	return &Table{
		Name: contract.TaskEntry.TableName,
		Key:  contract.TaskEntry.ID,
		Columns: []Column{
			{Name: contract.TaskEntry.ColumnDescription, Type: ColumnText, NotNull: true},
			{Name: contract.TaskEntry.ColumnPriority, Type: ColumnInteger, NotNull: true},
		},
	}
}

// HasColumn reports whether name is the key or one of the columns
func (t *Table) HasColumn(name string) bool {
	if name == t.Key {
		return true
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the key followed by the columns in declaration order
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns)+1)
	names = append(names, t.Key)
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// createSQL renders CREATE TABLE for the dialect
func (t *Table) createSQL(d Dialect) string {
	defs := []string{fmt.Sprintf("%s %s", t.Key, d.keyDDL)}
	for _, c := range t.Columns {
		def := c.Name + " " + c.Type.SQL()
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(defs, ", "))
}

// Migrate brings the registered tables up to SchemaVersion
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL)", versionTable,
	)); err != nil {
		return fmt.Errorf("failed to create %s: %w", versionTable, err)
	}

	var current int
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT version FROM %s", versionTable)).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.createTables(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (version) VALUES (%s)", versionTable, s.dialect.Placeholder(1)),
			SchemaVersion,
		); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case current > SchemaVersion:
		return fmt.Errorf("%w: found %d, supported %d", ErrSchemaTooNew, current, SchemaVersion)
	case current < SchemaVersion:
		for _, t := range s.tableList() {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.Name); err != nil {
				return fmt.Errorf("failed to drop %s: %w", t.Name, err)
			}
		}
		if err := s.createTables(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET version = %s", versionTable, s.dialect.Placeholder(1)),
			SchemaVersion,
		); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	default:
		// Up to date, but tables registered after the first run still need creating
		if err := s.createTables(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

func (s *Store) createTables(ctx context.Context, tx *sql.Tx) error {
	for _, t := range s.tableList() {
		if _, err := tx.ExecContext(ctx, t.createSQL(s.dialect)); err != nil {
			return fmt.Errorf("failed to create %s: %w", t.Name, err)
		}
	}
	return nil
}
