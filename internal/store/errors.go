package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Common store error types
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrFieldNotFound is returned when a column does not exist on a table
	ErrFieldNotFound = errors.New("field not found")

	// ErrUnknownTable is returned when a table was not registered with the store
	ErrUnknownTable = errors.New("unknown table")

	// ErrNoValues is returned when an insert or update carries no columns
	ErrNoValues = errors.New("no values to write")

	// ErrKeyColumn is returned when an update tries to rewrite the key column
	ErrKeyColumn = errors.New("key column cannot be updated")

	// ErrSchemaTooNew is returned when the database was written by a newer schema
	ErrSchemaTooNew = errors.New("database schema is newer than this binary")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("store closed")
)

// ConvertDBError converts driver-specific errors to store errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}

	// PostgreSQL via pgx
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return convertSQLState(pgErr.Code, pgErr.Detail, pgErr.ColumnName, err)
	}

	// PostgreSQL via lib/pq
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return convertSQLState(string(pqErr.Code), pqErr.Detail, pqErr.Column, err)
	}

	// SQLite
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, liteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, liteErr.Error())
		case sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %s", ErrCheckViolation, liteErr.Error())
		case sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %s", ErrNotNullViolation, liteErr.Error())
		}
	}

	return err
}

// convertSQLState maps SQLSTATE class 23 codes to store errors
func convertSQLState(code, detail, column string, err error) error {
	switch code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", ErrUniqueViolation, detail)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, detail)
	case "23514": // check_violation
		return fmt.Errorf("%w: %s", ErrCheckViolation, detail)
	case "23502": // not_null_violation
		return fmt.Errorf("%w: column %s", ErrNotNullViolation, column)
	}
	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConstraintViolation returns true for any integrity constraint failure
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation) ||
		errors.Is(err, ErrForeignKeyViolation) ||
		errors.Is(err, ErrCheckViolation) ||
		errors.Is(err, ErrNotNullViolation)
}

// IsInvalidInput returns true when the caller addressed a column or table the
// store does not know, or sent nothing to write
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrFieldNotFound) ||
		errors.Is(err, ErrUnknownTable) ||
		errors.Is(err, ErrNoValues) ||
		errors.Is(err, ErrKeyColumn)
}
