package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/conduit-lang/taskprovider/internal/contract"
)

// Insert writes a new row and returns its store-assigned key
func (s *Store) Insert(
	ctx context.Context,
	table string,
	values contract.Values,
) (int64, error) {
	t, err := s.open(table)
	if err != nil {
		return 0, err
	}

	return s.insertRow(ctx, s.db, t, values)
}

// BulkInsert writes all rows in a single transaction. Either every row is
// written or none is.
func (s *Store) BulkInsert(
	ctx context.Context,
	table string,
	rows []contract.Values,
) (int, error) {
	t, err := s.open(table)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, values := range rows {
		if _, err := s.insertRow(ctx, tx, t, values); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(rows), nil
}

// insertRow inserts a single row through db
func (s *Store) insertRow(
	ctx context.Context,
	db queryExecer,
	t *Table,
	values contract.Values,
) (int64, error) {
	// Copy so the caller's map is never retained
	record := values.Clone()
	if len(record) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoValues, t.Name)
	}

	columns := record.Columns()
	placeholders := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for i, col := range columns {
		if err := validateColumn(t, col); err != nil {
			return 0, err
		}
		placeholders = append(placeholders, s.dialect.Placeholder(i+1))
		args = append(args, record[col])
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		t.Name,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	if s.dialect.returning {
		var id int64
		row := db.QueryRowContext(ctx, query+" RETURNING "+t.Key, args...)
		if err := row.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert record: %w", ConvertDBError(err))
		}
		return id, nil
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", ConvertDBError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read generated key: %w", err)
	}
	return id, nil
}
