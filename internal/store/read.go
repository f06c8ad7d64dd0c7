package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/conduit-lang/taskprovider/internal/contract"
)

// Query returns the rows matching the selection
func (s *Store) Query(
	ctx context.Context,
	table string,
	sel contract.Selection,
) ([]contract.Row, error) {
	t, err := s.open(table)
	if err != nil {
		return nil, err
	}

	columns := sel.Columns
	if len(columns) == 0 {
		columns = t.ColumnNames()
	}
	for _, col := range columns {
		if err := validateColumn(t, col); err != nil {
			return nil, err
		}
	}

	where, args, err := s.whereClause(t, sel.Where, 1)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(columns, ", "), t.Name)
	b.WriteString(where)

	if sel.OrderBy != "" {
		if err := validateColumn(t, sel.OrderBy); err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, " ORDER BY %s", sel.OrderBy)
		if sel.Descending {
			b.WriteString(" DESC")
		}
	}

	if sel.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", sel.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", ConvertDBError(err))
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan query results: %w", ConvertDBError(err))
	}

	return results, nil
}

// Find retrieves a row by key
func (s *Store) Find(
	ctx context.Context,
	table string,
	key int64,
) (contract.Row, error) {
	t, err := s.open(table)
	if err != nil {
		return nil, err
	}

	rows, err := s.Query(ctx, table, contract.Selection{
		Where: []contract.Condition{{Column: t.Key, Value: key}},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Count returns the number of rows matching the conditions
func (s *Store) Count(
	ctx context.Context,
	table string,
	where []contract.Condition,
) (int64, error) {
	t, err := s.open(table)
	if err != nil {
		return 0, err
	}

	clause, args, err := s.whereClause(t, where, 1)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.Name, clause)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", ConvertDBError(err))
	}

	return count, nil
}

// whereClause renders " WHERE a = $n AND b = $n+1" starting at placeholder
// index start. It returns an empty clause for no conditions.
func (s *Store) whereClause(
	t *Table,
	conditions []contract.Condition,
	start int,
) (string, []interface{}, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(conditions))
	args := make([]interface{}, 0, len(conditions))
	for _, c := range conditions {
		if err := validateColumn(t, c.Column); err != nil {
			return "", nil, err
		}
		if c.Value == nil {
			parts = append(parts, c.Column+" IS NULL")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s = %s", c.Column, s.dialect.Placeholder(start+len(args))))
		args = append(args, c.Value)
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}
