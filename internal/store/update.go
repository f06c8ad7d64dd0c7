package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/conduit-lang/taskprovider/internal/contract"
)

// Update sets values on every row matching the selection and returns the
// number of rows affected
func (s *Store) Update(
	ctx context.Context,
	table string,
	values contract.Values,
	sel contract.Selection,
) (int64, error) {
	t, err := s.open(table)
	if err != nil {
		return 0, err
	}

	record := values.Clone()
	if len(record) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoValues, t.Name)
	}

	columns := record.Columns()
	sets := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns)+len(sel.Where))
	for i, col := range columns {
		if col == t.Key {
			return 0, fmt.Errorf("%w: %s.%s", ErrKeyColumn, t.Name, col)
		}
		if err := validateColumn(t, col); err != nil {
			return 0, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", col, s.dialect.Placeholder(i+1)))
		args = append(args, record[col])
	}

	where, whereArgs, err := s.whereClause(t, sel.Where, len(args)+1)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", t.Name, strings.Join(sets, ", "), where)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update records: %w", ConvertDBError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows, nil
}
