package store

import (
	"context"
	"fmt"

	"github.com/conduit-lang/taskprovider/internal/contract"
)

// Delete removes every row matching the selection and returns the number of
// rows affected. An empty selection deletes the whole table.
func (s *Store) Delete(
	ctx context.Context,
	table string,
	sel contract.Selection,
) (int64, error) {
	t, err := s.open(table)
	if err != nil {
		return 0, err
	}

	where, args, err := s.whereClause(t, sel.Where, 1)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", t.Name, where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", ConvertDBError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows, nil
}
