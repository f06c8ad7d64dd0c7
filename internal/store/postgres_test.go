package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, Postgres), mock
}

func TestPostgres_InsertUsesReturning(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("INSERT INTO tasks (description, priority) VALUES ($1, $2) RETURNING _id").
		WithArgs("buy milk", 1).
		WillReturnRows(sqlmock.NewRows([]string{"_id"}).AddRow(7))

	id, err := s.Insert(context.Background(), "tasks", task("buy milk", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertUniqueViolation(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("INSERT INTO tasks (description, priority) VALUES ($1, $2) RETURNING _id").
		WithArgs("dup", 1).
		WillReturnError(&pgconn.PgError{Code: "23505", Detail: "Key (description)=(dup) already exists."})

	_, err := s.Insert(context.Background(), "tasks", task("dup", 1))
	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.Contains(t, err.Error(), "already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BulkInsertRollsBack(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO tasks (description, priority) VALUES ($1, $2) RETURNING _id").
		WithArgs("a", 1).
		WillReturnRows(sqlmock.NewRows([]string{"_id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO tasks (description, priority) VALUES ($1, $2) RETURNING _id").
		WithArgs("b", 2).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.BulkInsert(context.Background(), "tasks", []contract.Values{task("a", 1), task("b", 2)})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QuerySQL(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT _id, description FROM tasks WHERE priority = $1 AND _id = $2 ORDER BY description DESC LIMIT 5").
		WithArgs(2, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"_id", "description"}).AddRow(int64(3), []byte("walk dog")))

	rows, err := s.Query(context.Background(), "tasks", contract.Selection{
		Columns:    []string{"_id", "description"},
		Where:      []contract.Condition{{Column: "priority", Value: 2}, {Column: "_id", Value: int64(3)}},
		OrderBy:    "description",
		Descending: true,
		Limit:      5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "walk dog", rows[0]["description"], "byte slices are normalized to strings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueryNullCondition(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT _id, description, priority FROM tasks WHERE description IS NULL AND priority = $1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"_id", "description", "priority"}))

	rows, err := s.Query(context.Background(), "tasks", contract.Selection{
		Where: []contract.Condition{{Column: "description", Value: nil}, {Column: "priority", Value: 1}},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdatePlaceholdersContinue(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE tasks SET description = $1, priority = $2 WHERE _id = $3").
		WithArgs("renamed", 4, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.Update(context.Background(), "tasks", task("renamed", 4), contract.Selection{
		Where: []contract.Condition{{Column: "_id", Value: int64(9)}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Delete(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("DELETE FROM tasks WHERE _id = $1").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := s.Delete(context.Background(), "tasks", contract.Selection{
		Where: []contract.Condition{{Column: "_id", Value: int64(9)}},
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountError(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT COUNT(*) FROM tasks").WillReturnError(sql.ErrConnDone)

	_, err := s.Count(context.Background(), "tasks", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MigrateFreshDatabase(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_version").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tasks (_id BIGSERIAL PRIMARY KEY, description TEXT NOT NULL, priority INTEGER NOT NULL)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_version (version) VALUES ($1)").
		WithArgs(SchemaVersion).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
