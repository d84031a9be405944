package database

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE divisions`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := db.InTx(context.Background(), func(ctx context.Context) error {
		_, ok := TxFrom(ctx)
		require.True(t, ok)
		_, err := Conn(ctx, db.Pool).Exec(ctx, `UPDATE divisions SET is_deleted = TRUE`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.InTx(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxJoinsOuterTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := db.InTx(context.Background(), func(ctx context.Context) error {
		return db.InTx(ctx, func(context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnFallsBackToPool(t *testing.T) {
	db, mock := newMockDB(t)
	defer mock.Close()

	_, ok := TxFrom(context.Background())
	assert.False(t, ok)
	assert.Equal(t, db.Pool, Conn(context.Background(), db.Pool))
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/app?sslmode=disable", migrateURL("postgres://u:p@db:5432/app?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/app", migrateURL("postgresql://u@db/app"))
	assert.Equal(t, "pgx5://db/app", migrateURL("pgx5://db/app"))
}
