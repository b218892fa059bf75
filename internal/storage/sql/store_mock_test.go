package sql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"

	"github.com/chatUnique/keyguard-pro/internal/storage"
)

// newMockStore 基于 sqlmock 构造 PostgreSQL 方言的存储
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := openStore(db, TypePostgres)
	require.NoError(t, err)
	return store, mock
}

func TestStore_WithMock(t *testing.T) {
	ctx := context.Background()

	t.Run("不存在的任务", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "keyguard_jobs" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "state", "payload"}))

		job, err := store.GetJob(ctx, "missing")
		assert.Nil(t, job)
		assert.ErrorIs(t, err, storage.ErrJobNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("删除不存在的任务", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "keyguard_jobs" WHERE id = \$1`).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.DeleteJob(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrJobNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("清理过期任务", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "keyguard_jobs" WHERE finished_at IS NOT NULL AND finished_at <`).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		n, err := store.PruneJobs(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
