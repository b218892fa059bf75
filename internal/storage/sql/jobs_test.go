package sql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatUnique/keyguard-pro/internal/domain"
)

func TestDriverName(t *testing.T) {
	tests := []struct {
		kind     string
		expected string
		wantErr  bool
	}{
		{TypeMySQL, "mysql", false},
		{TypePostgres, "postgres", false},
		{TypePgx, "pgx", false},
		{"sqlite", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := driverName(tt.kind)
		if tt.wantErr {
			assert.Error(t, err, tt.kind)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestNewStore_RejectsBadOptions(t *testing.T) {
	_, err := NewStore(Options{Type: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = NewStore(Options{Type: TypeMySQL})
	assert.Error(t, err)
}

func TestJobRecordConversion(t *testing.T) {
	t.Run("统计字段与快照一致", func(t *testing.T) {
		created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
		finished := created.Add(time.Minute)
		item := domain.NewWorkItem(domain.ProviderGroq, "gsk_abcdefghijklmnopqrstuvwxyz")
		item.Redact()
		job := &domain.JobSnapshot{
			ID:         "job-1",
			State:      domain.JobCompleted,
			Items:      []domain.WorkItem{item},
			Statistics: domain.BatchStatistics{Total: 1, Completed: 1, Valid: 1},
			CreatedAt:  created,
			UpdatedAt:  finished,
			FinishedAt: &finished,
		}

		rec, err := toRecord(job)
		require.NoError(t, err)
		assert.Equal(t, "job-1", rec.ID)
		assert.Equal(t, "completed", rec.State)
		assert.Equal(t, 1, rec.Total)
		assert.Equal(t, 1, rec.Completed)
		assert.Equal(t, 1, rec.Valid)
		assert.Equal(t, created, rec.CreatedAt)

		back, err := fromRecord(rec)
		require.NoError(t, err)
		assert.Equal(t, job.ID, back.ID)
		assert.Equal(t, job.State, back.State)
		require.Len(t, back.Items, 1)
		assert.Equal(t, item.Fingerprint, back.Items[0].Fingerprint)
	})

	t.Run("缺省时间", func(t *testing.T) {
		rec, err := toRecord(&domain.JobSnapshot{ID: "job-2", State: domain.JobRunning})
		require.NoError(t, err)
		assert.False(t, rec.UpdatedAt.IsZero())
		assert.Equal(t, rec.UpdatedAt, rec.CreatedAt)
		assert.Nil(t, rec.FinishedAt)
	})

	t.Run("损坏的数据", func(t *testing.T) {
		_, err := fromRecord(&JobRecord{ID: "bad", Payload: []byte("nope")})
		assert.Error(t, err)
	})
}

func TestJobRecordTableName(t *testing.T) {
	assert.Equal(t, "keyguard_jobs", JobRecord{}.TableName())
}
