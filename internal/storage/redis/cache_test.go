package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatUnique/keyguard-pro/internal/domain"
)

func TestJobKey(t *testing.T) {
	assert.Equal(t, "keyguard:job:abc", jobKey("abc"))
}

func TestDecodeJob(t *testing.T) {
	t.Run("快照往返不含密钥", func(t *testing.T) {
		item := domain.NewWorkItem(domain.ProviderAnthropic, "sk-ant-secret-value-123")
		finished := time.Now().UTC().Truncate(time.Second)
		job := &domain.JobSnapshot{
			ID:         "job-1",
			State:      domain.JobCompleted,
			Items:      []domain.WorkItem{item},
			FinishedAt: &finished,
		}

		data, err := json.Marshal(job)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "sk-ant-secret-value-123")

		got, err := decodeJob(data)
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, item.MaskedKey, got.Items[0].MaskedKey)
		assert.Empty(t, got.Items[0].Key)
		require.NotNil(t, got.FinishedAt)
		assert.True(t, finished.Equal(*got.FinishedAt))
	})

	t.Run("损坏的数据", func(t *testing.T) {
		_, err := decodeJob([]byte("{broken"))
		assert.Error(t, err)
	})
}
