package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatistics(t *testing.T) {
	t.Run("空结果", func(t *testing.T) {
		stats := ComputeStatistics(0, nil)
		assert.Equal(t, BatchStatistics{}, stats)
	})

	t.Run("混合结果", func(t *testing.T) {
		items := []WorkItem{
			{Status: StatusValid, CheckTimeMs: 100},
			{Status: StatusValid, CheckTimeMs: 300},
			{Status: StatusInvalid, CheckTimeMs: 200},
			{Status: StatusExpired, CheckTimeMs: 200},
			{Status: StatusRateLimited, CheckTimeMs: 100},
			{Status: StatusQuotaExceeded, CheckTimeMs: 100},
			{Status: StatusFormatError},
			{Status: StatusError, CheckTimeMs: 500},
			{Status: StatusUnknown, CheckTimeMs: 500},
			{Status: StatusChecking, CheckTimeMs: 9999},
		}
		stats := ComputeStatistics(10, items)

		assert.Equal(t, 10, stats.Total)
		assert.Equal(t, 9, stats.Completed)
		assert.Equal(t, 2, stats.Valid)
		assert.Equal(t, 2, stats.Invalid)
		assert.Equal(t, 2, stats.RateLimited)
		assert.Equal(t, 1, stats.FormatErrors)
		assert.Equal(t, 1, stats.Errors)
		assert.Equal(t, 1, stats.Unknown)
		assert.Equal(t, stats.Completed,
			stats.Valid+stats.Invalid+stats.Errors+stats.RateLimited+stats.FormatErrors+stats.Unknown)
		assert.InDelta(t, 90.0, stats.Progress, 0.001)
		assert.InDelta(t, 2000.0/9.0, stats.AverageResponseTime, 0.001)
		assert.InDelta(t, 200.0/9.0, stats.SuccessRate, 0.001)
	})

	t.Run("全部有效", func(t *testing.T) {
		items := []WorkItem{{Status: StatusValid}, {Status: StatusValid}}
		stats := ComputeStatistics(2, items)
		assert.Equal(t, 100.0, stats.Progress)
		assert.Equal(t, 100.0, stats.SuccessRate)
	})
}
