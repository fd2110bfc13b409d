package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notification-dispatch/internal/common/config"
)

func TestDelayForLevels(t *testing.T) {
	b := DefaultBackoffSchedule()

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{1, 5 * time.Second},
		{2, 30 * time.Second},
		{3, 2 * time.Minute},
		{4, 10 * time.Minute},
		{5, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.DelayFor(tt.retryCount), "retryCount=%d", tt.retryCount)
	}
}

func TestDelayForOutOfRangeFallsBackToFirstLevel(t *testing.T) {
	b := DefaultBackoffSchedule()

	assert.Equal(t, 5*time.Second, b.DelayFor(0))
	assert.Equal(t, 5*time.Second, b.DelayFor(-1))
	assert.Equal(t, 5*time.Second, b.DelayFor(6))
	assert.Equal(t, 5*time.Second, b.DelayFor(100))
}

func TestLevelFor(t *testing.T) {
	b := DefaultBackoffSchedule()

	assert.Equal(t, 3, b.LevelFor(3))
	assert.Equal(t, 1, b.LevelFor(0))
	assert.Equal(t, 1, b.LevelFor(7))
}

func TestNewBackoffScheduleFromConfig(t *testing.T) {
	b := NewBackoffSchedule(config.DispatchConfig{
		RetryDelayLevel1: 1000,
		RetryDelayLevel2: 2000,
		RetryDelayLevel3: 3000,
		RetryDelayLevel4: 4000,
		RetryDelayLevel5: 5000,
	})

	assert.Equal(t, time.Second, b.DelayFor(1))
	assert.Equal(t, 5*time.Second, b.DelayFor(5))
	assert.Equal(t, time.Second, b.DelayFor(9))
}
