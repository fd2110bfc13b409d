// Package worker contains the sending worker and the retry scheduler, the
// two consumers that drive notifications through their lifecycle.
package worker

import (
	"time"

	"notification-dispatch/internal/common/config"
)

// backoffLevels is the number of fixed delay levels.
const backoffLevels = 5

// BackoffSchedule maps a retry count onto a fixed delay. Delays are chosen by
// exact level, not computed: retry 1 waits delays[0], retry 5 waits delays[4].
type BackoffSchedule struct {
	delays [backoffLevels]time.Duration
}

// NewBackoffSchedule builds the schedule from the dispatch config.
func NewBackoffSchedule(cfg config.DispatchConfig) *BackoffSchedule {
	return &BackoffSchedule{
		delays: [backoffLevels]time.Duration{
			config.GetDuration(cfg.RetryDelayLevel1),
			config.GetDuration(cfg.RetryDelayLevel2),
			config.GetDuration(cfg.RetryDelayLevel3),
			config.GetDuration(cfg.RetryDelayLevel4),
			config.GetDuration(cfg.RetryDelayLevel5),
		},
	}
}

// DefaultBackoffSchedule returns the stock 5s/30s/2m/10m/30m ladder.
func DefaultBackoffSchedule() *BackoffSchedule {
	return &BackoffSchedule{
		delays: [backoffLevels]time.Duration{
			5 * time.Second,
			30 * time.Second,
			2 * time.Minute,
			10 * time.Minute,
			30 * time.Minute,
		},
	}
}

// DelayFor returns the delay before the attempt numbered retryCount. A count
// outside 1..5 falls back to the first level rather than failing.
func (b *BackoffSchedule) DelayFor(retryCount int) time.Duration {
	if retryCount < 1 || retryCount > backoffLevels {
		return b.delays[0]
	}
	return b.delays[retryCount-1]
}

// LevelFor returns the backoff level used for metrics labels.
func (b *BackoffSchedule) LevelFor(retryCount int) int {
	if retryCount < 1 || retryCount > backoffLevels {
		return 1
	}
	return retryCount
}
