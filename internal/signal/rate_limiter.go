package signal

import (
	"sync"
	"time"

	"github.com/sugunalabs/callserver/internal/domain"
)

// AttemptLimiter caps how many call attempts one identity may make
// inside a sliding window. Attempts are counted per tenant.
type AttemptLimiter struct {
	mu       sync.Mutex
	history  map[channelKey][]time.Time
	limit    int
	interval time.Duration
}

func NewAttemptLimiter(limit int, interval time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		history:  make(map[channelKey][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *AttemptLimiter) Allow(app domain.AppID, id domain.Identity) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)
	key := channelKey{App: app, ID: id}

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[key] = fresh
	return true
}
