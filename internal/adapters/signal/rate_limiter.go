package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Live/internal/domain"
	"github.com/samber/lo"
)

// RoomRateLimiter is a sliding-window limiter keyed by participant.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ParticipantID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time

	lastSweep time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[domain.ParticipantID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(id domain.ParticipantID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	if now.Sub(rl.lastSweep) >= rl.interval {
		rl.sweep(windowStart)
		rl.lastSweep = now
	}

	fresh := lo.Filter(rl.history[id], func(t time.Time, _ int) bool {
		return t.After(windowStart)
	})
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// sweep forgets participants whose last message fell out of the window.
func (rl *RoomRateLimiter) sweep(windowStart time.Time) {
	for id, ts := range rl.history {
		if len(ts) == 0 || !ts[len(ts)-1].After(windowStart) {
			delete(rl.history, id)
		}
	}
}
