package commands

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter is a per-sender rolling-window ledger. Rejected attempts are
// not recorded, so hammering the bridge does not extend the window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	ledger  map[uint32][]time.Time
	nowFunc func() time.Time
}

func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  rateWindow,
		ledger:  make(map[uint32][]time.Time),
		nowFunc: time.Now,
	}
}

// Allow reports whether sender may run one more command right now and, if
// so, records the attempt.
func (r *RateLimiter) Allow(sender uint32) bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	cutoff := now.Add(-r.window)

	recent := r.ledger[sender][:0]
	for _, ts := range r.ledger[sender] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= r.limit {
		r.ledger[sender] = recent
		return false
	}

	r.ledger[sender] = append(recent, now)

	return true
}
