package bot

import (
	"strings"
	"sync"
	"time"
)

// Command rate limit defaults.
const (
	DefaultRateLimit  = 30
	DefaultRateWindow = time.Minute
)

// userRateLimiter counts commands per user in a sliding window.
type userRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	records map[string][]time.Time
}

func newUserRateLimiter(limit int, window time.Duration) *userRateLimiter {
	return &userRateLimiter{
		limit:   limit,
		window:  window,
		records: make(map[string][]time.Time),
	}
}

// allow records a command of userID at now and reports whether it is within
// the limit. Rejected commands are not recorded.
func (r *userRateLimiter) allow(userID string, now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.pruneLocked(userID, now)
	if len(list) >= r.limit {
		return false
	}
	r.records[userID] = append(list, now)
	return true
}

func (r *userRateLimiter) pruneLocked(userID string, now time.Time) []time.Time {
	list := r.records[userID]
	if len(list) == 0 {
		return nil
	}
	cutoff := now.Add(-r.window)
	idx := 0
	for idx < len(list) && !list[idx].After(cutoff) {
		idx++
	}
	if idx == len(list) {
		delete(r.records, userID)
		return nil
	}
	if idx > 0 {
		list = list[idx:]
		r.records[userID] = list
	}
	return list
}
