package analyses

import (
	"math"
	"sync"
	"time"
)

const (
	pollLimitWindow = 1 * time.Second
	// pollSweepSize is how many tracked polls trigger a sweep of stale entries.
	pollSweepSize = 1024
)

// pollLimiter allows one status poll per user and analysis within window.
type pollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *pollLimiter) Allow(userID, analysisID string) bool {
	if l == nil {
		return true
	}
	key := userID + "|" + analysisID
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[key]; ok && now.Sub(last) < l.window {
		return false
	}
	if len(l.lastHit) >= pollSweepSize {
		l.sweep(now)
	}
	l.lastHit[key] = now
	return true
}

// sweep drops entries whose window has passed. Callers hold mu.
func (l *pollLimiter) sweep(now time.Time) {
	for key, last := range l.lastHit {
		if now.Sub(last) >= l.window {
			delete(l.lastHit, key)
		}
	}
}

func (l *pollLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastHit)
}

// RetryAfterSeconds rounds the window up so sub-second windows never
// advertise zero.
func (l *pollLimiter) RetryAfterSeconds() int {
	window := pollLimitWindow
	if l != nil {
		window = l.window
	}
	return int(math.Ceil(window.Seconds()))
}
