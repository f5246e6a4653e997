package invite

import (
	"sync"
	"time"
)

// RateLimiter caps send attempts per recipient address within a sliding
// time window. It is pure accounting: no I/O, no goroutines. The mutex makes
// the check-then-append sequence atomic when the HTTP server runs handlers
// concurrently; rate-limit state for a key can never lose entries.
type RateLimiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	history map[string][]time.Time

	// now is swappable so tests can advance time past the window.
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing max sends per key within window.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		max:     max,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// CheckAndRecord decides whether a send to key is allowed right now.
// Entries older than the window are discarded first; if the remaining count
// has reached the cap the call is rejected without recording, and retryAfter
// hints when the oldest retained slot falls out of the window. Otherwise the
// current time is recorded and the send is allowed. An unknown key behaves
// as empty history.
func (l *RateLimiter) CheckAndRecord(key string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.history[key][:0:0]
	for _, t := range l.history[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.history[key] = recent
		return false, recent[0].Add(l.window).Sub(now)
	}

	l.history[key] = append(recent, now)
	return true, 0
}
