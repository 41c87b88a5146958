package runner

import (
	"sync"
	"time"
)

// senderLimiter is a per-key sliding window limiter.
type senderLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	now     func() time.Time
	buckets map[string][]time.Time
}

func newSenderLimiter(limit int, window time.Duration, now func() time.Time) *senderLimiter {
	return &senderLimiter{
		window:  window,
		limit:   limit,
		now:     now,
		buckets: make(map[string][]time.Time),
	}
}

// allow records an event for key and reports whether it fits the window.
// A nil limiter allows everything.
func (l *senderLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	events := l.buckets[key]
	// Events are chronological.
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	events = events[i:]

	if len(events) >= l.limit {
		l.buckets[key] = events
		return false
	}
	l.buckets[key] = append(events, now)
	return true
}

// prune drops keys with no event inside the window.
func (l *senderLimiter) prune() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, events := range l.buckets {
		if len(events) == 0 || !events[len(events)-1].After(cutoff) {
			delete(l.buckets, key)
		}
	}
}
