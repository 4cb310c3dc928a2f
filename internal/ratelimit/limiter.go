// Package ratelimit provides a fixed-window request limiter keyed by
// site key ID, protecting ingestion from a misbehaving agent.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// LimitError is returned when a key has exhausted its window. RetryAfter
// hints how long until the window resets.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

type window struct {
	count   int
	expires time.Time
}

// Limiter counts requests per key within a fixed window. Counters expire
// lazily; expired entries are swept when new windows open so the map
// stays bounded by the set of recently active keys.
type Limiter struct {
	mu      sync.Mutex
	max     int
	length  time.Duration
	windows map[int64]*window

	now func() time.Time
}

// New creates a Limiter allowing max requests per window of the given length.
func New(max int, length time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		length:  length,
		windows: make(map[int64]*window),
		now:     time.Now,
	}
}

// Check records one request for the key. It returns nil when the request
// is allowed and a *LimitError when the window is exhausted. Pure reject
// semantics: the caller is never blocked or queued.
func (l *Limiter) Check(keyID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[keyID]
	if !ok || !now.Before(w.expires) {
		l.sweep(now)
		l.windows[keyID] = &window{count: 1, expires: now.Add(l.length)}
		return nil
	}
	if w.count >= l.max {
		return &LimitError{RetryAfter: w.expires.Sub(now)}
	}
	w.count++
	return nil
}

// sweep drops expired windows. Called with the lock held.
func (l *Limiter) sweep(now time.Time) {
	for id, w := range l.windows {
		if !now.Before(w.expires) {
			delete(l.windows, id)
		}
	}
}
