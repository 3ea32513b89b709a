package mockapi

import (
	"sync"
	"time"
)

// windowLimiter is a fixed-window request counter keyed by endpoint
// ("METHOD /path"). Each key gets Limit requests per Window; once spent,
// Allow reports false until the window rolls over.
type windowLimiter struct {
	Limit  int
	Window time.Duration
	Clock  func() time.Time

	// Overrides replaces Limit for specific keys.
	Overrides map[string]int

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

func newWindowLimiter(limit int, windowSize time.Duration) *windowLimiter {
	return &windowLimiter{
		Limit:   limit,
		Window:  windowSize,
		windows: make(map[string]*window),
	}
}

// Allow consumes one slot for key, reporting whether the request fits the
// current window.
func (l *windowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	limit := l.Limit
	if v, ok := l.Overrides[key]; ok && v > 0 {
		limit = v
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

func (l *windowLimiter) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}
