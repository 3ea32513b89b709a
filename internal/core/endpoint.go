package core

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// EndpointKey identifies the unit of throttling granularity: one HTTP method
// plus one URL path. Query strings and bodies are deliberately excluded, so
// GET /users?page=1 and GET /users?page=2 share a single throttle window while
// GET /users and POST /users do not.
type EndpointKey struct {
	Method string
	Path   string
}

// KeyForRequest derives the endpoint key for an outgoing request.
func KeyForRequest(req *http.Request) EndpointKey {
	key := EndpointKey{}
	if req == nil {
		return key
	}
	key.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if key.Method == "" {
		key.Method = http.MethodGet
	}
	if req.URL != nil {
		key.Path = req.URL.Path
	}
	return key
}

// String renders the key in "METHOD /path" form for logs and metrics labels.
func (k EndpointKey) String() string {
	return fmt.Sprintf("%s %s", k.Method, k.Path)
}

// EndpointState carries the mutable throttle state for one endpoint. It is
// created lazily on first observation and lives for the lifetime of the
// owning registry; there is no eviction.
//
// Invariant: when Throttled is true, LastSignalAt and RetryAfter describe the
// most recent rate-limit signal, and the half-open interval
// [LastSignalAt, LastSignalAt+RetryAfter) is the window during which new
// sends to this endpoint must wait.
type EndpointState struct {
	mu sync.Mutex

	throttled    bool
	retryAfter   time.Duration
	lastSignalAt time.Time
	waiters      int
}

// MarkThrottled records a fresh rate-limit signal observed at now.
func (s *EndpointState) MarkThrottled(now time.Time, retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.throttled = true
	s.retryAfter = retryAfter
	s.lastSignalAt = now
}

// ClearThrottled drops the throttled flag. Clearing an already-clear state is
// a no-op, so concurrent waiters clearing after the same window is harmless.
func (s *EndpointState) ClearThrottled() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.throttled = false
}

// RemainingWait returns how long a send at now must still wait, or zero when
// the endpoint is not throttled or its window has already elapsed.
func (s *EndpointState) RemainingWait(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.throttled {
		return 0
	}
	remaining := s.lastSignalAt.Add(s.retryAfter).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AddWaiter registers one deferred send and returns the new waiter count.
func (s *EndpointState) AddWaiter() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waiters++
	return s.waiters
}

// DropWaiter unregisters one deferred send.
func (s *EndpointState) DropWaiter() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waiters > 0 {
		s.waiters--
	}
}

// View returns a point-in-time copy of the state for display and metrics.
func (s *EndpointState) View() EndpointView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return EndpointView{
		Throttled:    s.throttled,
		RetryAfter:   s.retryAfter,
		LastSignalAt: s.lastSignalAt,
		Waiters:      s.waiters,
	}
}

// EndpointView is an immutable snapshot of EndpointState.
type EndpointView struct {
	Throttled    bool          `json:"throttled"`
	RetryAfter   time.Duration `json:"retry_after"`
	LastSignalAt time.Time     `json:"last_signal_at"`
	Waiters      int           `json:"waiters"`
}
