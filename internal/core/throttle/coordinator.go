// Package throttle coordinates traffic to rate-limited HTTP endpoints. It
// intercepts requests before they are sent and responses after they arrive,
// reacts to 429 signals by opening a per-endpoint throttle window, and drives
// a bounded retry loop so callers observe eventual success or a terminal
// response instead of implementing backoff themselves.
package throttle

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pacekit/pacekit/internal/core"
	"github.com/pacekit/pacekit/internal/core/registry"
)

// DefaultWarnWaiters is the advisory ceiling on deferred sends per endpoint.
// Crossing it logs a warning; it is telemetry, not admission control.
const DefaultWarnWaiters = 100

// SendFunc performs one network exchange. The coordinator treats it as an
// opaque capability; it carries no knowledge of the underlying transport.
type SendFunc func(*http.Request) (*http.Response, error)

// Recorder receives throttle telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ThrottleSignal(endpoint string, retryAfter time.Duration)
	RetryAttempt(endpoint string)
	RetryOutcome(endpoint, outcome string)
	WaitObserved(endpoint string, wait time.Duration)
}

// Retry outcome labels reported to the Recorder.
const (
	OutcomeRecovered    = "recovered"
	OutcomeExhausted    = "exhausted"
	OutcomeNonRetryable = "non_retryable"
	OutcomeSendError    = "send_error"
	OutcomeCanceled     = "canceled"
)

// Coordinator owns the endpoint state registry and implements the pre-send
// and post-receive hooks. All fields are optional except Registry; the zero
// policy and default waiter ceiling apply when unset.
type Coordinator struct {
	Registry    *registry.Registry
	Policy      *RetryPolicy
	Logger      *logging.Logger
	Metrics     Recorder
	WarnWaiters int

	// Clock and Sleep exist for tests; nil means real time.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a coordinator with a fresh registry and default policy.
func New(logger *logging.Logger) *Coordinator {
	return &Coordinator{
		Registry: registry.New(),
		Policy:   &RetryPolicy{},
		Logger:   logger,
	}
}

// BeforeSend delays the calling request while its endpoint is inside a
// throttle window. It never rewrites or substitutes the request, only timing.
// After the wait elapses the throttled flag is cleared optimistically: the
// window is assumed over without re-checking the server. Concurrent callers
// each wait out the same remaining window independently; the redundant clears
// are idempotent.
func (c *Coordinator) BeforeSend(ctx context.Context, req *http.Request) error {
	if c == nil || c.Registry == nil || req == nil {
		return nil
	}

	key := core.KeyForRequest(req)
	state := c.Registry.GetOrCreate(key)
	if !state.View().Throttled {
		return nil
	}

	waiters := state.AddWaiter()
	defer state.DropWaiter()

	if limit := c.warnWaiters(); waiters > limit && c.Logger != nil {
		c.Logger.Warn("endpoint wait queue past advisory ceiling",
			zap.String("endpoint", key.String()),
			zap.Int("waiters", waiters),
			zap.Int("ceiling", limit))
	}

	if wait := state.RemainingWait(c.now()); wait > 0 {
		if c.Metrics != nil {
			c.Metrics.WaitObserved(key.String(), wait)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	state.ClearThrottled()
	return nil
}

// AfterReceive inspects a response for the rate-limit signal and, when one is
// present and retryable, opens the endpoint's throttle window and drives the
// retry loop. Non-429 responses pass through untouched. Exhausting the retry
// budget is not an error: the caller gets the last 429 back and reads the
// status itself.
func (c *Coordinator) AfterReceive(ctx context.Context, req *http.Request, resp *http.Response, send SendFunc) (*http.Response, error) {
	if c == nil || resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	policy := c.policy()
	if !policy.Retryable(resp) {
		// The server explicitly said not to retry; the caller sees the 429.
		return resp, nil
	}

	key := core.KeyForRequest(req)
	state := c.Registry.GetOrCreate(key)

	retryAfter := policy.RetryAfter(resp)
	state.MarkThrottled(c.now(), retryAfter)
	if c.Metrics != nil {
		c.Metrics.ThrottleSignal(key.String(), retryAfter)
	}
	c.logThrottled(key, retryAfter, 0)

	last := resp
	for attempt := 1; attempt <= policy.maxRetries(); attempt++ {
		if err := c.sleep(ctx, retryAfter); err != nil {
			state.ClearThrottled()
			c.recordOutcome(key, OutcomeCanceled)
			return nil, err
		}

		retry, err := c.resend(ctx, req, send)
		if c.Metrics != nil {
			c.Metrics.RetryAttempt(key.String())
		}
		if err != nil {
			// A transport-level failure ends the loop immediately. Clear the
			// flag first so later requests are not stuck waiting on a window
			// that will never be confirmed.
			state.ClearThrottled()
			c.recordOutcome(key, OutcomeSendError)
			return nil, err
		}

		if retry.StatusCode != http.StatusTooManyRequests {
			state.ClearThrottled()
			c.recordOutcome(key, OutcomeRecovered)
			return retry, nil
		}

		if !policy.Retryable(retry) {
			state.ClearThrottled()
			c.recordOutcome(key, OutcomeNonRetryable)
			return retry, nil
		}

		retryAfter = policy.RetryAfter(retry)
		state.MarkThrottled(c.now(), retryAfter)
		c.logThrottled(key, retryAfter, attempt)
		last = retry
	}

	state.ClearThrottled()
	c.recordOutcome(key, OutcomeExhausted)
	return last, nil
}

// resend re-issues the identical original request. Requests carrying a
// replayable body (GetBody set, the default for requests built from byte
// readers) get a fresh body per attempt.
func (c *Coordinator) resend(ctx context.Context, req *http.Request, send SendFunc) (*http.Response, error) {
	if send == nil || req == nil {
		return nil, ErrNoTransport
	}

	if ctx == nil {
		ctx = req.Context()
	}
	clone := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}

	return send(clone)
}

func (c *Coordinator) logThrottled(key core.EndpointKey, retryAfter time.Duration, attempt int) {
	if c == nil || c.Logger == nil {
		return
	}
	c.Logger.Debug("endpoint rate limited",
		zap.String("endpoint", key.String()),
		zap.Duration("retry_after", retryAfter),
		zap.Int("attempt", attempt))
}

func (c *Coordinator) recordOutcome(key core.EndpointKey, outcome string) {
	if c != nil && c.Metrics != nil {
		c.Metrics.RetryOutcome(key.String(), outcome)
	}
}

func (c *Coordinator) policy() *RetryPolicy {
	if c != nil && c.Policy != nil {
		return c.Policy
	}
	return &RetryPolicy{}
}

func (c *Coordinator) warnWaiters() int {
	if c != nil && c.WarnWaiters > 0 {
		return c.WarnWaiters
	}
	return DefaultWarnWaiters
}

func (c *Coordinator) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) error {
	if c != nil && c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	if d <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
