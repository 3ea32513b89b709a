package throttle

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pacekit/pacekit/internal/core"
	"github.com/pacekit/pacekit/internal/core/registry"
)

// fakeTime drives the coordinator's clock and records every sleep. Sleeping
// advances the clock, so throttle windows elapse without real waiting.
type fakeTime struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) clock() time.Time { return f.now }

func (f *fakeTime) sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func (f *fakeTime) total() time.Duration {
	var sum time.Duration
	for _, d := range f.sleeps {
		sum += d
	}
	return sum
}

func newTestCoordinator(ft *fakeTime) *Coordinator {
	return &Coordinator{
		Registry: registry.New(),
		Policy:   &RetryPolicy{},
		Clock:    ft.clock,
		Sleep:    ft.sleep,
	}
}

func getRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

// queueSender returns a SendFunc that pops responses in order and counts calls.
func queueSender(t *testing.T, calls *int, responses ...*http.Response) SendFunc {
	t.Helper()
	return func(*http.Request) (*http.Response, error) {
		require.Less(t, *calls, len(responses), "unexpected extra transport call")
		resp := responses[*calls]
		*calls++
		return resp, nil
	}
}

func TestBeforeSendColdEndpoint(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.Empty(t, ft.sleeps)
}

func TestAfterReceivePassthroughNon429(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	for _, status := range []int{200, 204, 404, 500, 503} {
		resp := response(status, nil, "")
		out, err := coord.AfterReceive(context.Background(), req, resp, nil)
		require.NoError(t, err)
		require.Same(t, resp, out)
	}
	require.Empty(t, ft.sleeps)
}

func TestAfterReceiveRecoversAfterWait(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	header := http.Header{}
	header.Set("Retry-After", "2")
	limited := response(http.StatusTooManyRequests, header, `{"retryable": true}`)
	ok := response(http.StatusOK, nil, `{"users": []}`)

	calls := 0
	out, err := coord.AfterReceive(context.Background(), req, limited, queueSender(t, &calls, ok))
	require.NoError(t, err)
	require.Same(t, ok, out)
	require.Equal(t, 1, calls)
	require.GreaterOrEqual(t, ft.total(), 2*time.Second)

	// Recovery clears the window; the next send is not delayed.
	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.Equal(t, []time.Duration{2 * time.Second}, ft.sleeps)
}

func TestAfterReceiveNonRetryableReturnsImmediately(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	limited := response(http.StatusTooManyRequests, nil, `{"retryable": false}`)
	out, err := coord.AfterReceive(context.Background(), req, limited, func(*http.Request) (*http.Response, error) {
		t.Fatal("transport must not be invoked for a non-retryable 429")
		return nil, nil
	})
	require.NoError(t, err)
	require.Same(t, limited, out)
	require.Empty(t, ft.sleeps)

	// A non-retryable 429 opens no window either.
	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.Empty(t, ft.sleeps)
}

func TestAfterReceiveExhaustsRetryBudget(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	header := http.Header{}
	header.Set("Retry-After", "1")
	first := response(http.StatusTooManyRequests, header, "")

	retries := make([]*http.Response, 3)
	for i := range retries {
		h := http.Header{}
		h.Set("Retry-After", "1")
		retries[i] = response(http.StatusTooManyRequests, h, "")
	}

	calls := 0
	out, err := coord.AfterReceive(context.Background(), req, first, queueSender(t, &calls, retries...))
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Same(t, retries[2], out)
	require.Equal(t, http.StatusTooManyRequests, out.StatusCode)

	// Exhaustion clears the flag; callers are not stuck waiting.
	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.Len(t, ft.sleeps, 3)
}

func TestAfterReceiveFallbackDelay(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	limited := response(http.StatusTooManyRequests, nil, "")
	ok := response(http.StatusOK, nil, "")

	calls := 0
	out, err := coord.AfterReceive(context.Background(), req, limited, queueSender(t, &calls, ok))
	require.NoError(t, err)
	require.Same(t, ok, out)
	require.Equal(t, []time.Duration{time.Second}, ft.sleeps)
}

func TestThrottleWindowsAreIndependentPerEndpoint(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)

	reqA := getRequest(t, "https://api.example.com/a")
	reqB := getRequest(t, "https://api.example.com/b")

	state := coord.Registry.GetOrCreate(core.KeyForRequest(reqA))
	state.MarkThrottled(ft.clock(), 10*time.Second)

	// /b is untouched by /a's window.
	require.NoError(t, coord.BeforeSend(context.Background(), reqB))
	require.Empty(t, ft.sleeps)

	// /a waits out its window.
	require.NoError(t, coord.BeforeSend(context.Background(), reqA))
	require.Equal(t, []time.Duration{10 * time.Second}, ft.sleeps)
}

func TestThrottleKeyIncludesMethod(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)

	get := getRequest(t, "https://api.example.com/a")
	post, err := http.NewRequest(http.MethodPost, "https://api.example.com/a", nil)
	require.NoError(t, err)

	// Open a window on GET /a directly.
	state := coord.Registry.GetOrCreate(core.KeyForRequest(get))
	state.MarkThrottled(ft.clock(), 10*time.Second)

	// POST /a shares the path but not the window.
	require.NoError(t, coord.BeforeSend(context.Background(), post))
	require.Empty(t, ft.sleeps)

	require.NoError(t, coord.BeforeSend(context.Background(), get))
	require.Equal(t, []time.Duration{10 * time.Second}, ft.sleeps)
}

func TestBeforeSendAfterWindowElapsed(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	state := coord.Registry.GetOrCreate(core.KeyForRequest(req))
	state.MarkThrottled(ft.clock(), 2*time.Second)

	// The window elapses naturally before anyone sends again.
	ft.now = ft.now.Add(5 * time.Second)

	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.Empty(t, ft.sleeps)

	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.Empty(t, ft.sleeps)
}

func TestRetryTransportErrorPropagatesAndClears(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)
	req := getRequest(t, "https://api.example.com/users")

	limited := response(http.StatusTooManyRequests, nil, "")
	sendErr := errors.New("connection reset")

	_, err := coord.AfterReceive(context.Background(), req, limited, func(*http.Request) (*http.Response, error) {
		return nil, sendErr
	})
	require.ErrorIs(t, err, sendErr)

	// The flag was cleared before propagating.
	require.NoError(t, coord.BeforeSend(context.Background(), req))
	require.Len(t, ft.sleeps, 1)
}

func TestBeforeSendCanceledContext(t *testing.T) {
	coord := New(nil)
	req := getRequest(t, "https://api.example.com/users")

	state := coord.Registry.GetOrCreate(core.KeyForRequest(req))
	state.MarkThrottled(time.Now().UTC(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := coord.BeforeSend(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryReplaysRequestBody(t *testing.T) {
	ft := newFakeTime()
	coord := newTestCoordinator(ft)

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/users", nil)
	require.NoError(t, err)
	seen := ""
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(`{"name":"ada"}`)), nil
	}

	limited := response(http.StatusTooManyRequests, nil, "")
	ok := response(http.StatusCreated, nil, "")

	out, err := coord.AfterReceive(context.Background(), req, limited, func(clone *http.Request) (*http.Response, error) {
		data, readErr := io.ReadAll(clone.Body)
		require.NoError(t, readErr)
		seen = string(data)
		return ok, nil
	})
	require.NoError(t, err)
	require.Same(t, ok, out)
	require.JSONEq(t, `{"name":"ada"}`, seen)
}
