package throttle

import (
	"errors"
	"net/http"
	"time"
)

// ErrNoTransport is returned when a retry is attempted without a send
// capability. It indicates a wiring bug, not a network condition.
var ErrNoTransport = errors.New("throttle: no transport configured")

// Transport is an http.RoundTripper that threads every exchange through a
// Coordinator: wait out the endpoint's throttle window, perform the exchange
// on the base transport, then hand the response to the post-receive hook,
// which may replace it with the outcome of the retry loop.
type Transport struct {
	Base        http.RoundTripper
	Coordinator *Coordinator
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := http.DefaultTransport
	if t != nil && t.Base != nil {
		base = t.Base
	}
	if t == nil || t.Coordinator == nil {
		return base.RoundTrip(req)
	}

	ctx := req.Context()
	if err := t.Coordinator.BeforeSend(ctx, req); err != nil {
		return nil, err
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		// Transport failure on the original send is out of the
		// coordinator's hands; the caller deals with it as-is.
		return nil, err
	}

	return t.Coordinator.AfterReceive(ctx, req, resp, base.RoundTrip)
}

// Client wraps the transport in an http.Client with the given timeout.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}
