package throttle

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries bounds the retry loop beyond the original send.
	DefaultMaxRetries = 3

	// DefaultFallbackDelay is used when the server sends no usable
	// retry-after value.
	DefaultFallbackDelay = time.Second

	// DefaultRetryAfterHeader carries the wait duration in whole seconds.
	DefaultRetryAfterHeader = "Retry-After"
)

// RetryPolicy holds the pure decision logic of the coordinator: how to read a
// wait duration off a rate-limited response, and whether such a response is
// eligible for automatic retry. Zero value uses the defaults above.
type RetryPolicy struct {
	MaxRetries       int
	FallbackDelay    time.Duration
	RetryAfterHeader string
}

// retryablePayload is the optional body shape of a rate-limited response.
type retryablePayload struct {
	Retryable *bool `json:"retryable"`
}

// RetryAfter reads the wait duration from the response header. The header
// value must be a decimal integer count of seconds; anything absent, negative
// or unparseable falls back to FallbackDelay. A literal "0" is honored as a
// zero wait rather than clamped up: the server said now is fine.
func (p *RetryPolicy) RetryAfter(resp *http.Response) time.Duration {
	fallback := DefaultFallbackDelay
	if p != nil && p.FallbackDelay > 0 {
		fallback = p.FallbackDelay
	}

	if resp == nil || resp.Header == nil {
		return fallback
	}

	value := strings.TrimSpace(resp.Header.Get(p.headerName()))
	if value == "" {
		return fallback
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return fallback
	}

	return time.Duration(seconds) * time.Second
}

// Retryable reports whether a rate-limited response is eligible for automatic
// retry. Only a body that parses as JSON and carries an explicit
// `"retryable": false` blocks the retry; a true value, a missing field, an
// empty body, or a body that is not the expected structure are all retryable.
// Ambiguity fails open on purpose: a malformed hint must not strand a request.
//
// The body is fully read and restored, so later consumers of the response can
// still read it.
func (p *RetryPolicy) Retryable(resp *http.Response) bool {
	if resp == nil || resp.Body == nil {
		return true
	}

	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close() // nolint:errcheck // body is replaced below
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return true
	}

	var payload retryablePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return true
	}
	if payload.Retryable != nil && !*payload.Retryable {
		return false
	}
	return true
}

func (p *RetryPolicy) maxRetries() int {
	if p != nil && p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return DefaultMaxRetries
}

func (p *RetryPolicy) headerName() string {
	if p != nil && strings.TrimSpace(p.RetryAfterHeader) != "" {
		return p.RetryAfterHeader
	}
	return DefaultRetryAfterHeader
}
