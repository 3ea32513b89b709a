package throttle

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func response(status int, header http.Header, body string) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestRetryAfterHeader(t *testing.T) {
	policy := &RetryPolicy{}

	cases := []struct {
		name   string
		value  string
		expect time.Duration
	}{
		{"integer seconds", "2", 2 * time.Second},
		{"zero honored", "0", 0},
		{"padded", " 5 ", 5 * time.Second},
		{"absent", "", time.Second},
		{"not a number", "soon", time.Second},
		{"fractional", "1.5", time.Second},
		{"negative", "-3", time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.value != "" {
				header.Set("Retry-After", tc.value)
			}
			resp := response(http.StatusTooManyRequests, header, "")
			require.Equal(t, tc.expect, policy.RetryAfter(resp))
		})
	}
}

func TestRetryAfterCustomFallback(t *testing.T) {
	policy := &RetryPolicy{FallbackDelay: 3 * time.Second}
	resp := response(http.StatusTooManyRequests, nil, "")
	require.Equal(t, 3*time.Second, policy.RetryAfter(resp))
}

func TestRetryAfterNilResponse(t *testing.T) {
	policy := &RetryPolicy{}
	require.Equal(t, time.Second, policy.RetryAfter(nil))
}

func TestRetryableDefaultOpen(t *testing.T) {
	policy := &RetryPolicy{}

	cases := []struct {
		name   string
		body   string
		expect bool
	}{
		{"explicit false", `{"retryable": false}`, false},
		{"explicit true", `{"retryable": true}`, true},
		{"field absent", `{"error": "rate limited"}`, true},
		{"empty body", ``, true},
		{"not json", `slow down`, true},
		{"wrong type", `{"retryable": "nope"}`, true},
		{"json array", `[1,2,3]`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := response(http.StatusTooManyRequests, nil, tc.body)
			require.Equal(t, tc.expect, policy.Retryable(resp))
		})
	}
}

func TestRetryableRestoresBody(t *testing.T) {
	policy := &RetryPolicy{}
	body := `{"retryable": false, "error": "rate limited"}`
	resp := response(http.StatusTooManyRequests, nil, body)

	require.False(t, policy.Retryable(resp))

	// Inspection must not consume the body for later readers.
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, body, string(data))

	// And a second inspection still works off the restored body.
	require.False(t, policy.Retryable(resp))
}

func TestMaxRetriesDefault(t *testing.T) {
	var policy *RetryPolicy
	require.Equal(t, DefaultMaxRetries, policy.maxRetries())

	policy = &RetryPolicy{MaxRetries: 5}
	require.Equal(t, 5, policy.maxRetries())
}
