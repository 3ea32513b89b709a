package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration, assembled from
// defaults, an optional YAML config file, and PACEKIT_* environment
// variables.
type Config struct {
	Throttle ThrottleConfig `mapstructure:"throttle"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Mock     MockConfig     `mapstructure:"mock"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ThrottleConfig tunes the throttle coordinator.
type ThrottleConfig struct {
	// MaxRetries bounds the retry loop beyond the original send.
	MaxRetries int `mapstructure:"max_retries"`

	// FallbackDelay applies when a 429 carries no usable Retry-After value.
	FallbackDelay time.Duration `mapstructure:"fallback_delay"`

	// WarnWaiters is the advisory per-endpoint waiter ceiling; crossing it
	// logs a warning and nothing else.
	WarnWaiters int `mapstructure:"warn_waiters"`

	// RetryAfterHeader names the header carrying the wait in whole seconds.
	RetryAfterHeader string `mapstructure:"retry_after_header"`
}

// HTTPConfig tunes the outgoing HTTP client.
type HTTPConfig struct {
	// Timeout applies per client call, zero means unbounded. Note that a
	// bounded timeout spans the whole retry loop including waits.
	Timeout time.Duration `mapstructure:"timeout"`

	UserAgent string `mapstructure:"user_agent"`
}

// MockConfig configures the bundled rate-limited mock upstream.
type MockConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// RequestsPerWindow and Window define the fixed-window budget each
	// route gets before the server starts answering 429.
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`

	// RetryAfter is the wait the server advertises on a 429.
	RetryAfter time.Duration `mapstructure:"retry_after"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level.
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// Validate checks ranges after unmarshal.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Throttle.MaxRetries < 0 {
		return fmt.Errorf("throttle.max_retries must not be negative, got %d", c.Throttle.MaxRetries)
	}
	if c.Throttle.FallbackDelay < 0 {
		return fmt.Errorf("throttle.fallback_delay must not be negative, got %s", c.Throttle.FallbackDelay)
	}
	if c.Throttle.WarnWaiters < 1 {
		return fmt.Errorf("throttle.warn_waiters must be positive, got %d", c.Throttle.WarnWaiters)
	}
	if c.Mock.Port < 0 || c.Mock.Port > 65535 {
		return fmt.Errorf("mock.port out of range: %d", c.Mock.Port)
	}
	if c.Mock.RequestsPerWindow < 1 {
		return fmt.Errorf("mock.requests_per_window must be positive, got %d", c.Mock.RequestsPerWindow)
	}
	return nil
}
