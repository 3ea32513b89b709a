// Package config provides centralized configuration management for PaceKit.
// Layering: built-in defaults, then an optional YAML config file, then
// PACEKIT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load assembles the configuration. cfgFile may be empty, in which case only
// defaults and environment variables apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PACEKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(cfgFile) != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{}
	decode := func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
	if err := v.Unmarshal(cfg, decode); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("throttle.max_retries", 3)
	v.SetDefault("throttle.fallback_delay", time.Second)
	v.SetDefault("throttle.warn_waiters", 100)
	v.SetDefault("throttle.retry_after_header", "Retry-After")

	v.SetDefault("http.timeout", time.Duration(0))
	v.SetDefault("http.user_agent", "pacekit")

	v.SetDefault("mock.host", "127.0.0.1")
	v.SetDefault("mock.port", 8929)
	v.SetDefault("mock.requests_per_window", 5)
	v.SetDefault("mock.window", 10*time.Second)
	v.SetDefault("mock.retry_after", 2*time.Second)

	v.SetDefault("logging.level", "info")
}
