package mockapi

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteOverride tunes one route's rate-limit behavior away from the server
// defaults. Zero values inherit the default.
type RouteOverride struct {
	Method            string `yaml:"method"`
	Path              string `yaml:"path"`
	RequestsPerWindow int    `yaml:"requests_per_window"`
	RetryAfterSeconds int    `yaml:"retry_after_seconds"`
	Retryable         *bool  `yaml:"retryable"`
}

type routesFile struct {
	Routes []RouteOverride `yaml:"routes"`
}

// LoadRoutes reads per-route overrides from a YAML file.
func LoadRoutes(path string) ([]RouteOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file %s: %w", path, err)
	}

	var parsed routesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse routes file %s: %w", path, err)
	}

	for i, route := range parsed.Routes {
		if strings.TrimSpace(route.Path) == "" {
			return nil, fmt.Errorf("routes file %s: route %d has no path", path, i)
		}
		if route.RequestsPerWindow < 0 || route.RetryAfterSeconds < 0 {
			return nil, fmt.Errorf("routes file %s: route %d has negative values", path, i)
		}
	}
	return parsed.Routes, nil
}

// overrideKey normalizes a route override to the limiter's key form.
func overrideKey(route RouteOverride) string {
	method := strings.ToUpper(strings.TrimSpace(route.Method))
	if method == "" {
		method = "GET"
	}
	return method + " " + route.Path
}
