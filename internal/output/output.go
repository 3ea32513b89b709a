package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// ProbeResult captures the outcome of one probe request after the throttle
// layer has done its work.
type ProbeResult struct {
	Endpoint  string        `json:"endpoint"`
	Status    int           `json:"status,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	RequestID string        `json:"request_id,omitempty"`
	Err       string        `json:"error,omitempty"`
}

// ProbeReport is the full result of one probe run.
type ProbeReport struct {
	Target  string        `json:"target"`
	Results []ProbeResult `json:"results"`
	Elapsed time.Duration `json:"elapsed"`
}

func marshalIndent(payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
