package output

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pacekit/pacekit/internal/core/registry"
)

// FormatProbeReport renders a probe run in the requested format.
func FormatProbeReport(format Format, report *ProbeReport) (string, error) {
	if report == nil {
		return "", nil
	}
	if format == FormatJSON {
		return marshalIndent(report)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Endpoint", "Status", "Elapsed", "Request ID"})

	for i, r := range report.Results {
		t.AppendRow(table.Row{
			i + 1,
			r.Endpoint,
			statusLabel(r),
			r.Elapsed.Round(time.Millisecond),
			r.RequestID,
		})
	}

	ok := 0
	for _, r := range report.Results {
		if r.Err == "" && r.Status < 400 {
			ok++
		}
	}
	t.AppendFooter(table.Row{
		"",
		report.Target,
		fmt.Sprintf("%d/%d ok", ok, len(report.Results)),
		report.Elapsed.Round(time.Millisecond),
		"",
	})

	return t.Render(), nil
}

// FormatEndpointStates renders the coordinator's registry snapshot.
func FormatEndpointStates(format Format, entries []registry.Entry) (string, error) {
	if format == FormatJSON {
		return marshalIndent(entries)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Endpoint", "Throttled", "Retry After", "Last Signal", "Waiters"})

	for _, e := range entries {
		lastSignal := "-"
		if !e.State.LastSignalAt.IsZero() {
			lastSignal = e.State.LastSignalAt.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			e.Key.String(),
			e.State.Throttled,
			e.State.RetryAfter,
			lastSignal,
			e.State.Waiters,
		})
	}

	return t.Render(), nil
}

func statusLabel(r ProbeResult) string {
	if r.Err != "" {
		return "error: " + r.Err
	}
	return fmt.Sprintf("%d %s", r.Status, http.StatusText(r.Status))
}
