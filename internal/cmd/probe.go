package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pacekit/pacekit/internal/core"
	"github.com/pacekit/pacekit/internal/core/registry"
	"github.com/pacekit/pacekit/internal/core/throttle"
	"github.com/pacekit/pacekit/internal/metrics"
	"github.com/pacekit/pacekit/internal/observability"
	"github.com/pacekit/pacekit/internal/output"
)

var (
	probeMethod      string
	probeBody        string
	probeCount       int
	probeConcurrency int
	probeOutput      string
	probeShowState   bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Send requests through the throttle coordinator",
	Long: `Send one or more requests to a URL through the throttle coordinator
and report each outcome. Rate-limited responses are waited out and retried
per the configured policy; the report shows what the caller ultimately saw.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(probeOutput)
		if err != nil {
			return err
		}

		target := strings.TrimSpace(args[0])
		parsed, err := url.Parse(target)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid target URL: %s", target)
		}

		if probeCount < 1 {
			return fmt.Errorf("--count must be positive, got %d", probeCount)
		}
		concurrency := probeConcurrency
		if concurrency < 1 {
			concurrency = 1
		}
		if concurrency > probeCount {
			concurrency = probeCount
		}

		cfg := appConfig
		coord := &throttle.Coordinator{
			Registry: registry.New(),
			Policy: &throttle.RetryPolicy{
				MaxRetries:       cfg.Throttle.MaxRetries,
				FallbackDelay:    cfg.Throttle.FallbackDelay,
				RetryAfterHeader: cfg.Throttle.RetryAfterHeader,
			},
			Logger:      observability.CLILogger,
			Metrics:     metrics.Default(),
			WarnWaiters: cfg.Throttle.WarnWaiters,
		}
		client := (&throttle.Transport{Coordinator: coord}).Client(cfg.HTTP.Timeout)

		observability.CLILogger.Debug("starting probe",
			zap.String("target", target),
			zap.String("method", probeMethod),
			zap.Int("count", probeCount),
			zap.Int("concurrency", concurrency))

		started := time.Now()
		results := make([]output.ProbeResult, probeCount)
		jobs := make(chan int)

		var wg sync.WaitGroup
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					results[i] = probeOnce(cmd, client, target)
				}
			}()
		}
		for i := 0; i < probeCount; i++ {
			jobs <- i
		}
		close(jobs)
		wg.Wait()

		report := &output.ProbeReport{
			Target:  target,
			Results: results,
			Elapsed: time.Since(started),
		}
		rendered, err := output.FormatProbeReport(format, report)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

		if probeShowState {
			states, err := output.FormatEndpointStates(format, coord.Registry.Snapshot())
			if err != nil {
				return err
			}
			fmt.Println(states)
		}
		return nil
	},
}

func probeOnce(cmd *cobra.Command, client *http.Client, target string) output.ProbeResult {
	var body io.Reader
	if probeBody != "" {
		body = strings.NewReader(probeBody)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(probeMethod), target, body)
	if err != nil {
		return output.ProbeResult{Endpoint: probeMethod + " " + target, Err: err.Error()}
	}
	req.Header.Set("User-Agent", appConfig.HTTP.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	result := output.ProbeResult{Endpoint: core.KeyForRequest(req).String()}

	started := time.Now()
	resp, err := client.Do(req)
	result.Elapsed = time.Since(started)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	_, _ = io.Copy(io.Discard, resp.Body)
	result.Status = resp.StatusCode
	result.RequestID = resp.Header.Get("X-Request-ID")
	return result
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&probeMethod, "method", "X", http.MethodGet, "HTTP method")
	probeCmd.Flags().StringVarP(&probeBody, "body", "d", "", "request body (sent as JSON)")
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 1, "number of requests to send")
	probeCmd.Flags().IntVarP(&probeConcurrency, "concurrency", "c", 1, "number of concurrent senders")
	probeCmd.Flags().StringVar(&probeOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	probeCmd.Flags().BoolVar(&probeShowState, "show-state", false, "print endpoint throttle state after the run")
}
