package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pacekit/pacekit/internal/mockapi"
	"github.com/pacekit/pacekit/internal/observability"
)

var (
	mockHost   string
	mockPort   int
	mockRoutes string
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run the rate-limited mock upstream",
	Long: `Run a deliberately rate-limited HTTP upstream for demos and tests.

Every /api route gets a fixed-window request budget; once spent the server
answers 429 with a Retry-After header and a retryable hint in the body.
Prometheus metrics are served on /metrics. Ctrl+C shuts down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := viper.GetString("logging.level")
		if appConfig.Logging.Level != "" {
			logLevel = appConfig.Logging.Level
		}
		observability.InitServerLogger("pacekit-mock", logLevel)

		mockCfg := appConfig.Mock
		if cmd.Flags().Changed("host") {
			mockCfg.Host = mockHost
		}
		if cmd.Flags().Changed("port") {
			mockCfg.Port = mockPort
		}

		var routes []mockapi.RouteOverride
		if mockRoutes != "" {
			var err error
			routes, err = mockapi.LoadRoutes(mockRoutes)
			if err != nil {
				return err
			}
		}

		srv := mockapi.New(mockCfg, routes...)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				ExitWithCode(observability.ServerLogger, foundry.ExitFailure, "Mock upstream failed", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			observability.ServerLogger.Error("Graceful shutdown failed", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().StringVar(&mockHost, "host", "127.0.0.1", "listen host")
	mockCmd.Flags().IntVar(&mockPort, "port", 8929, "listen port")
	mockCmd.Flags().StringVar(&mockRoutes, "routes", "", "YAML file with per-route rate-limit overrides")
}
