package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pacekit/pacekit/internal/config"
	"github.com/pacekit/pacekit/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// appConfig is loaded once per invocation by initConfig.
	appConfig *Config

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// Config aliases the application config for command code.
type Config = config.Config

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pacekit",
	Short: "Per-endpoint throttle coordinator for rate-limited HTTP APIs",
	Long: `pacekit fronts rate-limited HTTP APIs with a per-endpoint throttle
coordinator: it watches for 429 responses, waits out the advertised window,
and retries transparently so callers see eventual success or a terminal
response instead of implementing backoff themselves.

Use the subcommands to perform specific operations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is defaults + PACEKIT_* environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads defaults, the optional config file, and environment
// overrides, and initializes the CLI logger.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}
	appConfig = cfg

	observability.InitCLILogger("pacekit", verbose)
}
