// Package main provides the unmash CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/opencitations/doi-corrector/internal/config"
	"github.com/opencitations/doi-corrector/internal/logging"
	"github.com/opencitations/doi-corrector/internal/metrics"
	"github.com/opencitations/doi-corrector/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

// Persistent flags
var (
	humanOutput bool
	logLevel    string
	logFormat   string
	metricsFile string
	envFile     string
)

// logger is configured from the persistent flags before any command runs.
var logger = zerolog.Nop()

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "unmash",
	Short: "Split the citations of mashed citation-index entities by DOI",
	Long: `unmash reconciles citation-index entities that were wrongly merged.

A mashed entity carries several DOIs. After human review, each DOI is
marked belongs, misassigned or invalid. unmash collects every citation
edge touching the entity, resolves the DOIs' metadata and attributes
each edge to the DOI it really belongs to.

Typical workflow:
  unmash init
  unmash import review.csv
  unmash run

Intermediate stages can also be run one at a time (extract, resolve,
reconcile). All commands output JSON by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logLevel
		if logFormat != "" {
			cfg.Format = logFormat
		} else if humanOutput {
			cfg.Format = "console"
		}
		logger = logging.New(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, console); console when --human")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this file in Prometheus text format")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load credentials from this dotenv file if it exists")
	rootCmd.Version = Version
}

// mustFindWorkspace finds the workspace from the current directory, exits on error.
// Returns the workspace root path.
func mustFindWorkspace() string {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	root, err := config.FindWorkspace(cwd)
	if err != nil {
		if errors.Is(err, config.ErrNotWorkspace) {
			exitWithError(ExitConfigError, "%v\n\nRun 'unmash init' to create one.", err)
		}
		exitWithError(ExitConfigError, "finding workspace: %v", err)
	}
	return root
}

// mustLoadConfig loads and validates configuration with credentials, exits on error.
func mustLoadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		exitWithError(ExitConfigError, "loading credentials: %v", err)
	}
	cfg.Credentials = creds
	return cfg
}

// mustOpenDatabase opens the identifier store, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(root string) *storage.DB {
	db, err := storage.OpenDB(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// writeMetrics writes the run's metrics when --metrics-file is set.
// Failures are logged; they never change the exit code.
func writeMetrics(m *metrics.Metrics) {
	if metricsFile == "" || m == nil {
		return
	}
	if err := m.WriteToTextfile(metricsFile); err != nil {
		logger.Warn().Err(err).Str("path", metricsFile).Msg("writing metrics failed")
	}
}
