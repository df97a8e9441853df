// Package cmd provides the command-line interface for pyrothor.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"pyrothor/bootstrap"
	"pyrothor/config"
	"pyrothor/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
	logLevel   string
)

// defaultTimeout bounds store-only CLI operations. Scan runs use the
// configured execution timeout instead.
const defaultTimeout = 5 * time.Minute

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "pyrothor",
		Short:   "THOR Lite scan orchestrator with an embedded rule store",
		Version: version,
		Long: `pyrothor orchestrates THOR Lite forensic scans: it acquires the scanner
package, extracts it into an isolated working directory, runs the scanner
against a target path and captures its JSON report.

Alongside scanning it maintains an embedded store of YARA rules, rule
metadata and threat intel indicators.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newIntelCmd())

	return rootCmd
}

// initApp loads configuration and builds the logger for a CLI invocation.
func initApp() (*config.Config, *zap.SugaredLogger, func(), error) {
	logger, sugar, err := bootstrap.InitLogger(logLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := bootstrap.InitConfig(configFile, sugar)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		// Sync errors on stderr are common and harmless.
		_ = logger.Sync()
	}
	return cfg, sugar, cleanup, nil
}

// initStore opens the embedded store on top of initApp.
func initStore() (*config.Config, *storage.RuleStore, *zap.SugaredLogger, func(), error) {
	cfg, sugar, appCleanup, err := initApp()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := bootstrap.OpenStore(cfg, sugar)
	if err != nil {
		appCleanup()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			sugar.Warnf("Failed to close store during cleanup: %v", err)
		}
		appCleanup()
	}
	return cfg, store, sugar, cleanup, nil
}

// outputAsJSON outputs data as JSON to stdout.
func outputAsJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
