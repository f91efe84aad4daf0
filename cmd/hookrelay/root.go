package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/config"
	"github.com/rsclarke/hookrelay/internal/logging"
)

var logger *zap.Logger

var rootFlags struct {
	configFile string
}

var rootCmd = &cobra.Command{
	Use:   "hookrelay",
	Short: "Webhook capture and relay service",
	Long: `hookrelay captures every inbound webhook, stores it in SQLite,
relays qualifying events to upstream endpoints, and serves the stored
logs back as flattened rows, JSON or CSV.

Configuration is read from, in increasing precedence: built-in defaults,
the YAML file given by --config-file, HOOKRELAY_* environment variables,
and command-line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile := rootFlags.configFile
		if configFile == "" {
			configFile = os.Getenv("HOOKRELAY_CONFIG_FILE")
		}
		if err := config.Spec.LoadConfiguration(configFile); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("configuration validation error: %w", err)
		}

		var err error
		logger, err = logging.New(logging.Config{
			Level:  config.Spec.GetString("log-level"),
			Format: config.Spec.GetString("log-format"),
		})
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlags.configFile, "config-file", "", "path to YAML configuration file (env: HOOKRELAY_CONFIG_FILE)")
	config.Spec.AddFlag(flags, "log-level", "log-level")
	config.Spec.AddFlag(flags, "log-format", "log-format")
	config.Spec.AddFlag(flags, "api-url", "api.url")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
