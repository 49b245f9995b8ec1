// Package cli holds the matcher command line: the API server with its worker,
// and the maintenance commands sharing the same wiring.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/config"
	"alfredoptarigan/consultant-matcher/internal/logger"
)

const app = "matcher"

var (
	debug    bool
	jsonLogs bool

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "matcher shortlists consultants for open job descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&jsonLogs, "json", "j", false, "json format for logging")
}

// setup loads the configuration and builds the logger. Flags take precedence
// over LOG_DEBUG and LOG_JSON.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("debug") {
		cfg.Log.Debug = debug
	}
	if cmd.Flags().Changed("json") {
		cfg.Log.JSON = jsonLogs
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}

	return cfg, log, nil
}

func backgroundContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
