package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vjranagit/sleepfilter/internal/config"
	"github.com/vjranagit/sleepfilter/internal/logger"
)

const (
	version = "0.3.0"
)

var (
	configPath string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "sleepfilter",
	Short:         "Crossfilter over nightly sleep records",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if err = cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if log, err = logger.New(os.Stderr, cfg.Log); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SLEEPFILTER_CONFIG"), "path to a TOML config file")
	rootCmd.AddCommand(serveCmd(), summaryCmd(), importCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
