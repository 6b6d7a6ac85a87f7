package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kfsim-go/config"
	"kfsim-go/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kfsim",
		Short:         "Interactive Kalman filter tracking simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "TRACE, DEBUG, INFO, WARN or ERROR (overrides config)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTrackCmd())
	rootCmd.AddCommand(newFeedCmd())
	return rootCmd
}

// loadConfig reads --config when given and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.DefaultLevel = lvl
	}
	if err := logging.Configure(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
