package main

import (
	"github.com/spf13/cobra"

	"github.com/rvald/ytmcompanion/internal/config"
)

var (
	cfgFile     string
	cfgStateDir string
	cfgLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "ytmcompanion",
	Short:         "YouTube Music companion server",
	Long:          `Remote-control server for YouTube Music companion apps: pairing, REST API and realtime state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&cfgStateDir, "state-dir", "", "Directory for persistent state (default $XDG_STATE_HOME/ytmcompanion)")
	rootCmd.PersistentFlags().StringVar(&cfgLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig resolves defaults, file and environment, then the flags that
// were set explicitly on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("state-dir") {
		cfg.StateDir = cfgStateDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = cfgLogLevel
	}
	applyServerFlags(cmd, &cfg)
	return cfg, nil
}
