// Package cli implements the dojo command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eduverse-ninja/dojo/internal/daemon"
	"github.com/eduverse-ninja/dojo/internal/logger"
)

var (
	configPath string
	dataDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dojo",
	Short: "Streaks, levels and leaderboards for the learning portal",
	Long: `dojo tracks daily activity streaks, awards XP, coins and badges, and
ranks learners on leaderboards. Run 'dojo serve' for the HTTP API, or use
the other commands to work against the local store directly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", daemon.DefaultConfigPath(), "Path to config.toml")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override [storage].data_dir")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override [log].level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.Init(cfg.Log)
	return cfg, nil
}

// openDaemon loads config and opens the store. The caller must Close it.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newDaemon(cfg)
}

func newDaemon(cfg daemon.Config) (*daemon.Daemon, error) {
	d, err := daemon.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("start dojo: %w", err)
	}
	return d, nil
}
