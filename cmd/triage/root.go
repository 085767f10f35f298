package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/triage/internal/config"
	"github.com/kestrelworks/triage/internal/logging"
)

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Intelligent task intake and assignment",
	Long: `Triage turns free-text task requests into assigned, conflict-checked
board tasks.

Each intake resolves the client and project from the description, derives
priority, tags and an effort estimate, proposes dependency edges against
open tasks, picks the best assignee by expertise, load and topical
proximity, and commits to the board only when no conflict remains.

Entities and open tasks live in a local cache seeded from a YAML fixture
(see 'triage seed') and updated by every committed intake. Every run is
recorded in an audit journal (see 'triage history').`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration honoring the --config and --debug flags
// and initializes logging from the result.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFromPath(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log.Debug || flagDebug)
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a config file (overrides the XDG lookup)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(intakeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
