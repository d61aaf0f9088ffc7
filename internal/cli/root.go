// Package cli implements the clube command line: the admin API server and
// direct ledger operations against the local store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clubejota/clube/internal/daemon"
)

var (
	configPath string
	actorFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "clube",
	Short: "Loyalty ledger and tier reconciliation for the club",
	Long: `clube keeps each member's cashback balance and loyalty tier.
Run "clube serve" for the admin API, or use the member and import
commands to operate on the local store directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $CLUBE_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Acting administrator (default $CLUBE_ACTOR or \"admin\")")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file selected by --config.
func loadConfig() (daemon.Config, error) {
	path := configPath
	if path == "" {
		path = daemon.ConfigPath()
	}
	return daemon.Load(path)
}

// actor returns the administrator mutations are attributed to.
func actor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if env := os.Getenv("CLUBE_ACTOR"); env != "" {
		return env
	}
	return "admin"
}
