package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openmined/dotsync/internal/config"
	"github.com/openmined/dotsync/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dotsync",
	Short: "Keep a config directory committed and pushed to git",
	Long: `dotsync watches a directory that is a git work tree, commits changes
once they settle and pushes the commits to a remote on a fixed cadence.

Running dotsync without a subcommand is the same as "dotsync start".`,
	Version:       version.Detailed(),
	SilenceErrors: true,
	RunE:          runStart,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "dotsync config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	addStartFlags(rootCmd)
}

func main() {
	slog.SetDefault(slog.New(newStdoutHandler(os.Stdout, slog.LevelInfo)))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
