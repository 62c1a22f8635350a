package main

import (
	"log/slog"

	"github.com/openmined/dotsync/internal/config"
	"github.com/openmined/dotsync/internal/daemon"
	"github.com/openmined/dotsync/internal/vcs"
	"github.com/openmined/dotsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStartCmd())
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the sync daemon in the foreground",
		RunE:  runStart,
	}
	addStartFlags(cmd)
	return cmd
}

func addStartFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("watch-dir", "w", config.DefaultWatchDir, "directory to watch, must be a git work tree")
	cmd.Flags().StringP("remote", "r", config.DefaultRemote, "git remote to push to")
	cmd.Flags().StringP("branch", "b", config.DefaultBranch, "branch to rebase onto and push")
	cmd.Flags().Duration("debounce", config.DefaultDebounceInterval, "quiet period before changes are committed")
	cmd.Flags().Duration("push-interval", config.DefaultPushInterval, "minimum time between pushes")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// all good now, no usage on runtime errors
	cmd.SilenceUsage = true

	level := slog.LevelInfo
	if debugEnabled(cmd) {
		level = slog.LevelDebug
	}
	closeLog, err := setupLogging(cfg.LogFilePath, level)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.Info("dotsync", "version", version.Short(), "config", cfg.Path, "log", cfg.LogFilePath)

	d, err := daemon.New(cfg, vcs.NewGitClient(cfg.WatchDir))
	if err != nil {
		return err
	}

	defer slog.Info("Bye!")
	return d.Start(cmd.Context())
}
