package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmined/dotsync/internal/config"
	"github.com/openmined/dotsync/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newUninstallCmd())
}

// serviceDefinition runs "dotsync start" with the resolved config, logging
// next to the watched directory like a hand started daemon would.
func serviceDefinition(cfg *config.Config) (service.Definition, error) {
	exe, err := os.Executable()
	if err != nil {
		return service.Definition{}, fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	env := map[string]string{}
	for _, key := range []string{"HOME", "PATH"} {
		if val := os.Getenv(key); val != "" {
			env[key] = val
		}
	}

	return service.Definition{
		Label:      service.DefaultLabel,
		Executable: exe,
		Args:       []string{"start", "--config", cfg.Path},
		WorkingDir: cfg.WatchDir,
		StdoutPath: filepath.Join(cfg.WatchDir, "sync.log"),
		StderrPath: filepath.Join(cfg.WatchDir, "sync.error.log"),
		Env:        env,
	}, nil
}

func newServiceManager(cmd *cobra.Command) (*service.Manager, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	def, err := serviceDefinition(cfg)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := service.NewManager(def)
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Register dotsync as a background service and start it",
		Long: `Register dotsync with launchd (macOS) or systemd --user (Linux).
The service runs "dotsync start" with the config file that is resolved now,
so run "dotsync init" first to persist flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cfg, err := newServiceManager(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := mgr.Install(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "dotsync service installed and started")
			fmt.Fprintf(out, "Service: %s\n", green.Render(mgr.Path()))
			fmt.Fprintf(out, "Logs:    %s\n", cyan.Render(filepath.Join(cfg.WatchDir, "sync.log")))
			return nil
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the background service and remove it",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newServiceManager(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := mgr.Uninstall(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "dotsync service uninstalled")
			return nil
		},
	}
}
