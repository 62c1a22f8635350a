package main

import (
	"fmt"

	"github.com/openmined/dotsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the current settings",
		Long: `Write a YAML config file from the defaults, DOTSYNC_* environment
variables and the given flags. An existing file is kept unless --force is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := resolveConfigPath(cmd)

			if utils.FileExists(path) && !force {
				fmt.Fprintf(out, "dotsync already initialized, use --force to overwrite\n")
				fmt.Fprintf(out, "Config Path: %s\n", green.Render(path))
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			fmt.Fprintln(out, "dotsync initialized")
			fmt.Fprintf(out, "Config Path: %s\n", green.Render(cfg.Path))
			fmt.Fprintf(out, "Watch Dir:   %s\n", cyan.Render(cfg.WatchDir))
			fmt.Fprintf(out, "Remote:      %s\n", cyan.Render(cfg.Remote+"/"+cfg.Branch))
			fmt.Fprintf(out, "State:       %s\n", cyan.Render(cfg.StatePath))
			return nil
		},
	}

	addStartFlags(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	return cmd
}
