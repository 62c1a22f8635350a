package main

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/openmined/dotsync/internal/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// newTestRoot builds a root command that carries the persistent flags of
// the real CLI with sub attached.
func newTestRoot(sub ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{Use: "dotsync", SilenceErrors: true, SilenceUsage: true}
	root.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "dotsync config file")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")
	root.AddCommand(sub...)
	return root
}

func execute(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return stripANSI(out.String()), err
}

// newFlagCmd returns a parsed command with the start flags.
func newFlagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "start"}
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "dotsync config file")
	addStartFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}
