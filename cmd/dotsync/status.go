package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/dotsync/internal/config"
	"github.com/openmined/dotsync/internal/daemon"
	"github.com/openmined/dotsync/internal/utils"
	"github.com/spf13/cobra"
)

const recentEntries = 5

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last commit, last push and whether a push is pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			renderStatus(cmd.OutOrStdout(), collectStatus(cfg), time.Now())
			return nil
		},
	}
}

type statusReport struct {
	WatchDir string
	Remote   string
	Branch   string

	State    daemon.SyncState
	StateErr error

	Instance    daemon.ProcessInfo
	InstanceErr error

	Failures   int
	Recent     []daemon.JournalEntry
	JournalErr error
}

func collectStatus(cfg *config.Config) statusReport {
	report := statusReport{
		WatchDir: cfg.WatchDir,
		Remote:   cfg.Remote,
		Branch:   cfg.Branch,
	}

	report.State, report.StateErr = daemon.ReadStateFile(cfg.StatePath)
	report.Instance, report.InstanceErr = daemon.InspectInstance(filepath.Dir(cfg.StatePath))

	if utils.FileExists(cfg.JournalPath) {
		journal := daemon.NewJournal(cfg.JournalPath, "", "")
		if err := journal.Open(); err != nil {
			report.JournalErr = err
			return report
		}
		defer journal.Close()

		report.Failures, report.JournalErr = journal.ConsecutivePushFailures()
		if report.JournalErr == nil {
			report.Recent, report.JournalErr = journal.Recent(recentEntries)
		}
	}

	return report
}

func formatWhen(t *time.Time, now time.Time) string {
	if t == nil {
		return gray.Render("never")
	}
	return t.Local().Format(time.RFC3339) + " " + lightGray.Render("("+humanize.RelTime(*t, now, "ago", "from now")+")")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderStatus(w io.Writer, r statusReport, now time.Time) {
	row := func(label, value string) {
		pad := max(0, 14-len(label)-1)
		fmt.Fprintf(w, "%s%s %s\n", bold.Render(label+":"), strings.Repeat(" ", pad), value)
	}

	row("Watch dir", cyan.Render(r.WatchDir))
	row("Remote", cyan.Render(r.Remote+"/"+r.Branch))

	if r.StateErr != nil {
		row("State", red.Render("unreadable: "+r.StateErr.Error()))
	}
	row("Last commit", formatWhen(r.State.LastCommitAt, now))
	row("Last push", formatWhen(r.State.LastPushAt, now))

	pending := yesNo(r.State.PendingPush)
	if r.State.PendingPush {
		pending = yellow.Render(pending)
	}
	row("Pending push", pending)

	switch {
	case r.InstanceErr != nil:
		row("Daemon", red.Render("unknown: "+r.InstanceErr.Error()))
	case !r.Instance.Running:
		row("Daemon", gray.Render("not running"))
	case r.Instance.PID == 0:
		row("Daemon", green.Render("running"))
	default:
		detail := fmt.Sprintf("pid %d", r.Instance.PID)
		if !r.Instance.StartedAt.IsZero() {
			detail += ", up " + strings.TrimSuffix(humanize.RelTime(r.Instance.StartedAt, now, "", ""), " ")
		}
		row("Daemon", green.Render("running")+" "+lightGray.Render("("+detail+")"))
	}

	failures := fmt.Sprint(r.Failures)
	if r.Failures > 0 {
		failures = red.Render(failures)
	}
	row("Push failures", failures)

	if r.JournalErr != nil {
		row("Journal", red.Render(r.JournalErr.Error()))
		return
	}
	if len(r.Recent) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold.Render("Recent activity"))
	for _, e := range r.Recent {
		mark := green.Render("ok") + "  "
		if !e.OK {
			mark = red.Render("FAIL")
		}
		line := fmt.Sprintf("  %s %-14s %s", mark, e.Kind, e.Summary)
		if e.Error != "" {
			line += " " + red.Render(firstLine(e.Error))
		}
		fmt.Fprintf(w, "%s %s\n", line, lightGray.Render(humanize.RelTime(e.CreatedAt, now, "ago", "from now")))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
