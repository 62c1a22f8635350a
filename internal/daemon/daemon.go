// Package daemon watches a git work tree, commits changes once they settle
// and pushes the commits to a remote on a fixed cadence.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openmined/dotsync/internal/config"
	"github.com/openmined/dotsync/internal/utils"
	"github.com/openmined/dotsync/internal/vcs"
	"golang.org/x/sync/errgroup"
)

const journalRetention = 30 * 24 * time.Hour

// Daemon wires the watcher, aggregator, composer and push scheduler for a
// single watched directory. All runtime state is owned by the instance.
type Daemon struct {
	cfg     *config.Config
	vcs     vcs.Client
	lock    *InstanceLock
	state   *StateStore
	journal *Journal
	ignore  *IgnoreList
	watcher *FileWatcher

	aggregator *Aggregator
	composer   *Composer
	scheduler  *PushScheduler

	// working tree guard shared by commits and pushes
	guard sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
}

// New validates cfg and builds a daemon around client.
func New(cfg *config.Config, client vcs.Client) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if client == nil {
		return nil, errors.New("vcs client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		cfg:     cfg,
		vcs:     client,
		lock:    NewInstanceLock(filepath.Dir(cfg.StatePath)),
		state:   NewStateStore(cfg.StatePath),
		journal: NewJournal(cfg.JournalPath, "", ""),
		ignore:  NewIgnoreList(cfg.WatchDir),
		watcher: NewFileWatcher(cfg.WatchDir),
		ready:   make(chan struct{}),
	}

	d.scheduler = NewPushScheduler(SchedulerConfig{
		Remote:     cfg.Remote,
		Branch:     cfg.Branch,
		Interval:   cfg.PushInterval,
		AlertAfter: cfg.PushFailureAlert,
	}, client, d.state, d.journal, &d.guard)
	d.composer = NewComposer(cfg.WatchDir, client, d.state, d.journal, &d.guard, d.scheduler.Arm)
	d.aggregator = NewAggregator(cfg.DebounceInterval, d.composer.Flush)

	// own files, in case they were configured inside the watched tree
	d.ignore.AddPaths(
		cfg.StatePath,
		cfg.JournalPath,
		cfg.JournalPath+"-wal",
		cfg.JournalPath+"-shm",
		cfg.LogFilePath,
		filepath.Join(filepath.Dir(cfg.StatePath), lockFileName),
		filepath.Join(filepath.Dir(cfg.StatePath), pidFileName),
	)
	if sub := strings.Trim(filepath.ToSlash(cfg.ManagedSubtree), "/"); sub != "" {
		d.ignore.AddRules("/" + sub + "/")
	}
	d.watcher.FilterPaths(d.ignore.ShouldIgnore)

	return d, nil
}

// Start runs until ctx is cancelled or a component fails.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("dotsync daemon start", "dir", d.cfg.WatchDir, "remote", d.cfg.Remote, "branch", d.cfg.Branch,
		"debounce", d.cfg.DebounceInterval, "push_interval", d.cfg.PushInterval)

	if !utils.DirExists(d.cfg.WatchDir) {
		return fmt.Errorf("%w: %s", ErrWatchDirNotExist, d.cfg.WatchDir)
	}
	if err := d.checkRepository(ctx); err != nil {
		return err
	}

	if err := d.lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			slog.Warn("instance unlock failed", "error", err)
		}
	}()

	if err := d.journal.Open(); err != nil {
		// history is optional, syncing is not
		slog.Warn("journal unavailable", "path", d.cfg.JournalPath, "error", err)
		d.journal = nil
		d.composer.journal = nil
		d.scheduler.journal = nil
	} else {
		defer d.journal.Close()
		if n, err := d.journal.Prune(journalRetention); err != nil {
			slog.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			slog.Debug("journal pruned", "entries", n)
		}
		if n, err := d.journal.ConsecutivePushFailures(); err == nil {
			d.scheduler.SetFailures(n)
		}
	}

	d.ignore.Load()

	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	defer d.watcher.Stop()

	st := d.state.Load()
	slog.Info("sync state", "path", d.state.Path(), "pending_push", st.PendingPush,
		"last_commit", formatTime(st.LastCommitAt), "last_push", formatTime(st.LastPushAt))
	if st.PendingPush {
		d.scheduler.Arm()
	}

	d.readyOnce.Do(func() { close(d.ready) })

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return d.aggregator.Run(egCtx)
	})

	eg.Go(func() error {
		return d.scheduler.Run(egCtx)
	})

	eg.Go(func() error {
		return d.pumpEvents(egCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("dotsync daemon failure", "error", err)
		return err
	}

	slog.Info("dotsync daemon stopped")
	return nil
}

// Ready is closed once Start has the lock and the watcher is running.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// clients that can tell whether their directory is a work tree
type repositoryChecker interface {
	IsRepository(ctx context.Context) (bool, error)
}

func (d *Daemon) checkRepository(ctx context.Context) error {
	checker, ok := d.vcs.(repositoryChecker)
	if !ok {
		return nil
	}
	isRepo, err := checker.IsRepository(ctx)
	if err != nil {
		return fmt.Errorf("check repository: %w", err)
	}
	if !isRepo {
		return fmt.Errorf("%w: %s", vcs.ErrNotARepository, d.cfg.WatchDir)
	}
	return nil
}

func (d *Daemon) pumpEvents(ctx context.Context) error {
	events := d.watcher.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("file watcher stopped unexpectedly")
			}
			slog.Debug("change detected", "path", ev.Path, "kind", ev.Kind)
			d.aggregator.Add(ev)
		}
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
