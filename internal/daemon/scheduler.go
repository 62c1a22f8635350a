package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openmined/dotsync/internal/vcs"
)

var (
	ErrPushInFlight     = errors.New("push already in flight")
	ErrPullRebaseFailed = errors.New("pull --rebase failed")
	ErrPushFailed       = errors.New("push failed")
)

// PushOutcome is the result of a single push attempt.
type PushOutcome int

const (
	PushNothingPending PushOutcome = iota
	PushCompleted
	PushRejected
)

func (o PushOutcome) String() string {
	switch o {
	case PushNothingPending:
		return "nothing pending"
	case PushCompleted:
		return "completed"
	case PushRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// SchedulerConfig configures a PushScheduler.
type SchedulerConfig struct {
	Remote   string
	Branch   string
	Interval time.Duration
	// AlertAfter is the number of consecutive failed attempts after which a
	// "push stalled" error is logged. 0 disables it.
	AlertAfter int
}

// PushScheduler pushes local commits to the remote at most once per interval.
//
// Arm schedules a single delayed attempt after a commit. Run keeps a safety
// net timer that retries whenever a push is pending, so a failed attempt is
// retried on the next cycle and never immediately. At most one attempt runs
// at any time, and it holds the working tree guard for its whole duration.
type PushScheduler struct {
	cfg     SchedulerConfig
	vcs     vcs.Client
	state   *StateStore
	journal *Journal
	guard   *sync.Mutex
	now     func() time.Time

	muPush sync.Mutex

	mu       sync.Mutex
	ctx      context.Context
	timer    *time.Timer
	armed    bool
	stopped  bool
	failures int
}

func NewPushScheduler(cfg SchedulerConfig, client vcs.Client, state *StateStore, journal *Journal, guard *sync.Mutex) *PushScheduler {
	if guard == nil {
		guard = &sync.Mutex{}
	}
	return &PushScheduler{
		cfg:     cfg,
		vcs:     client,
		state:   state,
		journal: journal,
		guard:   guard,
		now:     time.Now,
		ctx:     context.Background(),
	}
}

// Arm starts the push timer unless one is already pending.
func (s *PushScheduler) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed || s.stopped {
		return
	}
	s.armed = true
	s.timer = time.AfterFunc(s.cfg.Interval, s.fire)
	slog.Debug("push armed", "in", s.cfg.Interval)
}

// Armed reports whether a push timer is pending.
func (s *PushScheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// fire disarms before pushing so a commit landing during the attempt can arm
// the next one.
func (s *PushScheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.armed = false
	s.timer = nil
	s.mu.Unlock()

	if _, err := s.AttemptPush(ctx); errors.Is(err, ErrPushInFlight) {
		slog.Debug("push timer fired during a running push")
	}
}

// Failures returns the number of consecutive failed attempts.
func (s *PushScheduler) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// SetFailures seeds the consecutive failure count, e.g. from the journal.
func (s *PushScheduler) SetFailures(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// AttemptPush rebases local commits onto the remote branch and pushes them.
// Nothing is done when no push is pending. A failed attempt leaves the push
// pending for the next cycle.
func (s *PushScheduler) AttemptPush(ctx context.Context) (PushOutcome, error) {
	if !s.muPush.TryLock() {
		return PushNothingPending, ErrPushInFlight
	}
	defer s.muPush.Unlock()

	s.guard.Lock()
	defer s.guard.Unlock()

	if !s.state.Load().PendingPush {
		return PushNothingPending, nil
	}

	if err := s.vcs.PullRebase(ctx, s.cfg.Remote, s.cfg.Branch); err != nil {
		if abortErr := s.vcs.AbortRebase(ctx); abortErr != nil {
			slog.Error("rebase abort failed", "error", abortErr)
		}
		return PushRejected, s.failed(fmt.Errorf("%w: %w", ErrPullRebaseFailed, err))
	}

	if err := s.vcs.Push(ctx, s.cfg.Remote, s.cfg.Branch); err != nil {
		return PushRejected, s.failed(fmt.Errorf("%w: %w", ErrPushFailed, err))
	}

	now := s.now().UTC()
	if _, err := s.state.Update(func(st *SyncState) {
		st.LastPushAt = &now
		st.PendingPush = false
	}); err != nil {
		slog.Error("sync state save failed", "path", s.state.Path(), "error", err)
	}

	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()

	s.journal.Record(JournalPush, fmt.Sprintf("%s/%s", s.cfg.Remote, s.cfg.Branch), nil)
	slog.Info("pushed", "remote", s.cfg.Remote, "branch", s.cfg.Branch)
	return PushCompleted, nil
}

func (s *PushScheduler) failed(err error) error {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	s.journal.Record(JournalPush, fmt.Sprintf("%s/%s", s.cfg.Remote, s.cfg.Branch), err)
	slog.Error("push failed", "remote", s.cfg.Remote, "branch", s.cfg.Branch, "attempt", failures, "error", err)

	if s.cfg.AlertAfter > 0 && failures == s.cfg.AlertAfter {
		slog.Error("push stalled, resolve the repository manually",
			"remote", s.cfg.Remote, "branch", s.cfg.Branch, "failures", failures, "dir", vcsDir(s.vcs))
	}
	return err
}

// Run drives the safety net timer until ctx is done. An armed timer still
// pending at that point is cancelled.
func (s *PushScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stopped = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.armed = false
		s.mu.Unlock()
	}()

	// timer, not ticker, so a slow push never queues a second tick
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if s.state.Load().PendingPush {
				_, err := s.AttemptPush(ctx)
				if errors.Is(err, ErrPushInFlight) {
					slog.Debug("safety net skipped, push in flight")
				}
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

func vcsDir(client vcs.Client) string {
	if d, ok := client.(interface{ Dir() string }); ok {
		return d.Dir()
	}
	return ""
}
