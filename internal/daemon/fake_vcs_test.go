package daemon

import (
	"context"
	"sync"
	"testing"

	"github.com/openmined/dotsync/internal/vcs"
)

// fakeVCS records every call and returns scripted errors in order.
type fakeVCS struct {
	mu     sync.Mutex
	calls  []string
	status vcs.Status
	errs   map[string][]error
	// messages passed to Commit
	messages []string

	// when set, PullRebase blocks until the channel is closed
	pullGate chan struct{}
	// closed on the first gated PullRebase
	pulling   chan struct{}
	signalled bool
}

var _ vcs.Client = (*fakeVCS)(nil)

func newFakeVCS() *fakeVCS {
	return &fakeVCS{errs: make(map[string][]error)}
}

func (f *fakeVCS) failNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = append(f.errs[op], err)
}

func (f *fakeVCS) setStatus(st vcs.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
}

func (f *fakeVCS) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if errs := f.errs[op]; len(errs) > 0 {
		f.errs[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeVCS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeVCS) count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeVCS) Status(context.Context) (vcs.Status, error) {
	if err := f.record("status"); err != nil {
		return vcs.Status{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeVCS) AddAll(context.Context) error {
	return f.record("add")
}

func (f *fakeVCS) Commit(_ context.Context, message string) error {
	if err := f.record("commit"); err != nil {
		return err
	}
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()
	return nil
}

func (f *fakeVCS) PullRebase(ctx context.Context, remote, branch string) error {
	err := f.record("pull")
	if f.pullGate != nil {
		f.mu.Lock()
		if f.pulling != nil && !f.signalled {
			f.signalled = true
			close(f.pulling)
		}
		f.mu.Unlock()
		select {
		case <-f.pullGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeVCS) AbortRebase(context.Context) error {
	return f.record("abort")
}

func (f *fakeVCS) Push(context.Context, string, string) error {
	return f.record("push")
}

func contextWithCancel(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	return ctx, cancel
}
