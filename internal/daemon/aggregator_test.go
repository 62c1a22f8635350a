package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches [][]string
	flushed chan []string
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{flushed: make(chan []string, 16)}
}

func (r *flushRecorder) flush(_ context.Context, paths []string) {
	r.mu.Lock()
	r.batches = append(r.batches, paths)
	r.mu.Unlock()
	r.flushed <- paths
}

func (r *flushRecorder) wait(t *testing.T, timeout time.Duration) []string {
	t.Helper()
	select {
	case paths := <-r.flushed:
		return paths
	case <-time.After(timeout):
		require.FailNow(t, "timeout waiting for flush")
		return nil
	}
}

func runAggregator(t *testing.T, a *Aggregator) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func event(path string) ChangeEvent {
	return ChangeEvent{Path: path, Kind: EventModified, ObservedAt: time.Now()}
}

func TestAggregator_CoalescesBurst(t *testing.T) {
	rec := newFlushRecorder()
	a := NewAggregator(50*time.Millisecond, rec.flush)
	runAggregator(t, a)

	a.Add(event("/w/commands/a.md"))
	a.Add(event("/w/commands/b.md"))
	a.Add(event("/w/commands/a.md"))
	a.Add(event("/w/agents/c.md"))
	assert.Equal(t, AggregatorAccumulating, a.State())
	assert.Equal(t, 3, a.Pending())

	paths := rec.wait(t, 2*time.Second)
	assert.Equal(t, []string{"/w/commands/a.md", "/w/commands/b.md", "/w/agents/c.md"}, paths)

	// no second flush for the same burst
	select {
	case extra := <-rec.flushed:
		assert.Failf(t, "unexpected flush", "%v", extra)
	case <-time.After(150 * time.Millisecond):
	}
	assert.Equal(t, AggregatorIdle, a.State())
	assert.Zero(t, a.Pending())
}

func TestAggregator_EventResetsQuietPeriod(t *testing.T) {
	rec := newFlushRecorder()
	a := NewAggregator(300*time.Millisecond, rec.flush)
	runAggregator(t, a)

	a.Add(event("/w/a"))
	time.Sleep(150 * time.Millisecond)
	a.Add(event("/w/b"))
	time.Sleep(150 * time.Millisecond)

	// a full interval after the first event, but only half of one after the last
	select {
	case paths := <-rec.flushed:
		require.Failf(t, "flushed before the quiet period elapsed", "%v", paths)
	default:
	}

	paths := rec.wait(t, 2*time.Second)
	assert.Equal(t, []string{"/w/a", "/w/b"}, paths)
}

func TestAggregator_EventsDuringFlushStartNewBatch(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan []string, 4)
	var inFlight, maxInFlight atomic.Int32

	flush := func(_ context.Context, paths []string) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		started <- paths
		<-gate
		inFlight.Add(-1)
	}

	a := NewAggregator(30*time.Millisecond, flush)
	runAggregator(t, a)

	a.Add(event("/w/first"))
	var first []string
	select {
	case first = <-started:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "first flush never started")
	}
	assert.Equal(t, []string{"/w/first"}, first)
	assert.Equal(t, AggregatorFlushing, a.State())

	// arrives while the first flush is blocked
	a.Add(event("/w/second"))
	a.Add(event("/w/first"))

	// let the second batch go quiet while the first flush still runs
	time.Sleep(100 * time.Millisecond)
	select {
	case paths := <-started:
		require.Failf(t, "second flush overlapped the first", "%v", paths)
	default:
	}

	close(gate)

	select {
	case second := <-started:
		assert.Equal(t, []string{"/w/second", "/w/first"}, second)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "second flush never started")
	}
	assert.EqualValues(t, 1, maxInFlight.Load())
}

func TestAggregator_QuietWithEmptyBatchIsNoop(t *testing.T) {
	rec := newFlushRecorder()
	a := NewAggregator(time.Hour, rec.flush)

	a.quiet(a.gen)

	assert.Zero(t, a.queue.Len())
	assert.Equal(t, AggregatorIdle, a.State())
}

func TestAggregator_StaleTimerIgnored(t *testing.T) {
	rec := newFlushRecorder()
	a := NewAggregator(time.Hour, rec.flush)

	a.Add(event("/w/a"))
	stale := a.gen
	a.Add(event("/w/b"))

	a.quiet(stale)
	assert.Zero(t, a.queue.Len())
	assert.Equal(t, 2, a.Pending())

	a.quiet(a.gen)
	queued := a.queue.Items()
	require.Len(t, queued, 1)
	assert.Equal(t, []string{"/w/a", "/w/b"}, queued[0])
	assert.Equal(t, 2, a.Pending())
	a.stop()
}

func TestAggregator_StopDropsPending(t *testing.T) {
	rec := newFlushRecorder()
	a := NewAggregator(time.Hour, rec.flush)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	a.Add(event("/w/a"))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "aggregator did not stop")
	}

	// the timer was stopped, nothing reaches the flush
	assert.Empty(t, rec.batches)
	assert.Nil(t, a.timer)
}
