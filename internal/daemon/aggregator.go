package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openmined/dotsync/internal/queue"
)

// AggregatorState is the debouncer's position in its
// Idle -> Accumulating -> Flushing -> Idle cycle.
type AggregatorState int

const (
	AggregatorIdle AggregatorState = iota
	AggregatorAccumulating
	AggregatorFlushing
)

func (s AggregatorState) String() string {
	switch s {
	case AggregatorIdle:
		return "idle"
	case AggregatorAccumulating:
		return "accumulating"
	case AggregatorFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// FlushFunc receives a snapshot of a quiet batch.
type FlushFunc func(ctx context.Context, paths []string)

// Aggregator collects change events into a ChangeBatch and hands the batch to
// a FlushFunc once no event has arrived for a full interval.
//
// Flushes run one at a time on the goroutine calling Run, in the order their
// batches went quiet. Events that arrive while a flush is running start a new
// batch.
type Aggregator struct {
	interval time.Duration
	flush    FlushFunc

	mu       sync.Mutex
	batch    *ChangeBatch
	timer    *time.Timer
	gen      uint64
	flushing bool

	// quiet batches waiting for the flush worker
	queue *queue.Queue[[]string]
}

func NewAggregator(interval time.Duration, flush FlushFunc) *Aggregator {
	return &Aggregator{
		interval: interval,
		flush:    flush,
		batch:    NewChangeBatch(),
		queue:    queue.New[[]string](),
	}
}

// Add folds ev into the current batch and restarts the quiet-period timer.
// It never blocks on a running flush.
func (a *Aggregator) Add(ev ChangeEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.batch.Add(ev.Path)

	// every event gets a fresh timer tagged with a generation so a timer that
	// already fired but lost the race for the lock sees it is stale
	a.gen++
	gen := a.gen
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.interval, func() { a.quiet(gen) })
}

func (a *Aggregator) quiet(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.batch.Len() == 0 {
		a.mu.Unlock()
		return
	}
	snapshot := a.batch.Paths()
	a.batch = NewChangeBatch()
	a.timer = nil
	a.mu.Unlock()

	a.queue.Enqueue(snapshot)
}

// Pending returns the number of paths not yet handed to a flush.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.batch.Len()
	for _, q := range a.queue.Items() {
		n += len(q)
	}
	return n
}

func (a *Aggregator) State() AggregatorState {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.flushing:
		return AggregatorFlushing
	case a.batch.Len() > 0 || a.queue.Len() > 0:
		return AggregatorAccumulating
	default:
		return AggregatorIdle
	}
}

// Run executes queued flushes until ctx is done. Whatever is still pending
// at that point is dropped.
func (a *Aggregator) Run(ctx context.Context) error {
	defer a.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.queue.Ready():
			for {
				paths, ok := a.next()
				if !ok {
					break
				}
				a.flush(ctx, paths)
				a.doneFlushing()
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

func (a *Aggregator) next() ([]string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	paths, ok := a.queue.Dequeue()
	a.flushing = ok
	return paths, ok
}

func (a *Aggregator) doneFlushing() {
	a.mu.Lock()
	a.flushing = false
	a.mu.Unlock()
}

func (a *Aggregator) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	// invalidate any timer callback already in flight
	a.gen++

	dropped := a.batch.Len()
	for _, q := range a.queue.DequeueAll() {
		dropped += len(q)
	}
	if dropped > 0 {
		slog.Warn("aggregator stopped with unflushed changes", "paths", dropped)
	}
}
