package daemon

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// ChangeBatch is an insertion-ordered set of absolute paths.
// It is not safe for concurrent use; the Aggregator guards it.
type ChangeBatch struct {
	seen  mapset.Set[string]
	order []string
}

func NewChangeBatch() *ChangeBatch {
	return &ChangeBatch{
		seen: mapset.NewThreadUnsafeSet[string](),
	}
}

// Add inserts path and reports whether it was new to the batch.
func (b *ChangeBatch) Add(path string) bool {
	if !b.seen.Add(path) {
		return false
	}
	b.order = append(b.order, path)
	return true
}

func (b *ChangeBatch) Contains(path string) bool {
	return b.seen.Contains(path)
}

func (b *ChangeBatch) Len() int {
	return len(b.order)
}

// Paths returns a copy of the paths in insertion order.
func (b *ChangeBatch) Paths() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}
