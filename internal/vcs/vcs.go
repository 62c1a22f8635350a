// Package vcs is the version-control capability used by the sync daemon.
//
// The daemon only needs a handful of operations: inspect the working tree,
// stage and commit everything, linearize onto the remote branch with a
// pull-rebase, and push. Client hides how those are carried out so the
// daemon can be exercised against a scripted fake.
package vcs

import "context"

// Status is the subset of `git status` the daemon cares about.
// Modified holds every tracked path with staged or unstaged changes,
// including deletions and renames. Untracked holds new paths.
type Status struct {
	Modified  []string
	Untracked []string
}

// Clean reports whether there is nothing to commit.
func (s Status) Clean() bool {
	return len(s.Modified) == 0 && len(s.Untracked) == 0
}

// Client is implemented by GitClient and by test fakes.
type Client interface {
	Status(ctx context.Context) (Status, error)
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error
	PullRebase(ctx context.Context, remote, branch string) error
	AbortRebase(ctx context.Context) error
	Push(ctx context.Context, remote, branch string) error
}
