package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// GitClient implements Client by shelling out to git inside a work tree.
type GitClient struct {
	dir      string
	executor CommandExecutor
}

var _ Client = (*GitClient)(nil)

// NewGitClient returns a client for the work tree at dir using the real git binary.
func NewGitClient(dir string) *GitClient {
	return NewGitClientWithExecutor(dir, NewExecExecutor())
}

func NewGitClientWithExecutor(dir string, executor CommandExecutor) *GitClient {
	return &GitClient{dir: dir, executor: executor}
}

func (g *GitClient) Dir() string {
	return g.dir
}

func (g *GitClient) run(ctx context.Context, args ...string) (string, error) {
	return g.executor.Run(ctx, g.dir, args...)
}

func (g *GitClient) Status(ctx context.Context) (Status, error) {
	out, err := g.run(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return Status{}, err
	}
	return parsePorcelainZ(out), nil
}

// AddAll stages every change in the work tree, deletions included.
// What ends up tracked is governed by the repository's own .gitignore.
func (g *GitClient) AddAll(ctx context.Context) error {
	_, err := g.run(ctx, "add", "--all", ".")
	return err
}

func (g *GitClient) Commit(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("commit: empty message")
	}
	_, err := g.run(ctx, "commit", "--quiet", "-m", message)
	return err
}

func (g *GitClient) PullRebase(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "pull", "--rebase", "--quiet", remote, branch)
	return err
}

// AbortRebase leaves an interrupted rebase. It is not an error when no
// rebase is in progress.
func (g *GitClient) AbortRebase(ctx context.Context) error {
	_, err := g.run(ctx, "rebase", "--abort")
	var gitErr *GitError
	if errors.As(err, &gitErr) && strings.Contains(gitErr.Stderr, "No rebase in progress") {
		return nil
	}
	return err
}

func (g *GitClient) Push(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "push", "--quiet", remote, branch)
	return err
}

// IsRepository reports whether dir is inside a git work tree.
// A missing git binary is returned as an error, a plain "not a repository"
// answer is (false, nil).
func IsRepository(ctx context.Context, dir string) (bool, error) {
	return isRepository(ctx, NewExecExecutor(), dir)
}

// IsRepository reports whether the client's directory is a git work tree.
func (g *GitClient) IsRepository(ctx context.Context) (bool, error) {
	return isRepository(ctx, g.executor, g.dir)
}

func isRepository(ctx context.Context, executor CommandExecutor, dir string) (bool, error) {
	out, err := executor.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err == nil {
		return strings.TrimSpace(out) == "true", nil
	}

	if errors.Is(err, ErrGitNotFound) {
		return false, err
	}

	// 128 is git's generic fatal exit code, here it means not a repository
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
		return false, nil
	}
	var gitErr *GitError
	if errors.As(err, &gitErr) && strings.Contains(gitErr.Stderr, "not a git repository") {
		return false, nil
	}
	return false, err
}
