package vcs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrGitCommandFailed = errors.New("git command failed")
	ErrGitNotFound      = errors.New("git executable not found")
	ErrNotARepository   = errors.New("not a git repository")
)

// GitError describes a failed git invocation. It matches ErrGitCommandFailed
// with errors.Is and exposes the trimmed stderr for logging.
type GitError struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "git %s: %v", e.Op, e.Err)
	if e.Stderr != "" {
		fmt.Fprintf(&sb, ": %s", e.Stderr)
	}
	return sb.String()
}

func (e *GitError) Unwrap() []error {
	return []error{ErrGitCommandFailed, e.Err}
}
