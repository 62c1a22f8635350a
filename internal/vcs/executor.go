package vcs

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// CommandExecutor runs a git subcommand in dir and returns its stdout.
type CommandExecutor interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecExecutor runs the real git binary.
type ExecExecutor struct {
	// Binary defaults to "git" resolved from PATH
	Binary string
}

func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{Binary: "git"}
}

func (e *ExecExecutor) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := e.Binary
	if bin == "" {
		bin = "git"
	}

	op := ""
	if len(args) > 0 {
		op = args[0]
	}

	path, err := exec.LookPath(bin)
	if err != nil {
		return "", &GitError{Op: op, Args: args, Err: ErrGitNotFound}
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Env = commandEnv(cmd.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &GitError{
			Op:     op,
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

// commandEnv pins git's messages to English, since stderr is matched, and
// disables credential and editor prompts, since there is no terminal.
func commandEnv(environ []string) []string {
	env := make([]string, 0, len(environ)+3)
	for _, kv := range environ {
		if strings.HasPrefix(kv, "LC_ALL=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "LC_ALL=C", "GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true")
}
