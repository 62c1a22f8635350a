// Package service registers the dotsync daemon with the OS service manager:
// a launchd agent on macOS and a systemd user unit on Linux.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/openmined/dotsync/internal/utils"
)

const (
	DefaultLabel = "com.openmined.dotsync"
	unitName     = "dotsync.service"
)

var ErrUnsupportedPlatform = errors.New("service install is not supported on this platform")

// Definition is what the service manager should run.
type Definition struct {
	Label      string
	Executable string
	Args       []string
	WorkingDir string
	StdoutPath string
	StderrPath string
	Env        map[string]string
}

// EnvPairs returns Env sorted by key.
func (d Definition) EnvPairs() [][2]string {
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, d.Env[k]})
	}
	return pairs
}

// Runner runs service manager commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

type platform interface {
	path(home string, def Definition) string
	render(def Definition) ([]byte, error)
	install(ctx context.Context, r Runner, path string) error
	uninstall(ctx context.Context, r Runner, path string) error
}

// implemented by platforms that must be told a service file is gone
type remover interface {
	removed(ctx context.Context, r Runner) error
}

// Manager installs and removes a Definition.
type Manager struct {
	def      Definition
	path     string
	platform platform
	runner   Runner
}

// NewManager returns a manager for the current OS.
func NewManager(def Definition) (*Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("home directory: %w", err)
	}
	return newManager(runtime.GOOS, home, def, ExecRunner{})
}

func newManager(goos, home string, def Definition, runner Runner) (*Manager, error) {
	if def.Label == "" {
		def.Label = DefaultLabel
	}
	if def.Executable == "" {
		return nil, errors.New("service executable is required")
	}

	var p platform
	switch goos {
	case "darwin":
		p = launchd{}
	case "linux":
		p = systemd{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}

	return &Manager{
		def:      def,
		path:     p.path(home, def),
		platform: p,
		runner:   runner,
	}, nil
}

// Path is where the service file is written.
func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Render() ([]byte, error) {
	return m.platform.render(m.def)
}

// Install writes the service file and starts the service.
func (m *Manager) Install(ctx context.Context) error {
	data, err := m.Render()
	if err != nil {
		return fmt.Errorf("render service file: %w", err)
	}

	for _, p := range []string{m.def.StdoutPath, m.def.StderrPath} {
		if p == "" {
			continue
		}
		if err := utils.EnsureParent(p); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}

	if err := utils.WriteFileAtomic(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write service file: %w", err)
	}
	slog.Debug("service file written", "path", m.path)

	return m.platform.install(ctx, m.runner, m.path)
}

// Uninstall stops the service and removes its file. A service that was never
// installed is not an error.
func (m *Manager) Uninstall(ctx context.Context) error {
	if !utils.FileExists(m.path) {
		return nil
	}
	if err := m.platform.uninstall(ctx, m.runner, m.path); err != nil {
		slog.Warn("service stop failed", "path", m.path, "error", err)
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove service file: %w", err)
	}
	if rm, ok := m.platform.(remover); ok {
		if err := rm.removed(ctx, m.runner); err != nil {
			return err
		}
	}
	return nil
}

func unitPath(home string) string {
	return filepath.Join(home, ".config", "systemd", "user", unitName)
}
