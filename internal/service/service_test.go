package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	commands []string
	fail     map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.commands = append(f.commands, cmd)
	return f.fail[cmd]
}

func testDefinition(home string) Definition {
	return Definition{
		Executable: "/usr/local/bin/dotsync",
		Args:       []string{"start", "--config", filepath.Join(home, ".dotsync", "config.yaml")},
		StdoutPath: filepath.Join(home, ".claude", "sync.log"),
		StderrPath: filepath.Join(home, ".claude", "sync.error.log"),
		Env: map[string]string{
			"PATH": "/usr/bin:/bin",
			"HOME": home,
		},
	}
}

func TestNewManager_Platforms(t *testing.T) {
	home := t.TempDir()

	m, err := newManager("darwin", home, testDefinition(home), &fakeRunner{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Library", "LaunchAgents", DefaultLabel+".plist"), m.Path())

	m, err = newManager("linux", home, testDefinition(home), &fakeRunner{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "systemd", "user", "dotsync.service"), m.Path())

	_, err = newManager("windows", home, testDefinition(home), &fakeRunner{})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = newManager("linux", home, Definition{}, &fakeRunner{})
	assert.Error(t, err)
}

func TestLaunchd_Render(t *testing.T) {
	home := "/Users/dev"
	def := testDefinition(home)
	def.Args = append(def.Args, "--branch", "a&b")
	m, err := newManager("darwin", home, def, &fakeRunner{})
	require.NoError(t, err)

	out, err := m.Render()
	require.NoError(t, err)
	plist := string(out)

	assert.Contains(t, plist, "<string>com.openmined.dotsync</string>")
	assert.Contains(t, plist, "<string>/usr/local/bin/dotsync</string>\n        <string>start</string>")
	assert.Contains(t, plist, "<string>a&amp;b</string>")
	assert.Contains(t, plist, "<key>HOME</key>\n        <string>/Users/dev</string>\n        <key>PATH</key>")
	assert.Contains(t, plist, "<key>StandardOutPath</key>\n    <string>/Users/dev/.claude/sync.log</string>")
	assert.Contains(t, plist, "<key>StandardErrorPath</key>\n    <string>/Users/dev/.claude/sync.error.log</string>")
	assert.Contains(t, plist, "<key>KeepAlive</key>\n    <true/>")
	assert.NotContains(t, plist, "WorkingDirectory")
}

func TestSystemd_Render(t *testing.T) {
	home := "/home/dev"
	def := testDefinition(home)
	def.Args = append(def.Args, "--watch-dir", "/home/dev/my claude")
	m, err := newManager("linux", home, def, &fakeRunner{})
	require.NoError(t, err)

	out, err := m.Render()
	require.NoError(t, err)
	unit := string(out)

	assert.Contains(t, unit, "ExecStart=/usr/local/bin/dotsync start --config /home/dev/.dotsync/config.yaml --watch-dir \"/home/dev/my claude\"\n")
	assert.Contains(t, unit, "Environment=HOME=/home/dev\nEnvironment=PATH=/usr/bin:/bin\n")
	assert.Contains(t, unit, "StandardOutput=append:/home/dev/.claude/sync.log\n")
	assert.Contains(t, unit, "StandardError=append:/home/dev/.claude/sync.error.log\n")
	assert.Contains(t, unit, "WantedBy=default.target")
}

func TestSystemdQuote(t *testing.T) {
	assert.Equal(t, "plain", systemdQuote("plain"))
	assert.Equal(t, `"with space"`, systemdQuote("with space"))
	assert.Equal(t, `"100%%"`, systemdQuote("100%"))
	assert.Equal(t, `""`, systemdQuote(""))
}

func TestManager_InstallUninstallLinux(t *testing.T) {
	home := t.TempDir()
	runner := &fakeRunner{}
	m, err := newManager("linux", home, testDefinition(home), runner)
	require.NoError(t, err)

	require.NoError(t, m.Install(t.Context()))
	assert.FileExists(t, m.Path())
	assert.DirExists(t, filepath.Join(home, ".claude"))
	assert.Equal(t, []string{
		"systemctl --user daemon-reload",
		"systemctl --user enable --now dotsync.service",
	}, runner.commands)

	runner.commands = nil
	require.NoError(t, m.Uninstall(t.Context()))
	assert.NoFileExists(t, m.Path())
	assert.Equal(t, []string{
		"systemctl --user disable --now dotsync.service",
		"systemctl --user daemon-reload",
	}, runner.commands)

	// second uninstall has nothing to do
	runner.commands = nil
	require.NoError(t, m.Uninstall(t.Context()))
	assert.Empty(t, runner.commands)
}

func TestManager_InstallUninstallDarwin(t *testing.T) {
	home := t.TempDir()
	runner := &fakeRunner{}
	m, err := newManager("darwin", home, testDefinition(home), runner)
	require.NoError(t, err)

	require.NoError(t, m.Install(t.Context()))
	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "<plist version=\"1.0\">")
	assert.Equal(t, []string{
		"launchctl unload " + m.Path(),
		"launchctl load -w " + m.Path(),
	}, runner.commands)

	runner.commands = nil
	require.NoError(t, m.Uninstall(t.Context()))
	assert.NoFileExists(t, m.Path())
	assert.Equal(t, []string{"launchctl unload -w " + m.Path()}, runner.commands)
}

func TestManager_InstallFails(t *testing.T) {
	home := t.TempDir()
	runner := &fakeRunner{fail: map[string]error{
		"systemctl --user enable --now dotsync.service": errors.New("no user bus"),
	}}
	m, err := newManager("linux", home, testDefinition(home), runner)
	require.NoError(t, err)

	err = m.Install(t.Context())
	assert.ErrorContains(t, err, "no user bus")
}

func TestManager_UninstallKeepsGoingWhenStopFails(t *testing.T) {
	home := t.TempDir()
	runner := &fakeRunner{fail: map[string]error{
		"systemctl --user disable --now dotsync.service": errors.New("unit not loaded"),
	}}
	m, err := newManager("linux", home, testDefinition(home), runner)
	require.NoError(t, err)
	require.NoError(t, m.Install(t.Context()))

	require.NoError(t, m.Uninstall(t.Context()))
	assert.NoFileExists(t, m.Path())
}
