package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/dotsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCommand_WritesConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	watchDir := filepath.Join(dir, "claude")

	out, err := execute(t, newTestRoot(newInitCmd()),
		"init", "--config", configPath, "--watch-dir", watchDir, "--branch", "dotfiles", "--debounce", "1m")
	require.NoError(t, err)
	assert.Contains(t, out, "dotsync initialized")
	assert.Contains(t, out, configPath)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, watchDir, cfg.WatchDir)
	assert.Equal(t, "dotfiles", cfg.Branch)
	assert.Equal(t, "origin", cfg.Remote)
	assert.Equal(t, time.Minute, cfg.DebounceInterval)

	// a second run keeps the file
	out, err = execute(t, newTestRoot(newInitCmd()), "init", "--config", configPath, "--branch", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "already initialized")

	cfg, err = config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "dotfiles", cfg.Branch)

	// unless forced
	_, err = execute(t, newTestRoot(newInitCmd()), "init", "--config", configPath, "--branch", "other", "--force")
	require.NoError(t, err)
	cfg, err = config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Branch)
	// the file itself feeds the forced run
	assert.Equal(t, watchDir, cfg.WatchDir)
}

func TestInitCommand_RejectsInvalidIntervals(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, newTestRoot(newInitCmd()),
		"init", "--config", configPath, "--debounce", "10m", "--push-interval", "1m")
	require.ErrorIs(t, err, config.ErrInvalidInterval)
	assert.NoFileExists(t, configPath)
}
