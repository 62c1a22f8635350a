package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty watch dir", mutate: func(c *Config) { c.WatchDir = "" }, wantErr: ErrWatchDirRequired},
		{name: "empty remote", mutate: func(c *Config) { c.Remote = "" }, wantErr: ErrRemoteRequired},
		{name: "empty branch", mutate: func(c *Config) { c.Branch = "" }, wantErr: ErrBranchRequired},
		{name: "zero debounce", mutate: func(c *Config) { c.DebounceInterval = 0 }, wantErr: ErrInvalidInterval},
		{name: "negative push interval", mutate: func(c *Config) { c.PushInterval = -time.Second }, wantErr: ErrInvalidInterval},
		{
			name: "push shorter than debounce",
			mutate: func(c *Config) {
				c.DebounceInterval = time.Minute
				c.PushInterval = time.Second
			},
			wantErr: ErrInvalidInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_ResolvesPaths(t *testing.T) {
	cfg := Default()
	cfg.WatchDir = "~/.claude"
	cfg.StatePath = "./state.json"

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.WatchDir))
	assert.True(t, filepath.IsAbs(cfg.StatePath))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.WatchDir = "/tmp/watched"
	cfg.Branch = "sync"
	cfg.DebounceInterval = 10 * time.Second
	cfg.PushInterval = 2 * time.Minute
	require.NoError(t, cfg.Save(path))
	assert.Equal(t, path, cfg.Path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watch_dir: /tmp/other\ndebounce: 1m\n"), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other", loaded.WatchDir)
	assert.Equal(t, time.Minute, loaded.DebounceInterval)
	assert.Equal(t, DefaultRemote, loaded.Remote)
	assert.Equal(t, DefaultPushInterval, loaded.PushInterval)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
