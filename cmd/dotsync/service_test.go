package main

import (
	"path/filepath"
	"testing"

	"github.com/openmined/dotsync/internal/config"
	"github.com/openmined/dotsync/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceDefinition(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	cfg := config.Default()
	cfg.WatchDir = "/home/u/.claude"
	cfg.Path = "/home/u/.dotsync/config.yaml"

	def, err := serviceDefinition(cfg)
	require.NoError(t, err)

	assert.Equal(t, service.DefaultLabel, def.Label)
	assert.True(t, filepath.IsAbs(def.Executable))
	assert.Equal(t, []string{"start", "--config", "/home/u/.dotsync/config.yaml"}, def.Args)
	assert.Equal(t, "/home/u/.claude/sync.log", def.StdoutPath)
	assert.Equal(t, "/home/u/.claude/sync.error.log", def.StderrPath)
	assert.Equal(t, "/usr/bin:/bin", def.Env["PATH"])
}
