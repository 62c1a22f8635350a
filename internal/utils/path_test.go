package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{
			name:      "empty path",
			input:     "",
			wantError: true,
		},
		{
			name:      "relative path",
			input:     "./test",
			wantError: false,
		},
		{
			name:      "absolute path",
			input:     "/tmp/test",
			wantError: false,
		},
		{
			name:      "home path",
			input:     "~/.claude",
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ResolvePath(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if !tt.wantError && !filepath.IsAbs(result) {
				t.Errorf("ResolvePath(%q) = %q, want absolute path", tt.input, result)
			}
		})
	}
}

func TestResolvePath_ExpandsHomeAndEnv(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ResolvePath("~/.claude")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".claude"), got)

	got, err = ResolvePath("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(home), got)

	t.Setenv("DOTSYNC_TEST_DIR", "/tmp/dotsync-test")
	got, err = ResolvePath("$DOTSYNC_TEST_DIR/state.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/dotsync-test", "state.json"), got)
}

func TestResolvePath_Empty(t *testing.T) {
	_, err := ResolvePath("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, EnsureDir(file))
	assert.True(t, FileExists(file))
	assert.False(t, DirExists(file))
}

func TestRelPath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "home", "u", ".claude")

	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{name: "root itself", path: root, want: ".", wantOK: true},
		{name: "nested file", path: filepath.Join(root, "commands", "a.md"), want: "commands/a.md", wantOK: true},
		{name: "sibling dir", path: filepath.Join(filepath.Dir(root), ".claude-other", "x"), wantOK: false},
		{name: "parent", path: filepath.Dir(root), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RelPath(root, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	// no temp files should be left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
