// Package config holds the dotsync daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openmined/dotsync/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "DOTSYNC_CONFIG_PATH"
	EnvPrefix     = "DOTSYNC"

	DefaultRemote           = "origin"
	DefaultBranch           = "main"
	DefaultDebounceInterval = 30 * time.Second
	DefaultPushInterval     = 5 * time.Minute
	DefaultPushFailureAlert = 6
	DefaultManagedSubtree   = "plugins/claude-codex"
)

var (
	home, _            = os.UserHomeDir()
	DefaultHomeDir     = filepath.Join(home, ".dotsync")
	DefaultConfigPath  = filepath.Join(DefaultHomeDir, "config.yaml")
	DefaultEnvFilePath = filepath.Join(DefaultHomeDir, "dotsync.env")
	DefaultStatePath   = filepath.Join(DefaultHomeDir, "sync-state.json")
	DefaultJournalPath = filepath.Join(DefaultHomeDir, "journal.db")
	DefaultLogFilePath = filepath.Join(DefaultHomeDir, "logs", "dotsync.log")
	DefaultWatchDir    = filepath.Join(home, ".claude")
)

var (
	ErrWatchDirRequired = errors.New("watch_dir is required")
	ErrRemoteRequired   = errors.New("remote is required")
	ErrBranchRequired   = errors.New("branch is required")
	ErrInvalidInterval  = errors.New("invalid interval")
)

type Config struct {
	// WatchDir is the git work tree that is watched, committed and pushed
	WatchDir string `yaml:"watch_dir"`
	Remote   string `yaml:"remote"`
	Branch   string `yaml:"branch"`

	// DebounceInterval is the quiet period after the last change before a commit
	DebounceInterval time.Duration `yaml:"debounce"`
	// PushInterval is the minimum spacing between push attempts
	PushInterval time.Duration `yaml:"push_interval"`
	// PushFailureAlert escalates to an error log after this many consecutive
	// failed push cycles. 0 disables the alert.
	PushFailureAlert int `yaml:"push_failure_alert"`

	// ManagedSubtree is a path relative to WatchDir that the daemon never
	// reacts to, typically where dotsync itself is installed.
	ManagedSubtree string `yaml:"managed_subtree"`

	StatePath   string `yaml:"state_path"`
	JournalPath string `yaml:"journal_path"`
	LogFilePath string `yaml:"log_file"`

	Path string `yaml:"-"`
}

// Default returns a configuration populated with the defaults.
func Default() *Config {
	return &Config{
		WatchDir:         DefaultWatchDir,
		Remote:           DefaultRemote,
		Branch:           DefaultBranch,
		DebounceInterval: DefaultDebounceInterval,
		PushInterval:     DefaultPushInterval,
		PushFailureAlert: DefaultPushFailureAlert,
		ManagedSubtree:   DefaultManagedSubtree,
		StatePath:        DefaultStatePath,
		JournalPath:      DefaultJournalPath,
		LogFilePath:      DefaultLogFilePath,
		Path:             DefaultConfigPath,
	}
}

// Validate checks the configuration and resolves every path to an absolute one.
func (c *Config) Validate() error {
	if c.WatchDir == "" {
		return ErrWatchDirRequired
	}
	if c.Remote == "" {
		return ErrRemoteRequired
	}
	if c.Branch == "" {
		return ErrBranchRequired
	}
	if c.DebounceInterval <= 0 {
		return fmt.Errorf("%w: debounce must be > 0 (got %s)", ErrInvalidInterval, c.DebounceInterval)
	}
	if c.PushInterval <= 0 {
		return fmt.Errorf("%w: push_interval must be > 0 (got %s)", ErrInvalidInterval, c.PushInterval)
	}
	if c.PushInterval < c.DebounceInterval {
		return fmt.Errorf("%w: push_interval (%s) must not be shorter than debounce (%s)", ErrInvalidInterval, c.PushInterval, c.DebounceInterval)
	}
	if c.PushFailureAlert < 0 {
		return fmt.Errorf("push_failure_alert cannot be negative (got %d)", c.PushFailureAlert)
	}

	paths := []*string{&c.WatchDir, &c.StatePath, &c.JournalPath, &c.LogFilePath}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		resolved, err := utils.ResolvePath(*p)
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", *p, err)
		}
		*p = resolved
	}

	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath
	}

	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.Path = path
	return nil
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}
