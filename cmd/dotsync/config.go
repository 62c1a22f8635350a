package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/openmined/dotsync/internal/config"
	"github.com/openmined/dotsync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// config key -> flag name
var flagKeys = map[string]string{
	"watch_dir":     "watch-dir",
	"remote":        "remote",
	"branch":        "branch",
	"debounce":      "debounce",
	"push_interval": "push-interval",
}

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) DOTSYNC_CONFIG_PATH environment variable
// 3) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(config.EnvConfigPath); envPath != "" {
		return envPath
	}

	return config.DefaultConfigPath
}

// loadEnvFile exports the variables of an optional dotenv file without
// overriding anything already set in the environment.
func loadEnvFile(path string) {
	if !utils.FileExists(path) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("env file unreadable", "path", path, "error", err)
	}
}

// loadConfig merges defaults, the config file, DOTSYNC_* environment
// variables and command line flags, in increasing order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loadEnvFile(config.DefaultEnvFilePath)

	v := viper.New()
	def := config.Default()
	v.SetDefault("watch_dir", def.WatchDir)
	v.SetDefault("remote", def.Remote)
	v.SetDefault("branch", def.Branch)
	v.SetDefault("debounce", def.DebounceInterval)
	v.SetDefault("push_interval", def.PushInterval)
	v.SetDefault("push_failure_alert", def.PushFailureAlert)
	v.SetDefault("managed_subtree", def.ManagedSubtree)
	v.SetDefault("state_path", def.StatePath)
	v.SetDefault("journal_path", def.JournalPath)
	v.SetDefault("log_file", def.LogFilePath)

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	// Bind flags to viper
	for key, name := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	// Set up environment variables
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	return &config.Config{
		WatchDir:         v.GetString("watch_dir"),
		Remote:           v.GetString("remote"),
		Branch:           v.GetString("branch"),
		DebounceInterval: v.GetDuration("debounce"),
		PushInterval:     v.GetDuration("push_interval"),
		PushFailureAlert: v.GetInt("push_failure_alert"),
		ManagedSubtree:   v.GetString("managed_subtree"),
		StatePath:        v.GetString("state_path"),
		JournalPath:      v.GetString("journal_path"),
		LogFilePath:      v.GetString("log_file"),
		Path:             configPath,
	}, nil
}
