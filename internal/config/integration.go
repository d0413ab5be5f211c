package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GlobalConfig holds the global configuration instance.
var GlobalConfig *Config        //nolint:gochecknoglobals // Singleton pattern for configuration
var globalConfigMu sync.RWMutex //nolint:gochecknoglobals // Protects globalConfigInit flag
var globalConfigInit bool       //nolint:gochecknoglobals // Tracks if global config has been initialized

// InitGlobalConfig initializes the global configuration.
func InitGlobalConfig() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	if globalConfigInit {
		return
	}

	GlobalConfig = New()
	globalConfigInit = true
}

// InitGlobalConfigWithProject initializes the global configuration with the
// project overlay in projectDir merged on top. It replaces any previously
// initialized configuration.
func InitGlobalConfigWithProject(ctx context.Context, projectDir string) {
	cfg := NewWithProjectDir(ctx, projectDir)

	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	GlobalConfig = cfg
	globalConfigInit = true
}

// SetGlobalConfig replaces the global configuration, e.g. after loading an
// explicit --config file.
func SetGlobalConfig(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	GlobalConfig = cfg
	globalConfigInit = true
}

// ResetGlobalConfigForTest resets the global config for testing purposes.
func ResetGlobalConfigForTest() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	GlobalConfig = nil
	globalConfigInit = false
}

// GetGlobalConfig returns the global configuration, initializing it if needed.
func GetGlobalConfig() *Config {
	InitGlobalConfig()
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return GlobalConfig
}

// GetFork returns the configured number of worker processes.
func GetFork() int {
	return GetGlobalConfig().Dispatch.Fork
}

// GetBufferSize returns the configured chunk size.
func GetBufferSize() int {
	return GetGlobalConfig().Dispatch.BufferSize
}

// GetOutputFormat returns the configured output format.
func GetOutputFormat() string {
	return GetGlobalConfig().Output.Format
}

// GetLogLevel returns the configured log level.
func GetLogLevel() string {
	return GetGlobalConfig().Logging.Level
}

// GetLogFile returns the configured log file path.
func GetLogFile() string {
	return GetGlobalConfig().Logging.File
}

// EnsureConfigDir ensures the varbatch configuration directory exists.
func EnsureConfigDir() error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// EnsureLogDir ensures the directory for the configured log file exists. It
// does nothing when no log file is configured.
func EnsureLogDir() error {
	cfg := GetGlobalConfig()
	if cfg.Logging.File == "" {
		return nil
	}
	logDir := filepath.Dir(cfg.Logging.File)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}
	return nil
}

// GetConfigDir returns the varbatch configuration directory: $VARBATCH_HOME
// if set, otherwise ~/.varbatch.
func GetConfigDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".varbatch"), nil
}

// GetConfigPath returns the path of the user config file.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}
