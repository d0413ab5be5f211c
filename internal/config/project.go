package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rshade/varbatch/internal/logging"
)

const projectDirName = ".varbatch"

// ResolveProjectDir determines the project-local .varbatch directory path.
// It checks (in order):
//  1. flagValue (--project-dir CLI flag)
//  2. VARBATCH_PROJECT_DIR env var
//  3. the nearest ancestor of startDir holding .varbatch/config.yaml
//
// Returns an absolute path or the empty string if no project was found.
// Does NOT create the directory.
func ResolveProjectDir(ctx context.Context, flagValue, startDir string) string {
	if flagValue != "" {
		return toAbsProjectDir(ctx, flagValue)
	}

	if envDir := os.Getenv(EnvProjectDir); envDir != "" {
		return toAbsProjectDir(ctx, envDir)
	}

	if startDir == "" {
		return ""
	}
	dir := toAbsProjectDir(ctx, startDir)
	globalDir, _ := GetConfigDir()
	for {
		if dir != globalDir {
			if _, err := os.Stat(filepath.Join(dir, configFileName)); err == nil {
				return dir
			}
		}
		root := filepath.Dir(dir)
		parent := filepath.Dir(root)
		if parent == root {
			return ""
		}
		dir = filepath.Join(parent, projectDirName)
	}
}

// NewWithProjectDir creates a Config by loading global config then
// shallow-merging project-local config on top. If projectDir is empty,
// behaves identically to New().
func NewWithProjectDir(ctx context.Context, projectDir string) *Config {
	if projectDir == "" {
		return New()
	}

	overlayPath := filepath.Join(projectDir, configFileName)
	if _, err := os.Stat(overlayPath); err != nil {
		// Missing project config is not an error; use global defaults.
		return New()
	}

	cfg := newFromFile()
	if err := ShallowMergeYAML(cfg, overlayPath); err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().
			Str("component", "config").
			Str("operation", "merge_project_config").
			Err(err).
			Str("overlay_path", overlayPath).
			Msg("failed to merge project config, using global defaults")
		return New()
	}

	cfg.ApplyEnvOverrides()
	return cfg
}

// toAbsProjectDir converts dir to an absolute path and appends ".varbatch"
// unless it already ends with it.
func toAbsProjectDir(ctx context.Context, dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().
			Str("component", "config").
			Err(err).
			Str("dir", dir).
			Msg("failed to resolve absolute path for project directory")
		abs = dir
	}

	if filepath.Base(abs) == projectDirName {
		return abs
	}

	return filepath.Join(abs, projectDirName)
}
