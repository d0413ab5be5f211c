package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/varbatch/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 0, cfg.Dispatch.Fork)
	assert.Equal(t, 5000, cfg.Dispatch.BufferSize)
	assert.Equal(t, "variant_class", cfg.Annotation.Annotator)
	assert.Equal(t, "vcf", cfg.Output.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestNewReadsUserConfig(t *testing.T) {
	home := isolateConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"),
		[]byte("dispatch:\n  fork: 2\n  buffer_size: 300\n"), 0o600))

	cfg := config.New()

	assert.Equal(t, 2, cfg.Dispatch.Fork)
	assert.Equal(t, 300, cfg.Dispatch.BufferSize)
	assert.Equal(t, filepath.Join(home, "config.yaml"), cfg.Path())
}

func TestApplyEnvOverrides(t *testing.T) {
	isolateConfig(t)
	t.Setenv(config.EnvFork, "3")
	t.Setenv(config.EnvBufferSize, "not-a-number")
	t.Setenv(config.EnvWorkerTimeout, "45s")
	t.Setenv(config.EnvLogLevel, "warn")

	cfg := config.Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, 3, cfg.Dispatch.Fork)
	assert.Equal(t, config.DefaultBufferSize, cfg.Dispatch.BufferSize)
	assert.Equal(t, 45*time.Second, cfg.Dispatch.WorkerTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveAndLoad(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := config.Default()
	cfg.Dispatch.Fork = 4
	cfg.Dispatch.WorkerTimeout = 2 * time.Minute
	cfg.Dispatch.Faults.WarnOnID = "rs1"
	cfg.Annotation.Options = map[string]string{"key": "CLASS"}
	require.NoError(t, cfg.SaveTo(path))
	assert.Equal(t, path, cfg.Path())

	loaded := config.Default()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 4, loaded.Dispatch.Fork)
	assert.Equal(t, 2*time.Minute, loaded.Dispatch.WorkerTimeout)
	assert.Equal(t, "rs1", loaded.Dispatch.Faults.WarnOnID)
	assert.Equal(t, "CLASS", loaded.Annotation.Options["key"])
}

func TestSaveDefaultPath(t *testing.T) {
	home := isolateConfig(t)

	cfg := config.Default()
	require.NoError(t, cfg.Save())

	_, err := os.Stat(filepath.Join(home, "config.yaml"))
	require.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	cfg := config.Default()
	require.Error(t, cfg.Load(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dispatch: [\n"), 0o600))
	err := cfg.Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "negative fork", mutate: func(c *config.Config) { c.Dispatch.Fork = -1 }, wantErr: "dispatch.fork"},
		{name: "zero buffer", mutate: func(c *config.Config) { c.Dispatch.BufferSize = 0 }, wantErr: "dispatch.buffer_size"},
		{name: "negative min sub chunk", mutate: func(c *config.Config) { c.Dispatch.MinSubChunk = -5 }, wantErr: "dispatch.min_sub_chunk"},
		{name: "negative timeout", mutate: func(c *config.Config) { c.Dispatch.WorkerTimeout = -time.Second }, wantErr: "dispatch.worker_timeout"},
		{name: "bad worker log level", mutate: func(c *config.Config) { c.Dispatch.WorkerLogLevel = "loud" }, wantErr: "dispatch.worker_log_level"},
		{name: "unknown annotator", mutate: func(c *config.Config) { c.Annotation.Annotator = "vep" }, wantErr: "annotation.annotator"},
		{name: "bad format", mutate: func(c *config.Config) { c.Output.Format = "csv" }, wantErr: "output.format"},
		{name: "bad log level", mutate: func(c *config.Config) { c.Logging.Level = "chatty" }, wantErr: "logging.level"},
		{name: "bad log format", mutate: func(c *config.Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.Fork = -1
	cfg.Output.Format = "csv"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch.fork")
	assert.Contains(t, err.Error(), "output.format")
}
