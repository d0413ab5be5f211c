package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/varbatch/internal/config"
)

// newDefaultTarget returns a Config with known non-default values so tests
// can tell replaced sections from untouched ones.
func newDefaultTarget() *config.Config {
	cfg := config.Default()
	cfg.Dispatch.Fork = 8
	cfg.Dispatch.BufferSize = 2000
	cfg.Annotation.Annotator = "allele_stats"
	cfg.Annotation.Options = map[string]string{"precision": "2"}
	cfg.Output.Format = config.FormatNDJSON
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	return cfg
}

// writeOverlay writes YAML content to a temp file and returns its path.
func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestShallowMergeYAML_SingleKeyOverride(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, `
dispatch:
  fork: 2
  buffer_size: 100
`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))

	assert.Equal(t, 2, target.Dispatch.Fork)
	assert.Equal(t, 100, target.Dispatch.BufferSize)

	assert.Equal(t, "allele_stats", target.Annotation.Annotator)
	assert.Equal(t, config.FormatNDJSON, target.Output.Format)
	assert.Equal(t, "debug", target.Logging.Level)
}

func TestShallowMergeYAML_SectionReplacedNotDeepMerged(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, `
logging:
  level: warn
annotation:
  annotator: identity
`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))

	assert.Equal(t, "warn", target.Logging.Level)
	// Omitted fields come from built-in defaults, not from the target.
	assert.Equal(t, config.DefaultLogFormat, target.Logging.Format)
	assert.Equal(t, "identity", target.Annotation.Annotator)
	assert.Nil(t, target.Annotation.Options)
	assert.Equal(t, 8, target.Dispatch.Fork)
}

func TestShallowMergeYAML_DurationAndFaults(t *testing.T) {
	target := newDefaultTarget()
	overlay := writeOverlay(t, `
dispatch:
  fork: 4
  worker_timeout: 1m30s
  faults:
    fatal_on_id: rs199
    crash_on_id: rs100
`)

	require.NoError(t, config.ShallowMergeYAML(target, overlay))

	assert.Equal(t, 4, target.Dispatch.Fork)
	assert.Equal(t, "1m30s", target.Dispatch.WorkerTimeout.String())
	assert.Equal(t, "rs199", target.Dispatch.Faults.FatalOnID)
	assert.Equal(t, "rs100", target.Dispatch.Faults.CrashOnID)
	assert.Equal(t, config.DefaultBufferSize, target.Dispatch.BufferSize)
}

func TestShallowMergeYAML_EmptyAndUnknownKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty file", content: ""},
		{name: "comments only", content: "# nothing here\n"},
		{name: "unknown key", content: "plugins:\n  foo: bar\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newDefaultTarget()
			require.NoError(t, config.ShallowMergeYAML(target, writeOverlay(t, tt.content)))
			assert.Equal(t, newDefaultTarget(), target)
		})
	}
}

func TestShallowMergeYAML_Errors(t *testing.T) {
	t.Run("nil target", func(t *testing.T) {
		err := config.ShallowMergeYAML(nil, writeOverlay(t, "dispatch:\n  fork: 1\n"))
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		err := config.ShallowMergeYAML(newDefaultTarget(), filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading overlay file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		err := config.ShallowMergeYAML(newDefaultTarget(), writeOverlay(t, "dispatch: [unclosed\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing overlay YAML")
	})

	t.Run("wrong section type", func(t *testing.T) {
		err := config.ShallowMergeYAML(newDefaultTarget(), writeOverlay(t, "dispatch:\n  fork: many\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `applying overlay section "dispatch"`)
	})
}
