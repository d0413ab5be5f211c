package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/varbatch/internal/logging"
)

func TestNewWriterLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWriterLogger(&buf, logging.Config{Level: "warn", Format: logging.FormatJSON})

	l.Info().Msg("dropped")
	l.Warn().Str("k", "v").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var event map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &event))
	assert.Equal(t, "kept", event["message"])
	assert.Equal(t, "v", event["k"])
	assert.Equal(t, "warn", event["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logging.ParseLevel("debug"))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel("bogus"))
}

func TestNewLoggerWithPath_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "varbatch.log")
	res := logging.NewLoggerWithPath(logging.Config{Output: logging.OutputFile, File: path})
	t.Cleanup(func() { _ = res.Close() })

	assert.True(t, res.UsingFile)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, path, res.FilePath)
	assert.FileExists(t, path)
}

func TestNewLoggerWithPath_FallbackWithoutFile(t *testing.T) {
	res := logging.NewLoggerWithPath(logging.Config{Output: logging.OutputFile})
	assert.False(t, res.UsingFile)
	assert.True(t, res.FallbackUsed)
	assert.NotEmpty(t, res.FallbackReason)
	assert.NoError(t, res.Close())
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, logging.TraceIDFromContext(ctx))

	id := logging.GetOrGenerateTraceID(ctx)
	_, err := ulid.Parse(id)
	require.NoError(t, err)

	ctx = logging.ContextWithTraceID(ctx, id)
	assert.Equal(t, id, logging.GetOrGenerateTraceID(ctx))
}

func TestTraceHook(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).Hook(logging.TraceHook{})
	ctx := logging.ContextWithTraceID(context.Background(), "trace-123")

	l.Info().Ctx(ctx).Msg("hello")
	assert.Contains(t, buf.String(), `"trace_id":"trace-123"`)
}

func TestFromContext_Fallback(t *testing.T) {
	l := logging.FromContext(context.Background())
	require.NotNil(t, l)
	l.Info().Msg("must not panic")
}

func TestNewID_Sorted(t *testing.T) {
	a := logging.NewID()
	b := logging.NewID()
	assert.Less(t, a, b)
}
