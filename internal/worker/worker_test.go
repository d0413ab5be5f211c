package worker_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/varbatch/internal/annotate"
	"github.com/rshade/varbatch/internal/ipc"
	"github.com/rshade/varbatch/internal/record"
	"github.com/rshade/varbatch/internal/worker"
)

func testRecords() []record.Record {
	return []record.Record{
		{Index: 10, Chrom: "2", Pos: 5, ID: "rs10", Ref: "C", Alt: "T"},
		{Index: 11, Chrom: "2", Pos: 9, ID: "rs11", Ref: "C", Alt: "CA"},
	}
}

func encodeRequest(t *testing.T, req *ipc.Request) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ipc.WriteFrame(&buf, req))
	return &buf
}

func baseRequest() *ipc.Request {
	return &ipc.Request{
		ProtocolVersion: ipc.ProtocolVersion,
		Seq:             4,
		DispatchID:      "01TEST",
		Annotator:       annotate.VariantClassName,
		Records:         testRecords(),
	}
}

func withOptions(name string, opts map[string]string) func(*ipc.Request) {
	return func(r *ipc.Request) {
		r.Annotator = name
		r.Options = opts
	}
}

func serve(t *testing.T, req *ipc.Request, reg *annotate.Registry) *ipc.ResultEnvelope {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, worker.Serve(context.Background(), encodeRequest(t, req), &out, reg))
	var env ipc.ResultEnvelope
	require.NoError(t, ipc.ReadOnlyFrame(&out, &env))
	return &env
}

func TestServe_Success(t *testing.T) {
	env := serve(t, baseRequest(), annotate.Default())

	assert.Equal(t, os.Getpid(), env.WorkerPID)
	assert.Equal(t, ipc.ProtocolVersion, env.ProtocolVersion)
	assert.Equal(t, 4, env.Seq)
	assert.False(t, env.Failed())
	assert.Empty(t, env.Diagnostic)
	require.Len(t, env.Records, 2)

	classes := []string{}
	for _, r := range env.Records {
		v, _ := r.Get("VARIANT_CLASS")
		classes = append(classes, v)
	}
	assert.Equal(t, []string{"SNV", "insertion"}, classes)
	assert.Equal(t, int64(10), env.Records[0].Index)
}

func TestServe_Failures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ipc.Request)
		wantFatal string
	}{
		{
			name:      "injected fatal",
			mutate:    func(r *ipc.Request) { r.Faults.FatalOnID = "rs11" },
			wantFatal: "injected fatal fault",
		},
		{
			name:      "injected panic",
			mutate:    func(r *ipc.Request) { r.Faults.PanicOnID = "rs10" },
			wantFatal: "panicked",
		},
		{
			name:      "unknown annotator",
			mutate:    func(r *ipc.Request) { r.Annotator = "vep" },
			wantFatal: "unknown annotator",
		},
		{
			name:      "bad options",
			mutate:    withOptions(annotate.AlleleStatsName, map[string]string{"precision": "-1"}),
			wantFatal: "precision",
		},
		{
			name:      "protocol mismatch",
			mutate:    func(r *ipc.Request) { r.ProtocolVersion = "9.0.0" },
			wantFatal: "protocol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(req)
			env := serve(t, req, annotate.Default())
			assert.True(t, env.Failed())
			assert.Contains(t, env.Fatal, tt.wantFatal)
			assert.Nil(t, env.Records)
			assert.Equal(t, 4, env.Seq)
		})
	}
}

func TestServe_Diagnostics(t *testing.T) {
	t.Run("injected warning", func(t *testing.T) {
		req := baseRequest()
		req.Faults.WarnOnID = "rs11"
		env := serve(t, req, annotate.Default())
		assert.False(t, env.Failed())
		assert.Contains(t, env.Diagnostic, "injected warning at record rs11")
		assert.Len(t, env.Records, 2)
	})

	t.Run("debug logging is captured", func(t *testing.T) {
		req := baseRequest()
		req.LogLevel = "debug"
		env := serve(t, req, annotate.Default())
		assert.Contains(t, env.Diagnostic, "annotating sub-chunk")
		assert.Contains(t, env.Diagnostic, `"component":"worker"`)
	})
}

func TestServe_CrashAndGarble(t *testing.T) {
	t.Run("crash writes nothing", func(t *testing.T) {
		req := baseRequest()
		req.Faults.CrashOnID = "rs10"
		var out bytes.Buffer
		err := worker.Serve(context.Background(), encodeRequest(t, req), &out, annotate.Default())
		assert.ErrorIs(t, err, worker.ErrInjectedCrash)
		assert.Zero(t, out.Len())
	})

	t.Run("garble writes an undecodable frame", func(t *testing.T) {
		req := baseRequest()
		req.Faults.GarbleOnID = "rs11"
		var out bytes.Buffer
		require.NoError(t, worker.Serve(context.Background(), encodeRequest(t, req), &out, annotate.Default()))
		var env ipc.ResultEnvelope
		assert.ErrorIs(t, ipc.ReadOnlyFrame(&out, &env), ipc.ErrDecode)
	})

	t.Run("fault for a record in another sub-chunk is ignored", func(t *testing.T) {
		req := baseRequest()
		req.Faults.CrashOnID = "rs999"
		env := serve(t, req, annotate.Default())
		assert.False(t, env.Failed())
	})
}

func TestServe_EmptyRequest(t *testing.T) {
	err := worker.Serve(context.Background(), bytes.NewReader(nil), io.Discard, annotate.Default())
	assert.ErrorIs(t, err, ipc.ErrNoMessage)
}

type reopening struct {
	reopened bool
	err      error
}

func (r *reopening) Name() string { return "reopening" }

func (r *reopening) Reopen() error {
	r.reopened = true
	return r.err
}

func (r *reopening) Annotate(_ context.Context, recs []record.Record, _ io.Writer) error {
	if !r.reopened {
		return errors.New("annotated before reopen")
	}
	for i := range recs {
		recs[i].Set("REOPENED", "1")
	}
	return nil
}

func TestServe_ReopensResources(t *testing.T) {
	t.Run("reopen before work", func(t *testing.T) {
		reg := annotate.NewRegistry()
		reg.MustRegister("reopening", "", func(map[string]string) (annotate.Annotator, error) {
			return &reopening{}, nil
		})
		req := baseRequest()
		req.Annotator = "reopening"
		env := serve(t, req, reg)
		require.False(t, env.Failed(), env.Fatal)
		v, ok := env.Records[1].Get("REOPENED")
		assert.True(t, ok)
		assert.Equal(t, "1", v)
	})

	t.Run("built-in label table loaded on reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.yaml")
		require.NoError(t, os.WriteFile(path, []byte("SNV: SNP\ninsertion: ins\n"), 0o600))
		req := baseRequest()
		req.Options = map[string]string{"labels": path}
		env := serve(t, req, annotate.Default())
		require.False(t, env.Failed(), env.Fatal)
		v, _ := env.Records[0].Get("VARIANT_CLASS")
		assert.Equal(t, "SNP", v)
		v, _ = env.Records[1].Get("VARIANT_CLASS")
		assert.Equal(t, "ins", v)
	})

	t.Run("missing label table is fatal", func(t *testing.T) {
		req := baseRequest()
		req.Options = map[string]string{"labels": filepath.Join(t.TempDir(), "missing.yaml")}
		env := serve(t, req, annotate.Default())
		assert.Contains(t, env.Fatal, "reopening annotator resources")
	})

	t.Run("reopen failure is fatal", func(t *testing.T) {
		reg := annotate.NewRegistry()
		reg.MustRegister("reopening", "", func(map[string]string) (annotate.Annotator, error) {
			return &reopening{err: errors.New("cache locked")}, nil
		})
		req := baseRequest()
		req.Annotator = "reopening"
		env := serve(t, req, reg)
		assert.Contains(t, env.Fatal, "cache locked")
	})
}
