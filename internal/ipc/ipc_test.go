package ipc_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/varbatch/internal/ipc"
	"github.com/rshade/varbatch/internal/record"
)

func sampleEnvelope() *ipc.ResultEnvelope {
	rec := record.Record{Index: 7, Chrom: "1", Pos: 100, ID: "rs1", Ref: "A", Alt: "G", Raw: "raw"}
	rec.Set("VARIANT_CLASS", "SNV")
	return &ipc.ResultEnvelope{
		WorkerPID:       4242,
		ProtocolVersion: ipc.ProtocolVersion,
		Seq:             3,
		Records:         []record.Record{rec},
		Diagnostic:      "careful",
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := sampleEnvelope()
	require.NoError(t, ipc.WriteFrame(&buf, want))

	var got ipc.ResultEnvelope
	require.NoError(t, ipc.ReadOnlyFrame(&buf, &got))
	assert.Equal(t, *want, got)
	assert.False(t, got.Failed())
}

func TestReadFrame_Errors(t *testing.T) {
	var valid bytes.Buffer
	require.NoError(t, ipc.WriteFrame(&valid, sampleEnvelope()))
	full := valid.Bytes()

	oversized := make([]byte, 4)
	binary.BigEndian.PutUint32(oversized, ipc.MaxFrameSize+1)

	garbage := make([]byte, 4, 7)
	binary.BigEndian.PutUint32(garbage, 3)
	garbage = append(garbage, 0xc1, 0xc1, 0xc1)

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "empty stream", input: nil, wantErr: ipc.ErrNoMessage},
		{name: "partial header", input: full[:2], wantErr: ipc.ErrTruncated},
		{name: "partial payload", input: full[:len(full)-1], wantErr: ipc.ErrTruncated},
		{name: "oversized", input: oversized, wantErr: ipc.ErrFrameTooLarge},
		{name: "undecodable", input: garbage, wantErr: ipc.ErrDecode},
		{name: "trailing bytes", input: append(append([]byte(nil), full...), 'x'), wantErr: ipc.ErrTrailingData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env ipc.ResultEnvelope
			err := ipc.ReadOnlyFrame(bytes.NewReader(tt.input), &env)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChannel_SendReceiveOverPipes(t *testing.T) {
	ch, err := ipc.OpenChannel()
	require.NoError(t, err)
	t.Cleanup(ch.Close)

	files := ch.ChildFiles()
	require.Len(t, files, 2)
	childReq, childRes := files[0], files[1]

	req := &ipc.Request{
		ProtocolVersion: ipc.ProtocolVersion,
		Seq:             1,
		Annotator:       "identity",
		Faults:          ipc.Faults{WarnOnID: "rs1"},
		Records:         []record.Record{{Index: 0, ID: "rs1"}},
	}

	// Play the worker: read the request, answer, close.
	done := make(chan error, 1)
	go func() {
		var got ipc.Request
		if err := ipc.ReadOnlyFrame(childReq, &got); err != nil {
			done <- err
			return
		}
		env := &ipc.ResultEnvelope{WorkerPID: 1, ProtocolVersion: got.ProtocolVersion, Seq: got.Seq, Records: got.Records}
		err := ipc.WriteFrame(childRes, env)
		_ = childRes.Close()
		_ = childReq.Close()
		done <- err
	}()

	require.NoError(t, ch.Send(req))
	assert.Error(t, ch.Send(req), "a channel carries one request")

	env, err := ch.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, 1, env.Seq)
	require.Len(t, env.Records, 1)
	assert.Equal(t, "rs1", env.Records[0].ID)
}

func TestChannel_ReceiveAfterSilentClose(t *testing.T) {
	ch, err := ipc.OpenChannel()
	require.NoError(t, err)
	t.Cleanup(ch.Close)

	files := ch.ChildFiles()
	_ = files[1].Close()
	_ = files[0].Close()

	_, err = ch.Receive()
	assert.ErrorIs(t, err, ipc.ErrNoMessage)
}

func TestFaults_IsZero(t *testing.T) {
	assert.True(t, ipc.Faults{}.IsZero())
	assert.False(t, ipc.Faults{CrashOnID: "x"}.IsZero())
}
