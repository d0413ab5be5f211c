// Package worker is the child side of a dispatch: it reads one request,
// annotates the records it carries and writes back exactly one result
// envelope.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rshade/varbatch/internal/annotate"
	"github.com/rshade/varbatch/internal/ipc"
	"github.com/rshade/varbatch/internal/logging"
	"github.com/rshade/varbatch/internal/workerhost"
)

// Exit codes of the worker process.
const (
	ExitOK = 0
	// ExitProtocolError means no request could be read or no result written.
	ExitProtocolError = 1
	// ExitInjectedCrash is used by the crash fault; no result is written.
	ExitInjectedCrash = 70
)

// DefaultLogLevel is the worker log level when the request names none.
const DefaultLogLevel = "warn"

// ErrInjectedCrash is returned by Serve when the crash fault fired. Nothing
// has been written to the result stream.
var ErrInjectedCrash = errors.New("injected worker crash")

// garbage is a frame whose payload is not valid msgpack.
var garbage = []byte{0xc1, 0xc1, 0xc1, 0xc1}

// Serve handles one request from in and writes its envelope to out.
//
// Annotation failures never make Serve fail: they are reported in the
// envelope's Fatal field. Serve returns an error only when the exchange
// itself breaks (unreadable request, unwritable result) or when the crash
// fault asks it to vanish.
func Serve(ctx context.Context, in io.Reader, out io.Writer, reg *annotate.Registry) error {
	var req ipc.Request
	if err := ipc.ReadOnlyFrame(in, &req); err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	if annotate.Contains(req.Records, req.Faults.CrashOnID) {
		return ErrInjectedCrash
	}
	if annotate.Contains(req.Records, req.Faults.GarbleOnID) {
		return writeGarbage(out)
	}

	env := handle(ctx, &req, reg)
	if err := ipc.WriteFrame(out, env); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

func handle(ctx context.Context, req *ipc.Request, reg *annotate.Registry) *ipc.ResultEnvelope {
	env := &ipc.ResultEnvelope{
		WorkerPID:       os.Getpid(),
		ProtocolVersion: ipc.ProtocolVersion,
		Seq:             req.Seq,
	}

	var diag bytes.Buffer
	level := req.LogLevel
	if level == "" {
		level = DefaultLogLevel
	}
	logger := logging.NewWriterLogger(&diag, logging.Config{Level: level, Format: logging.FormatJSON}).
		With().
		Str("component", "worker").
		Int("pid", env.WorkerPID).
		Int("seq", req.Seq).
		Str("dispatch_id", req.DispatchID).
		Logger()
	ctx = logger.WithContext(ctx)

	fail := func(err error) *ipc.ResultEnvelope {
		logger.Debug().Err(err).Msg("sub-chunk failed")
		env.Records = nil
		env.Fatal = annotate.FatalText(err)
		env.Diagnostic = diag.String()
		return env
	}

	if err := workerhost.CheckProtocol(req.ProtocolVersion); err != nil {
		return fail(err)
	}

	a, err := reg.New(req.Annotator, req.Options)
	if err != nil {
		return fail(err)
	}
	if r, ok := a.(annotate.Reopener); ok {
		if err := r.Reopen(); err != nil {
			return fail(fmt.Errorf("reopening annotator resources: %w", err))
		}
	}

	logger.Debug().
		Str("annotator", a.Name()).
		Int("records", len(req.Records)).
		Msg("annotating sub-chunk")

	if err := annotate.Run(ctx, a, req.Records, req.Faults, &diag); err != nil {
		return fail(err)
	}

	env.Records = req.Records
	env.Diagnostic = diag.String()
	return env
}

func writeGarbage(out io.Writer) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(garbage)))
	if _, err := out.Write(append(hdr[:], garbage...)); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

// Main runs the worker on its inherited descriptors and returns the process
// exit code.
func Main() int {
	log := logging.ComponentLogger(
		logging.NewWriterLogger(os.Stderr, logging.Config{Level: "error", Format: logging.FormatJSON}), "worker")

	ch, err := ipc.OpenChildChannel()
	if err != nil {
		log.Error().Err(err).Msg("worker channel unavailable")
		return ExitProtocolError
	}
	defer ch.Request.Close()

	err = Serve(context.Background(), ch.Request, ch.Result, annotate.Default())
	switch {
	case errors.Is(err, ErrInjectedCrash):
		// Leave the result pipe untouched; the kernel closes it on exit.
		return ExitInjectedCrash
	case err != nil:
		_ = ch.Result.Close()
		log.Error().Err(err).Msg("worker exchange failed")
		return ExitProtocolError
	}
	if err := ch.Result.Close(); err != nil {
		log.Error().Err(err).Msg("closing result pipe")
		return ExitProtocolError
	}
	return ExitOK
}
