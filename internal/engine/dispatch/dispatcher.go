// Package dispatch runs an annotator over a chunk of records in parallel
// worker processes and returns the annotated records in input order.
//
// A Dispatch call slices the chunk from the front into sub-chunks, starts
// one worker per sub-chunk while at most parallelism+1 workers are alive,
// and collects each worker's single result envelope. Results are
// concatenated by spawn sequence number, so the output order never depends
// on which worker finished first. Any worker failure aborts the whole
// dispatch: every remaining worker is killed and every process is reaped
// before Dispatch returns.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/varbatch/internal/annotate"
	"github.com/rshade/varbatch/internal/engine/batch"
	"github.com/rshade/varbatch/internal/ipc"
	"github.com/rshade/varbatch/internal/logging"
	"github.com/rshade/varbatch/internal/record"
	"github.com/rshade/varbatch/internal/workerhost"
)

const tracerName = "github.com/rshade/varbatch/internal/engine/dispatch"

var errNoWorkerPID = errors.New("result envelope carries no worker pid")

// Config controls a Dispatcher.
type Config struct {
	// Parallelism is the target number of concurrent workers. Zero selects
	// the in-process sequential path.
	Parallelism int
	// BufferSize is the chunk size the caller reads; it bounds sub-chunks
	// to BufferSize/(2*Parallelism).
	BufferSize int
	// MinSubChunk overrides batch.MinSubChunkSize when positive.
	MinSubChunk int

	Annotator string
	Options   map[string]string
	Faults    ipc.Faults

	// WorkerTimeout aborts the dispatch when a single worker runs longer.
	// Zero waits forever.
	WorkerTimeout time.Duration
	// Sequential forces the in-process path regardless of Parallelism.
	Sequential bool
	// WorkerLogLevel is the level workers log into their diagnostics.
	WorkerLogLevel string
}

// Warning is a non-fatal diagnostic reported by a worker.
type Warning struct {
	PID  int
	Seq  int
	Text string
}

// WarningHandler receives worker diagnostics in completion order.
type WarningHandler func(Warning)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWarningHandler sets the receiver of worker diagnostics.
func WithWarningHandler(h WarningHandler) Option {
	return func(d *Dispatcher) { d.onWarning = h }
}

// WithLauncher sets how workers are started. The default re-executes the
// running binary.
func WithLauncher(l *workerhost.Launcher) Option {
	return func(d *Dispatcher) { d.launcher = l }
}

// WithRegistry sets the registry used to validate the annotator name and to
// build it on the sequential path.
func WithRegistry(r *annotate.Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// Dispatcher runs chunks through worker processes.
type Dispatcher struct {
	cfg       Config
	splitter  batch.Splitter
	launcher  *workerhost.Launcher
	registry  *annotate.Registry
	onWarning WarningHandler

	mu    sync.Mutex
	stats Stats
}

// New validates cfg and returns a Dispatcher.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:      cfg,
		splitter: batch.Splitter{MinSubChunk: cfg.MinSubChunk},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = annotate.Default()
	}

	switch {
	case cfg.Parallelism < 0:
		return nil, fmt.Errorf("%w: parallelism must be >= 0, got %d", ErrInvalidConfig, cfg.Parallelism)
	case cfg.BufferSize < 1:
		return nil, fmt.Errorf("%w: buffer size must be >= 1, got %d", ErrInvalidConfig, cfg.BufferSize)
	case cfg.WorkerTimeout < 0:
		return nil, fmt.Errorf("%w: worker timeout must be >= 0", ErrInvalidConfig)
	case !d.registry.Has(cfg.Annotator):
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidConfig, annotate.ErrUnknownAnnotator, cfg.Annotator)
	}

	if d.Parallel() {
		if err := workerhost.CheckPlatform(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if d.Parallel() && d.launcher == nil {
		cmd, err := workerhost.SelfCommand("")
		if err != nil {
			return nil, err
		}
		d.launcher = workerhost.NewLauncher(cmd)
	}
	return d, nil
}

// Parallel reports whether chunks are dispatched to worker processes.
func (d *Dispatcher) Parallel() bool {
	return !d.cfg.Sequential && d.cfg.Parallelism > 0
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.clone()
}

// Dispatch annotates chunk and returns the annotated records in input order.
// The chunk is owned by the dispatcher for the duration of the call. On
// failure no records are returned; worker failures are reported as *Error and
// cancellation as the context's error.
func (d *Dispatcher) Dispatch(ctx context.Context, chunk []record.Record) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "varbatch.dispatch",
		trace.WithAttributes(
			attribute.Int("dispatch.records", len(chunk)),
			attribute.Int("dispatch.parallelism", d.cfg.Parallelism),
			attribute.Int("dispatch.buffer_size", d.cfg.BufferSize),
			attribute.Bool("dispatch.sequential", !d.Parallel()),
			attribute.String("dispatch.annotator", d.cfg.Annotator),
		))
	defer span.End()

	var (
		out []record.Record
		err error
	)
	if d.Parallel() {
		out, err = d.dispatchParallel(ctx, chunk)
	} else {
		out, err = d.dispatchSequential(ctx, chunk)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

type dispatchState int

const (
	stateFilling dispatchState = iota
	stateDraining
)

type handle struct {
	seq     int
	size    int
	proc    *workerhost.Process
	timeout atomic.Bool
}

type completion struct {
	h       *handle
	env     *ipc.ResultEnvelope
	err     error
	waitErr error
}

// run holds the mutable state of one parallel dispatch.
type run struct {
	d          *Dispatcher
	dispatchID string
	group      errgroup.Group
	done       chan completion
	live       map[int]*handle
	results    [][]record.Record
	sizes      []int
	pids       []int
}

func (d *Dispatcher) dispatchParallel(ctx context.Context, chunk []record.Record) ([]record.Record, error) {
	p := d.cfg.Parallelism
	r := &run{
		d:          d,
		dispatchID: logging.NewID(),
		// A worker goroutine never blocks on delivery: at most p+1 are live.
		done: make(chan completion, p+1),
		live: make(map[int]*handle, p+1),
	}
	log := logging.FromContext(ctx).With().
		Str("component", "dispatch").
		Str("dispatch_id", r.dispatchID).
		Logger()
	ctx = log.WithContext(ctx)

	log.Debug().
		Str("operation", "dispatch").
		Int("records", len(chunk)).
		Int("parallelism", p).
		Msg("dispatch started")

	d.mu.Lock()
	d.stats.Dispatches++
	d.mu.Unlock()

	remaining := chunk
	state := stateFilling
	for {
		switch state {
		case stateFilling:
			for len(remaining) > 0 && len(r.live) <= p {
				size := d.splitter.Next(len(remaining), p, len(r.live), d.cfg.BufferSize)
				size = min(size, len(remaining))
				sub := remaining[:size:size]
				remaining = remaining[size:]

				if err := r.spawn(ctx, sub); err != nil {
					return nil, r.abort(ctx, err)
				}
			}
			state = stateDraining

		case stateDraining:
			if len(r.live) == 0 {
				r.finish()
				out := make([]record.Record, 0, len(chunk))
				for _, recs := range r.results {
					out = append(out, recs...)
				}
				log.Debug().
					Str("operation", "dispatch").
					Int("workers", len(r.results)).
					Msg("dispatch complete")
				return out, nil
			}

			select {
			case c := <-r.done:
				delete(r.live, c.h.seq)
				if err := r.complete(ctx, c); err != nil {
					return nil, r.abort(ctx, err)
				}
			case <-ctx.Done():
				return nil, r.abort(ctx, ctx.Err())
			}

			if len(remaining) > 0 && len(r.live) < p {
				state = stateFilling
			}
		}
	}
}

// spawn starts a worker that owns sub. The worker's goroutine sends the
// request, reads the envelope, reaps the process and reports on r.done.
func (r *run) spawn(ctx context.Context, sub []record.Record) error {
	d := r.d
	seq := len(r.results)
	log := logging.FromContext(ctx)

	ch, err := ipc.OpenChannel()
	if err != nil {
		return &Error{Kind: ErrSpawnFailed, Seq: seq, ExitCode: -1, Err: err}
	}
	proc, err := d.launcher.Start(ctx, ch.ChildFiles())
	if err != nil {
		ch.Close()
		return &Error{Kind: ErrSpawnFailed, Seq: seq, ExitCode: -1, Err: err}
	}
	ch.ReleaseChildEnds()

	h := &handle{seq: seq, size: len(sub), proc: proc}
	req := &ipc.Request{
		ProtocolVersion: ipc.ProtocolVersion,
		Seq:             seq,
		DispatchID:      r.dispatchID,
		Annotator:       d.cfg.Annotator,
		Options:         d.cfg.Options,
		Faults:          d.cfg.Faults,
		LogLevel:        d.cfg.WorkerLogLevel,
		Records:         sub,
	}

	r.live[seq] = h
	r.results = append(r.results, nil)
	r.sizes = append(r.sizes, len(sub))
	r.pids = append(r.pids, proc.PID)

	d.mu.Lock()
	d.stats.Spawned++
	d.stats.MaxLive = max(d.stats.MaxLive, len(r.live))
	d.mu.Unlock()

	trace.SpanFromContext(ctx).AddEvent("worker.spawned", trace.WithAttributes(
		attribute.Int("worker.seq", seq),
		attribute.Int("worker.pid", proc.PID),
		attribute.Int("worker.records", len(sub)),
	))
	log.Debug().
		Str("operation", "spawn").
		Int("pid", proc.PID).
		Int("seq", seq).
		Int("records", len(sub)).
		Int("live", len(r.live)).
		Msg("worker spawned")

	timeout := d.cfg.WorkerTimeout
	r.group.Go(func() error {
		defer ch.Close()
		var timer *time.Timer
		if timeout > 0 {
			timer = time.AfterFunc(timeout, proc.Kill)
		}

		c := completion{h: h}
		if c.err = ch.Send(req); c.err == nil {
			c.env, c.err = ch.Receive()
		}
		// A worker that delivered its envelope did not time out, even if the
		// timer fires while it is exiting.
		if timer != nil && !timer.Stop() && c.err != nil {
			h.timeout.Store(true)
		}
		c.waitErr = proc.Wait()
		r.done <- c
		return nil
	})
	return nil
}

// complete validates one worker's outcome and stores its records.
func (r *run) complete(ctx context.Context, c completion) error {
	d := r.d
	h := c.h
	log := logging.FromContext(ctx)

	d.mu.Lock()
	d.stats.Reaped++
	d.mu.Unlock()

	fail := func(kind error, cause error) *Error {
		e := &Error{
			Kind:     kind,
			PID:      h.proc.PID,
			Seq:      h.seq,
			Stderr:   h.proc.StderrTail(),
			ExitCode: h.proc.ExitCode(),
			Err:      cause,
		}
		if c.env != nil {
			e.Diagnostic = c.env.Diagnostic
			e.Fatal = c.env.Fatal
		}
		return e
	}

	switch {
	case h.timeout.Load():
		return fail(ErrWorkerTimeout, fmt.Errorf("exceeded %s", d.cfg.WorkerTimeout))
	case c.err != nil:
		return fail(ErrWorkerCrashed, c.err)
	case c.env.WorkerPID == 0:
		return fail(ErrWorkerCrashed, errNoWorkerPID)
	}
	if err := workerhost.CheckProtocol(c.env.ProtocolVersion); err != nil {
		return fail(ErrProtocolMismatch, err)
	}
	switch {
	case c.env.Seq != h.seq:
		return fail(ErrWorkerCrashed, fmt.Errorf("result for seq %d delivered on channel %d", c.env.Seq, h.seq))
	case c.env.Failed():
		return fail(ErrWorkerFatal, nil)
	case len(c.env.Records) != h.size:
		return fail(ErrWorkerCrashed, fmt.Errorf("returned %d of %d records", len(c.env.Records), h.size))
	}

	if c.waitErr != nil {
		log.Warn().
			Int("pid", h.proc.PID).
			Int("seq", h.seq).
			Err(c.waitErr).
			Msg("worker exited abnormally after delivering its result")
	}
	if c.env.Diagnostic != "" {
		d.warn(ctx, Warning{PID: c.env.WorkerPID, Seq: h.seq, Text: c.env.Diagnostic})
	}

	r.results[h.seq] = c.env.Records
	trace.SpanFromContext(ctx).AddEvent("worker.completed", trace.WithAttributes(
		attribute.Int("worker.seq", h.seq),
		attribute.Int("worker.pid", h.proc.PID),
	))
	log.Debug().
		Str("operation", "reap").
		Int("pid", h.proc.PID).
		Int("seq", h.seq).
		Int("records", len(c.env.Records)).
		Msg("worker completed")
	return nil
}

// abort kills every live worker, waits until each has been reaped and
// returns cause.
func (r *run) abort(ctx context.Context, cause error) error {
	log := logging.FromContext(ctx)
	log.Error().
		Str("operation", "abort").
		Int("live", len(r.live)).
		Err(cause).
		Msg("dispatch failed, terminating workers")

	for _, h := range r.live {
		h.proc.Kill()
	}
	for len(r.live) > 0 {
		c := <-r.done
		delete(r.live, c.h.seq)
		r.d.mu.Lock()
		r.d.stats.Reaped++
		r.d.mu.Unlock()
	}
	r.finish()
	return cause
}

// finish waits for every worker goroutine and publishes per-dispatch stats.
func (r *run) finish() {
	// Worker goroutines always return nil and report on done; the group
	// only joins them.
	_ = r.group.Wait()
	r.d.mu.Lock()
	r.d.stats.LastSubChunks = r.sizes
	r.d.stats.LastPIDs = r.pids
	r.d.mu.Unlock()
}

// dispatchSequential runs the annotator in this process over the whole chunk
// through the same failure boundary a worker uses.
func (d *Dispatcher) dispatchSequential(ctx context.Context, chunk []record.Record) ([]record.Record, error) {
	log := logging.FromContext(ctx)
	pid := os.Getpid()

	d.mu.Lock()
	d.stats.Dispatches++
	d.stats.Sequential++
	d.mu.Unlock()

	if d.cfg.Faults.CrashOnID != "" || d.cfg.Faults.GarbleOnID != "" {
		log.Debug().
			Str("component", "dispatch").
			Msg("crash and garble faults only apply to worker processes")
	}

	a, err := d.registry.New(d.cfg.Annotator, d.cfg.Options)
	if err != nil {
		return nil, &Error{Kind: ErrWorkerFatal, PID: pid, ExitCode: -1, Fatal: err.Error()}
	}

	var diag bytes.Buffer
	runErr := annotate.Run(ctx, a, chunk, d.cfg.Faults, &diag)
	if runErr != nil {
		return nil, &Error{
			Kind:       ErrWorkerFatal,
			PID:        pid,
			ExitCode:   -1,
			Diagnostic: diag.String(),
			Fatal:      annotate.FatalText(runErr),
		}
	}
	if diag.Len() > 0 {
		d.warn(ctx, Warning{PID: pid, Seq: 0, Text: diag.String()})
	}
	return chunk, nil
}

func (d *Dispatcher) warn(ctx context.Context, w Warning) {
	logging.FromContext(ctx).Warn().
		Str("component", "dispatch").
		Int("pid", w.PID).
		Int("seq", w.Seq).
		Str("diagnostic", w.Text).
		Msg("worker diagnostic")
	if d.onWarning != nil {
		d.onWarning(w)
	}
}
