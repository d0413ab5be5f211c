package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rshade/varbatch/internal/record"
	"github.com/rshade/varbatch/internal/source"
)

// Buffer size bounds.
const (
	// DefaultBufferSize is the number of records pulled from the source per chunk.
	DefaultBufferSize = 5000

	// MinBufferSize is the minimum allowed buffer size.
	MinBufferSize = 1

	// MaxBufferSize is the maximum allowed buffer size.
	MaxBufferSize = 1_000_000
)

// Common processing errors.
var (
	ErrInvalidBufferSize = errors.New("buffer size must be between 1 and 1000000")
	ErrNilDispatcher     = errors.New("dispatcher cannot be nil")
	ErrNilSink           = errors.New("sink cannot be nil")
	ErrNilSource         = errors.New("source cannot be nil")
	ErrRecordsLost       = errors.New("dispatcher returned a different number of records")
)

// Dispatcher annotates one chunk and returns it in input order.
type Dispatcher interface {
	Dispatch(ctx context.Context, chunk []record.Record) ([]record.Record, error)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, chunk []record.Record) ([]record.Record, error)

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(ctx context.Context, chunk []record.Record) ([]record.Record, error) {
	return f(ctx, chunk)
}

// Sink receives annotated chunks in input order.
type Sink interface {
	WriteRecords(ctx context.Context, records []record.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []record.Record) error

// WriteRecords implements Sink.
func (f SinkFunc) WriteRecords(ctx context.Context, records []record.Record) error {
	return f(ctx, records)
}

// ProgressCallback is an optional callback invoked after each chunk is written.
type ProgressCallback func(progress *Progress)

// Processor pulls fixed-size chunks from a Source, hands each to a
// Dispatcher and forwards the result to a Sink. Chunks are processed one at a
// time; parallelism lives inside the Dispatcher.
type Processor struct {
	bufferSize   int
	totalRecords int
	onProgress   ProgressCallback
	logger       zerolog.Logger
}

// NewProcessor creates a processor that reads bufferSize records per chunk.
func NewProcessor(bufferSize int) (*Processor, error) {
	if bufferSize < MinBufferSize || bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBufferSize, bufferSize)
	}

	return &Processor{
		bufferSize: bufferSize,
		logger:     zerolog.Nop(),
	}, nil
}

// NewProcessorWithDefaults creates a processor with DefaultBufferSize.
func NewProcessorWithDefaults() *Processor {
	return &Processor{
		bufferSize: DefaultBufferSize,
		logger:     zerolog.Nop(),
	}
}

// WithProgressCallback sets a progress callback for the processor.
func (p *Processor) WithProgressCallback(callback ProgressCallback) *Processor {
	p.onProgress = callback
	return p
}

// WithTotalRecords sets the expected record count used for percentages.
func (p *Processor) WithTotalRecords(n int) *Processor {
	p.totalRecords = n
	return p
}

// WithLogger sets the logger used for per-chunk debug output.
func (p *Processor) WithLogger(l zerolog.Logger) *Processor {
	p.logger = l
	return p
}

// BufferSize returns the configured chunk size.
func (p *Processor) BufferSize() int {
	return p.bufferSize
}

// Run drains src chunk by chunk. It stops on the first error; records of a
// failed chunk are never written.
func (p *Processor) Run(ctx context.Context, src source.Source, d Dispatcher, sink Sink) (*Progress, error) {
	switch {
	case src == nil:
		return nil, ErrNilSource
	case d == nil:
		return nil, ErrNilDispatcher
	case sink == nil:
		return nil, ErrNilSink
	}

	progress := NewProgress(p.totalRecords, p.bufferSize)

	for chunkIndex := 0; ; chunkIndex++ {
		select {
		case <-ctx.Done():
			return progress, ctx.Err()
		default:
		}

		chunk, err := src.NextChunk(ctx, p.bufferSize)
		if err != nil {
			return progress, fmt.Errorf("reading chunk %d: %w", chunkIndex, err)
		}
		if len(chunk) == 0 {
			return progress, nil
		}

		n := len(chunk)
		p.logger.Debug().
			Int("chunk", chunkIndex).
			Int("records", n).
			Msg("dispatching chunk")

		out, err := d.Dispatch(ctx, chunk)
		if err != nil {
			return progress, fmt.Errorf("chunk %d failed: %w", chunkIndex, err)
		}
		if len(out) != n {
			return progress, fmt.Errorf("chunk %d: %w: sent %d, got %d", chunkIndex, ErrRecordsLost, n, len(out))
		}

		if err := sink.WriteRecords(ctx, out); err != nil {
			return progress, fmt.Errorf("writing chunk %d: %w", chunkIndex, err)
		}

		progress.AddChunk(n)
		if p.onProgress != nil {
			p.onProgress(progress)
		}
	}
}
