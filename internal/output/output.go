// Package output renders annotated records as VCF, JSON or NDJSON.
//
// Every writer implements batch.Sink, so the batch processor streams chunks
// into it in input order. Close must be called once to flush trailing
// content such as the JSON summary.
package output

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rshade/varbatch/internal/record"
)

// Formats.
const (
	FormatVCF    = "vcf"
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown output format")

// ErrClosed is returned when writing to a closed writer.
var ErrClosed = errors.New("output writer closed")

// Writer is a batch.Sink that must be closed after the last chunk.
type Writer interface {
	WriteRecords(ctx context.Context, records []record.Record) error
	Close() error
	// Count returns the number of records written so far.
	Count() int64
}

// Options configures a writer.
type Options struct {
	// Annotator is recorded in the VCF header and JSON metadata.
	Annotator string
	// OmitHeader suppresses VCF header lines.
	OmitHeader bool
	// Header returns the input's header lines. It is called on the first
	// write so that a streaming reader has seen the header by then.
	Header func() []string
	// Now is used for the generated_at timestamp; defaults to time.Now.
	Now func() time.Time
}

// New returns a writer for format writing to w.
func New(format string, w io.Writer, opts Options) (Writer, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base := baseWriter{w: bufio.NewWriter(w), opts: opts}
	switch format {
	case FormatVCF, "":
		return &vcfWriter{baseWriter: base}, nil
	case FormatJSON:
		return &jsonWriter{baseWriter: base}, nil
	case FormatNDJSON:
		return &ndjsonWriter{baseWriter: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

type baseWriter struct {
	w      *bufio.Writer
	opts   Options
	count  int64
	closed bool
}

func (b *baseWriter) Count() int64 { return b.count }

func (b *baseWriter) check(ctx context.Context) error {
	if b.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (b *baseWriter) header() []string {
	if b.opts.Header == nil {
		return nil
	}
	return b.opts.Header()
}

func (b *baseWriter) flush() error {
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	return nil
}
