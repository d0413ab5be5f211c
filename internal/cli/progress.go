package cli

import (
	"context"
	"io"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/varbatch/internal/engine/batch"
	"github.com/rshade/varbatch/internal/logging"
	"github.com/rshade/varbatch/internal/tui"
)

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Count returns the number of bytes read so far.
func (c *countingReader) Count() int64 {
	return c.n.Load()
}

// inputFraction is the share of an input of size bytes consumed after read
// bytes. Unknown sizes report zero.
func inputFraction(read, size int64) float64 {
	if size <= 0 {
		return 0
	}
	return min(float64(read)/float64(size), 1)
}

// progressView drives the annotate progress bar on a terminal.
type progressView struct {
	program *tea.Program
	done    chan struct{}
	input   *countingReader
	size    int64
}

// startProgressView starts the progress bar on w. The caller must call stop.
func startProgressView(ctx context.Context, w io.Writer, input *countingReader, size int64) *progressView {
	v := &progressView{
		program: tea.NewProgram(tui.NewAnnotateProgressModel(),
			tea.WithContext(ctx),
			tea.WithOutput(w),
			tea.WithInput(nil),
			tea.WithoutSignalHandler()),
		done:  make(chan struct{}),
		input: input,
		size:  size,
	}
	go func() {
		defer close(v.done)
		if _, err := v.program.Run(); err != nil {
			logging.FromContext(ctx).Debug().
				Str("component", "cli").
				Str("operation", "progress_view").
				Err(err).
				Msg("progress view stopped")
		}
	}()
	return v
}

// update reports a written chunk.
func (v *progressView) update(s batch.ProgressSnapshot) {
	v.program.Send(tui.AnnotateProgressMsg{
		Fraction:         inputFraction(v.input.Count(), v.size),
		Records:          s.ProcessedRecords,
		Chunks:           s.ProcessedChunks,
		RecordsPerSecond: s.RecordsPerSecond,
		Elapsed:          s.ElapsedTime,
	})
}

// stop ends the view and waits until the terminal is released.
func (v *progressView) stop(completed bool) {
	if completed {
		v.program.Send(tui.AnnotateDoneMsg{})
	} else {
		v.program.Quit()
	}
	<-v.done
}
