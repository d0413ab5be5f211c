package cli

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/varbatch/internal/config"
	"github.com/rshade/varbatch/internal/engine/batch"
	"github.com/rshade/varbatch/internal/engine/dispatch"
	"github.com/rshade/varbatch/internal/logging"
	"github.com/rshade/varbatch/internal/output"
	"github.com/rshade/varbatch/internal/source"
	"github.com/rshade/varbatch/internal/workerhost"
)

// annotateParams holds the flags of the annotate command.
type annotateParams struct {
	input         string
	output        string
	fork          int
	bufferSize    int
	annotator     string
	options       map[string]string
	format        string
	workerTimeout time.Duration
	sequential    bool
	noHeader      bool
	quiet         bool
	noProgress    bool
}

// NewAnnotateCmd creates the annotate command.
func NewAnnotateCmd() *cobra.Command {
	var params annotateParams

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate VCF records in parallel worker processes",
		Long: `Reads VCF records in chunks of --buffer-size, annotates each chunk across
--fork worker processes and writes the records in input order.

With --fork 0 the annotator runs in this process. A worker that fails, crashes
or times out aborts the run; no output is written for the failing chunk.`,
		Example: `  # Annotate with 4 workers
  varbatch annotate --input calls.vcf --output out.vcf --fork 4

  # Read gzip input, write NDJSON to stdout
  varbatch annotate --input calls.vcf.gz --format ndjson

  # Pass options to the annotator
  varbatch annotate -i calls.vcf --annotator allele_stats --option precision=2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := annotateConfig(cmd, params)
			if err != nil {
				return err
			}
			return runAnnotate(cmd, cfg, params)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&params.input, "input", "i", "-", "input VCF file, '-' for stdin (.gz is decompressed)")
	f.StringVarP(&params.output, "output", "o", "-", "output file, '-' for stdout")
	f.IntVarP(&params.fork, "fork", "p", config.DefaultFork, "number of worker processes (0 runs in-process)")
	f.IntVarP(&params.bufferSize, "buffer-size", "b", config.DefaultBufferSize, "records read per chunk")
	f.StringVarP(&params.annotator, "annotator", "a", config.DefaultAnnotator, "annotator name (see 'varbatch annotators')")
	f.StringToStringVar(&params.options, "option", nil, "annotator option KEY=VALUE (repeatable)")
	f.StringVarP(&params.format, "format", "f", config.DefaultOutputFormat, "output format: vcf, json or ndjson")
	f.DurationVar(&params.workerTimeout, "worker-timeout", 0, "abort when one worker runs longer than this (0 disables)")
	f.BoolVar(&params.sequential, "sequential", false, "force in-process annotation regardless of --fork")
	f.BoolVar(&params.noHeader, "no-header", false, "omit VCF header lines")
	f.BoolVarP(&params.quiet, "quiet", "q", false, "do not print the run summary or progress bar")
	f.BoolVar(&params.noProgress, "no-progress", false, "do not show the progress bar on a terminal")

	return cmd
}

// annotateConfig applies explicitly set flags over the global configuration
// and validates the result.
func annotateConfig(cmd *cobra.Command, params annotateParams) (*config.Config, error) {
	cfg := *config.GetGlobalConfig()
	flags := cmd.Flags()

	if flags.Changed("fork") {
		cfg.Dispatch.Fork = params.fork
	}
	if flags.Changed("buffer-size") {
		cfg.Dispatch.BufferSize = params.bufferSize
	}
	if flags.Changed("worker-timeout") {
		cfg.Dispatch.WorkerTimeout = params.workerTimeout
	}
	if flags.Changed("sequential") {
		cfg.Dispatch.Sequential = params.sequential
	}
	if flags.Changed("annotator") {
		cfg.Annotation.Annotator = params.annotator
		cfg.Annotation.Options = nil
	}
	if flags.Changed("option") {
		cfg.Annotation.Options = params.options
	}
	if flags.Changed("format") {
		cfg.Output.Format = params.format
	}
	if flags.Changed("no-header") {
		cfg.Output.OmitHeader = params.noHeader
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newDispatcher builds the dispatcher described by cfg. onWarning counts
// worker diagnostics for the summary.
func newDispatcher(cfg *config.Config, onWarning dispatch.WarningHandler) (*dispatch.Dispatcher, error) {
	d := cfg.Dispatch
	opts := []dispatch.Option{dispatch.WithWarningHandler(onWarning)}
	if d.Fork > 0 && !d.Sequential {
		command, err := workerhost.SelfCommand(expandPath(d.WorkerBinary))
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithLauncher(workerhost.NewLauncher(command)))
	}

	return dispatch.New(dispatch.Config{
		Parallelism:    d.Fork,
		BufferSize:     d.BufferSize,
		MinSubChunk:    d.MinSubChunk,
		Annotator:      cfg.Annotation.Annotator,
		Options:        cfg.Annotation.Options,
		Faults:         d.Faults,
		WorkerTimeout:  d.WorkerTimeout,
		Sequential:     d.Sequential,
		WorkerLogLevel: d.WorkerLogLevel,
	}, opts...)
}

func runAnnotate(cmd *cobra.Command, cfg *config.Config, params annotateParams) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	in, err := openInput(expandPath(params.input), cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer in.Close()

	out, closeOut, err := openOutput(expandPath(params.output), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	var warnings atomic.Int64
	d, err := newDispatcher(cfg, func(dispatch.Warning) { warnings.Add(1) })
	if err != nil {
		_ = closeOut()
		return err
	}

	src := source.NewVCFReader(in.Reader)
	sink, err := output.New(cfg.Output.Format, out, output.Options{
		Annotator:  cfg.Annotation.Annotator,
		OmitHeader: cfg.Output.OmitHeader,
		Header:     src.Header,
	})
	if err != nil {
		_ = closeOut()
		return err
	}

	proc, err := batch.NewProcessor(cfg.Dispatch.BufferSize)
	if err != nil {
		_ = closeOut()
		return err
	}
	var view *progressView
	if showProgress(params, in, cmd.ErrOrStderr()) {
		view = startProgressView(ctx, cmd.ErrOrStderr(), in.Raw, in.Size)
	}
	proc = proc.WithLogger(*log).WithProgressCallback(func(p *batch.Progress) {
		s := p.Snapshot()
		log.Debug().
			Str("component", "cli").
			Int("records", s.ProcessedRecords).
			Int("chunks", s.ProcessedChunks).
			Float64("records_per_second", s.RecordsPerSecond).
			Msg("chunk written")
		if view != nil {
			view.update(s)
		}
	})

	log.Info().
		Str("component", "cli").
		Str("operation", "annotate").
		Str("annotator", cfg.Annotation.Annotator).
		Int("fork", cfg.Dispatch.Fork).
		Int("buffer_size", cfg.Dispatch.BufferSize).
		Bool("parallel", d.Parallel()).
		Msg("annotation started")

	progress, runErr := proc.Run(ctx, src, d, sink)
	if view != nil {
		view.stop(runErr == nil)
	}
	if runErr == nil {
		runErr = sink.Close()
	}
	if closeErr := closeOut(); runErr == nil && closeErr != nil {
		runErr = fmt.Errorf("closing output: %w", closeErr)
	}
	if runErr != nil {
		return runErr
	}

	if !params.quiet {
		renderSummary(cmd.ErrOrStderr(), buildSummary(progress.Snapshot(), d.Stats(), warnings.Load(), cfg),
			isTerminalWriter(cmd.ErrOrStderr()))
	}
	return nil
}

// annotateInput is an opened input. Raw counts the bytes taken from the
// underlying file, before decompression; Size is that file's size or zero
// when unknown.
type annotateInput struct {
	io.Reader
	Raw   *countingReader
	Size  int64
	Close func()
}

// openInput opens path for reading, transparently decompressing .gz files.
func openInput(path string, stdin io.Reader) (*annotateInput, error) {
	if path == "" || path == "-" {
		raw := &countingReader{r: stdin}
		return &annotateInput{Reader: raw, Raw: raw, Close: func() {}}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil && st.Mode().IsRegular() {
		size = st.Size()
	}
	raw := &countingReader{r: f}
	if !strings.HasSuffix(path, ".gz") && !strings.HasSuffix(path, ".bgz") {
		return &annotateInput{Reader: raw, Raw: raw, Size: size, Close: func() { _ = f.Close() }}, nil
	}
	zr, err := gzip.NewReader(raw)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("opening gzip input: %w", err)
	}
	return &annotateInput{Reader: zr, Raw: raw, Size: size, Close: func() {
		_ = zr.Close()
		_ = f.Close()
	}}, nil
}

// openOutput opens path for writing. The returned close func reports write
// errors that surface only on close.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output: %w", err)
	}
	return f, f.Close, nil
}

// showProgress reports whether a progress bar goes to stderr: only for an
// input of known size, when the summary is wanted and stderr is a terminal.
func showProgress(params annotateParams, in *annotateInput, stderr io.Writer) bool {
	return !params.quiet && !params.noProgress && in.Size > 0 && isTerminalWriter(stderr)
}

// isTerminalWriter reports whether w is a terminal file.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
