package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rshade/varbatch/internal/config"
	"github.com/rshade/varbatch/internal/engine/batch"
)

// PlanOutput is the JSON form of a splitter plan.
type PlanOutput struct {
	Records      int   `json:"records"`
	Fork         int   `json:"fork"`
	BufferSize   int   `json:"buffer_size"`
	MinSubChunk  int   `json:"min_sub_chunk"`
	MaxSubChunk  int   `json:"max_sub_chunk"`
	SubChunks    []int `json:"sub_chunks"`
	WorkerSpawns int   `json:"worker_spawns"`
}

// NewPlanCmd creates the plan command, which prints how one chunk would be
// split into worker sub-chunks.
func NewPlanCmd() *cobra.Command {
	var (
		records     int
		fork        int
		bufferSize  int
		minSubChunk int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the sub-chunk sizes a dispatch would use",
		Example: `  # Split 5000 records across 4 workers
  varbatch plan --records 5000 --fork 4

  # Small chunk, JSON output
  varbatch plan --records 120 --fork 4 --buffer-size 240 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetGlobalConfig()
			if !cmd.Flags().Changed("fork") {
				fork = cfg.Dispatch.Fork
			}
			if !cmd.Flags().Changed("buffer-size") {
				bufferSize = cfg.Dispatch.BufferSize
			}
			if !cmd.Flags().Changed("min-sub-chunk") {
				minSubChunk = cfg.Dispatch.MinSubChunk
			}
			if !cmd.Flags().Changed("records") {
				records = bufferSize
			}

			plan, err := buildPlan(records, fork, bufferSize, minSubChunk)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			return renderPlanTable(cmd.OutOrStdout(), plan)
		},
	}

	cmd.Flags().IntVarP(&records, "records", "n", 0, "records in the chunk (default: buffer size)")
	cmd.Flags().IntVarP(&fork, "fork", "p", config.DefaultFork, "number of worker processes")
	cmd.Flags().IntVarP(&bufferSize, "buffer-size", "b", config.DefaultBufferSize, "chunk size")
	cmd.Flags().IntVar(&minSubChunk, "min-sub-chunk", 0, "additive sub-chunk floor (0 uses the default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")

	return cmd
}

func buildPlan(records, fork, bufferSize, minSubChunk int) (PlanOutput, error) {
	switch {
	case records < 0:
		return PlanOutput{}, fmt.Errorf("records must be >= 0, got %d", records)
	case fork < 0:
		return PlanOutput{}, fmt.Errorf("fork must be >= 0, got %d", fork)
	case bufferSize < batch.MinBufferSize:
		return PlanOutput{}, fmt.Errorf("buffer size must be >= %d, got %d", batch.MinBufferSize, bufferSize)
	case minSubChunk < 0:
		return PlanOutput{}, fmt.Errorf("min sub-chunk must be >= 0, got %d", minSubChunk)
	}

	out := PlanOutput{
		Records:     records,
		Fork:        fork,
		BufferSize:  bufferSize,
		MinSubChunk: minSubChunk,
	}
	if out.MinSubChunk == 0 {
		out.MinSubChunk = batch.MinSubChunkSize
	}
	if fork == 0 {
		// In-process: one pass over the whole chunk, no workers.
		out.SubChunks = []int{}
		if records > 0 {
			out.SubChunks = []int{records}
		}
		out.MaxSubChunk = records
		return out, nil
	}

	out.MaxSubChunk = batch.MaxSubChunkSize(bufferSize, fork)
	out.SubChunks = batch.Splitter{MinSubChunk: minSubChunk}.Plan(records, fork, bufferSize)
	if out.SubChunks == nil {
		out.SubChunks = []int{}
	}
	out.WorkerSpawns = len(out.SubChunks)
	return out, nil
}

func renderPlanTable(w io.Writer, plan PlanOutput) error {
	if _, err := fmt.Fprintf(w, "Records: %d  Fork: %d  Buffer size: %d  Max sub-chunk: %d\n\n",
		plan.Records, plan.Fork, plan.BufferSize, plan.MaxSubChunk); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEQ\tSIZE\tOFFSET")
	offset := 0
	for i, size := range plan.SubChunks {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\n", i, size, offset)
		offset += size
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d sub-chunk(s), %d worker spawn(s)\n", len(plan.SubChunks), plan.WorkerSpawns)
	return err
}
