package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rshade/varbatch/internal/annotate"
)

// NewAnnotatorsCmd creates the annotators command, which lists registered
// annotators.
func NewAnnotatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "annotators",
		Short: "List available annotators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, e := range annotate.Default().Entries() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.Description)
			}
			return tw.Flush()
		},
	}
}
