package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/steps"
)

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List pipeline definitions and their steps",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := pipeline.NewCatalog(steps.BuiltinDefinitions(), cfg.Pipelines.Dir)
		if err != nil {
			return eris.Wrap(err, "load pipelines")
		}
		verbose, _ := cmd.Flags().GetBool("steps")
		formatPipelines(os.Stdout, catalog.List(), verbose)
		return nil
	},
}

func init() {
	pipelinesCmd.Flags().Bool("steps", false, "list every step of each pipeline")
	rootCmd.AddCommand(pipelinesCmd)
}

func formatPipelines(out io.Writer, defs []pipeline.Definition, withSteps bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCHANNEL\tSTEPS\tNAME")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t----")

	for _, d := range defs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.ID, d.Channel, len(d.Steps), d.Name)
		if !withSteps {
			continue
		}
		for i, s := range d.Steps {
			mode := ""
			switch {
			case s.ForceSimulate:
				mode = " (simulate)"
			case s.ForceLive:
				mode = " (live)"
			}
			_, _ = fmt.Fprintf(w, "\t\t%d.\t%s [%s]%s\n", i+1, s.ID, s.Kind, mode)
		}
	}
	_ = w.Flush()
}
