package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent run reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		channelID, _ := cmd.Flags().GetString("channel")
		limit, _ := cmd.Flags().GetInt("limit")

		reports, err := st.LoadReports(ctx)
		if err != nil {
			return eris.Wrap(err, "history")
		}
		reports = recentReports(reports, channelID, limit)

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatHistory(os.Stdout, reports)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	historyCmd.Flags().String("channel", "", "only show runs of this channel")
	rootCmd.AddCommand(historyCmd)
}

// recentReports returns the newest reports first, optionally restricted to
// one channel. A limit <= 0 keeps everything.
func recentReports(reports []model.RunReport, channelID string, limit int) []model.RunReport {
	out := make([]model.RunReport, 0, len(reports))
	for _, r := range reports {
		if channelID != "" && r.Channel != channelID {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func formatHistory(out io.Writer, reports []model.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tCHANNEL\tCOMPLETED\tDURATION\tLEADS\tHOT\tSTORED")
	_, _ = fmt.Fprintln(w, "---\t-------\t---------\t--------\t-----\t---\t------")

	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			truncateID(r.RunID),
			r.Channel,
			r.CompletedAt.Format("2006-01-02 15:04"),
			r.Duration().Round(time.Millisecond),
			r.TotalRecords,
			r.Metrics["hot"],
			r.Metrics["stored"],
		)
	}
	_ = w.Flush()
}
