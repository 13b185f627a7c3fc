package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/channel"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channel profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := channel.NewRegistry(cfg.Channels.Dir)
		if err != nil {
			return eris.Wrap(err, "load channels")
		}
		formatChannels(os.Stdout, reg.List())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}

func formatChannels(out io.Writer, profiles []*channel.Profile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tBASE\tHOT/WARM\tOUTREACH")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t--------\t--------")

	for _, p := range profiles {
		base := p.Base
		if base == "" {
			base = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%g/%g\t%s\n",
			p.ID,
			p.Name,
			base,
			p.Scoring.Thresholds.Hot,
			p.Scoring.Thresholds.Warm,
			outreachSummary(p),
		)
	}
	_ = w.Flush()
}

func outreachSummary(p *channel.Profile) string {
	var parts []string
	if p.Outreach.InitialEmail != nil || len(p.Outreach.EmailTemplates) > 0 {
		parts = append(parts, "email")
	}
	if p.Outreach.Newsletter != "" {
		parts = append(parts, "newsletter:"+p.Outreach.Newsletter)
	}
	if p.Outreach.SlackSummary {
		parts = append(parts, "slack")
	}
	if p.Outreach.Video {
		parts = append(parts, "video")
	}
	if p.Outreach.ExecutiveAssistant {
		parts = append(parts, "briefing")
	}
	if p.Signals != nil {
		parts = append(parts, "signals")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
