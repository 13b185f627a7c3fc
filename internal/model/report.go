package model

import "time"

// RunReport summarizes one completed pipeline run. Reports are appended to
// the execution history by the summary step.
type RunReport struct {
	RunID        string           `json:"runId"`
	Channel      string           `json:"segmentId"`
	ChannelName  string           `json:"segmentName"`
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  time.Time        `json:"completedAt"`
	Metrics      map[string]int64 `json:"metrics"`
	TotalRecords int              `json:"totalLeads"`
}

// Duration returns the wall time of the run.
func (r RunReport) Duration() time.Duration {
	if r.CompletedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
