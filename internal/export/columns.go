// Package export writes lead records to tabular files and ships them to
// downstream drops.
package export

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Column maps a record path (a.b, a[0]) to a header label.
type Column struct {
	Path  string `yaml:"path" json:"path"`
	Label string `yaml:"label" json:"label"`
}

// Header returns the column label, falling back to the path.
func (c Column) Header() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Path
}

var columnSets = map[string][]Column{
	"default": {
		{"first_name", "First Name"},
		{"last_name", "Last Name"},
		{"name", "Full Name"},
		{"email", "Email"},
		{"phone", "Phone"},
		{"job_title", "Job Title"},
		{"company", "Company"},
		{"industry", "Industry"},
		{"seniority", "Seniority"},
		{"city", "City"},
		{"state", "State"},
		{"country", "Country"},
		{"linkedin_url", "LinkedIn URL"},
		{"website", "Website"},
		{"lead_score", "Lead Score"},
		{"lead_tier", "Lead Tier"},
		{"sequence_status", "Lead Status"},
		{"enrichment_status", "Enrichment Status"},
		{"data_quality_score", "Data Quality"},
		{"data_source", "Source"},
		{"scraped_at", "Scraped Date"},
		{"enriched_at", "Enriched Date"},
	},
	"minimal": {
		{"name", "Name"},
		{"email", "Email"},
		{"phone", "Phone"},
		{"company", "Company"},
		{"linkedin_url", "LinkedIn"},
	},
	"email_outreach": {
		{"first_name", "First Name"},
		{"email", "Email"},
		{"job_title", "Job Title"},
		{"company", "Company"},
		{"city", "City"},
		{"lead_score", "Score"},
		{"linkedin_url", "LinkedIn"},
	},
	"crm": {
		{"first_name", "First Name"},
		{"last_name", "Last Name"},
		{"email", "Email"},
		{"phone", "Phone"},
		{"job_title", "Title"},
		{"company", "Company"},
		{"city", "City"},
		{"state", "State"},
		{"country", "Country"},
		{"linkedin_url", "LinkedIn URL"},
		{"website", "Website"},
		{"lead_score", "Lead Score"},
		{"sequence_status", "Status"},
		{"data_source", "Source"},
	},
	"signals": {
		{"name", "Name"},
		{"email", "Email"},
		{"job_title", "Title"},
		{"company", "Company"},
		{"signal_score", "Signal Score"},
		{"signal_tier", "Signal Tier"},
		{"signal_priority", "Priority"},
		{"intent_strength", "Intent"},
		{"intent_topics", "Intent Topics"},
		{"signal_triggers", "Triggers"},
		{"outreach_recommendation.channel", "Outreach Channel"},
		{"outreach_recommendation.timing", "Outreach Timing"},
		{"linkedin_url", "LinkedIn"},
	},
}

// ColumnSet returns a copy of the named built-in column set.
func ColumnSet(name string) ([]Column, error) {
	cols, ok := columnSets[name]
	if !ok {
		return nil, eris.Errorf("export: unknown column set %q", name)
	}
	return append([]Column(nil), cols...), nil
}

// ColumnSetNames lists the built-in column sets.
func ColumnSetNames() []string {
	out := make([]string, 0, len(columnSets))
	for k := range columnSets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
