// Package channel holds the per-segment profiles that drive scoring,
// simulation and outreach.
package channel

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
)

// Profile configures one channel (target segment).
type Profile struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Base        string     `yaml:"base" json:"base,omitempty"`
	SheetTab    string     `yaml:"sheet_tab" json:"sheet_tab,omitempty"`
	Scoring     Scoring    `yaml:"scoring" json:"scoring"`
	Outreach    Outreach   `yaml:"outreach" json:"outreach"`
	Scraping    Scraping   `yaml:"scraping" json:"scraping"`
	Simulation  Simulation `yaml:"simulation" json:"simulation"`
	Signals     *Signals   `yaml:"signals" json:"signals,omitempty"`
	Compliance  []string   `yaml:"compliance" json:"compliance,omitempty"`
}

// Scoring holds the profile-score weights (percent points, factor name to
// weight) and the tier thresholds.
type Scoring struct {
	Weights    map[string]float64 `yaml:"weights" json:"weights"`
	Thresholds Thresholds         `yaml:"thresholds" json:"thresholds"`
}

// Thresholds are the tier cutoffs. Hot must be at least Warm.
type Thresholds struct {
	Hot  float64 `yaml:"hot" json:"hot"`
	Warm float64 `yaml:"warm" json:"warm"`
}

// Outreach configures messaging for the channel.
type Outreach struct {
	InitialEmail       *EmailTemplate `yaml:"initial_email" json:"initial_email,omitempty"`
	EmailTemplates     []string       `yaml:"email_templates" json:"email_templates,omitempty"`
	Newsletter         string         `yaml:"newsletter" json:"newsletter,omitempty"`
	SlackSummary       bool           `yaml:"slack_summary" json:"slack_summary"`
	Video              bool           `yaml:"video" json:"video"`
	ExecutiveAssistant bool           `yaml:"executive_assistant" json:"executive_assistant"`
}

// EmailTemplate is a subject and HTML body with {{placeholder}} tokens.
type EmailTemplate struct {
	Subject  string `yaml:"subject" json:"subject"`
	HTMLBody string `yaml:"html_body" json:"html_body"`
}

// Scraping configures the live scrape actor.
type Scraping struct {
	ActorID    string         `yaml:"actor_id" json:"actor_id,omitempty"`
	Queries    []string       `yaml:"queries" json:"queries,omitempty"`
	MaxResults int            `yaml:"max_results" json:"max_results,omitempty"`
	Input      map[string]any `yaml:"input" json:"input,omitempty"`
}

// Simulation holds the sample pools used to synthesize leads.
type Simulation struct {
	FirstNames    []string `yaml:"first_names" json:"first_names"`
	LastNames     []string `yaml:"last_names" json:"last_names"`
	Locations     []string `yaml:"locations" json:"locations"`
	Companies     []string `yaml:"companies" json:"companies"`
	JobTitles     []string `yaml:"job_titles" json:"job_titles"`
	Education     []string `yaml:"education" json:"education,omitempty"`
	MinExperience int      `yaml:"min_experience" json:"min_experience,omitempty"`
	MaxExperience int      `yaml:"max_experience" json:"max_experience,omitempty"`
}

// Signals configures intent-signal sourcing and scoring.
type Signals struct {
	Titles         []string           `yaml:"titles" json:"titles"`
	Seniorities    []string           `yaml:"seniorities" json:"seniorities"`
	Locations      []string           `yaml:"locations" json:"locations"`
	EmployeeRanges []string           `yaml:"employee_ranges" json:"employee_ranges"`
	Industries     []string           `yaml:"industries" json:"industries"`
	Revenue        Range              `yaml:"revenue" json:"revenue"`
	NetWorth       Range              `yaml:"net_worth" json:"net_worth"`
	Topics         []string           `yaml:"topics" json:"topics"`
	Weights        map[string]float64 `yaml:"weights" json:"weights"`
}

// Range is an inclusive numeric range. A zero Max means unbounded.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max,omitempty"`
}

// Contains reports whether v lies in the range.
func (r Range) Contains(v float64) bool {
	if v < r.Min {
		return false
	}
	return r.Max == 0 || v <= r.Max
}

// Known base channels. Each has its own profile-score calculators.
var knownBases = map[string]bool{
	"partners":      true,
	"hni":           true,
	"uhni":          true,
	"mass_affluent": true,
}

// Signal factor names accepted in Signals.Weights.
var signalFactors = map[string]bool{
	"intent":     true,
	"title":      true,
	"wealth":     true,
	"company":    true,
	"engagement": true,
	"geography":  true,
}

// BaseID returns the channel whose calculators score this profile.
func (p *Profile) BaseID() string {
	if p.Base != "" {
		return p.Base
	}
	return p.ID
}

// Factors returns the weighted factor names in a stable order.
func (p *Profile) Factors() []string {
	out := make([]string, 0, len(p.Scoring.Weights))
	for k := range p.Scoring.Weights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks structural invariants. Weight sums are not checked;
// scores are clamped, never renormalized.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return eris.New("channel: profile id is required")
	}
	if !knownBases[p.BaseID()] {
		return eris.Errorf("channel: %s: unknown base channel %q", p.ID, p.BaseID())
	}
	th := p.Scoring.Thresholds
	if th.Hot < th.Warm {
		return eris.Errorf("channel: %s: hot threshold %.2f below warm threshold %.2f", p.ID, th.Hot, th.Warm)
	}
	if th.Warm < 0 || th.Hot > 100 {
		return eris.Errorf("channel: %s: thresholds must lie within [0,100]", p.ID)
	}
	var sum float64
	for factor, w := range p.Scoring.Weights {
		if w < 0 {
			return eris.Errorf("channel: %s: negative weight for %s", p.ID, factor)
		}
		sum += w
	}
	// Weights are percent points; fractions would score every lead near zero.
	if sum > 0 && sum <= 1 {
		return eris.Errorf("channel: %s: scoring weights sum to %.2f; weights are percent points (25, not 0.25)", p.ID, sum)
	}
	if p.Signals != nil {
		for factor := range p.Signals.Weights {
			if !signalFactors[factor] {
				return eris.Errorf("channel: %s: unknown signal factor %q", p.ID, factor)
			}
		}
	}
	return nil
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}
