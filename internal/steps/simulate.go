package steps

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
)

// Simulated data sources. Dispatch treats all of them as synthetic.
const (
	SourceApifySimulated  = "apify-simulated"
	SourceApolloSimulated = "apollo-simulated"
	SourceIntentSimulated = "intent-simulated"
)

var nonAlpha = regexp.MustCompile(`[^a-z]`)

// simulator synthesizes leads from a channel's simulation pools.
type simulator struct {
	rng *rand.Rand
	p   *channel.Profile
	now time.Time
}

func newSimulator(p *channel.Profile, seed uint64, now time.Time) *simulator {
	return &simulator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), p: p, now: now}
}

func (s *simulator) pick(pool []string, fallback string) string {
	if len(pool) == 0 {
		return fallback
	}
	return pool[s.rng.IntN(len(pool))]
}

// between returns an int in [lo, hi].
func (s *simulator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.IntN(hi-lo+1)
}

func (s *simulator) chance(p float64) bool {
	return s.rng.Float64() < p
}

func emailFor(first, last, company string) string {
	f := nonAlpha.ReplaceAllString(strings.ToLower(first), "")
	domain := nonAlpha.ReplaceAllString(strings.ToLower(company), "")
	if len(domain) > 12 {
		domain = domain[:12]
	}
	if domain == "" {
		domain = "lead"
	}
	if last != "" {
		f += "." + nonAlpha.ReplaceAllString(strings.ToLower(last), "")
	}
	return f + "@" + domain + ".com"
}

// profileLead builds one scraped-style lead carrying the fields the
// channel's profile calculators read.
func (s *simulator) profileLead(i int, source string) model.Record {
	sim := s.p.Simulation
	first := s.pick(sim.FirstNames, "Amit")
	last := s.pick(sim.LastNames, "Sharma")
	company := s.pick(sim.Companies, "Acme Capital")
	slug := strings.ToLower(strings.ReplaceAll(company, " ", ""))

	r := model.Record{
		model.FieldLeadID:     fmt.Sprintf("%s-%d-%d", s.p.ID, s.now.Unix(), i),
		model.FieldName:       first + " " + last,
		model.FieldFirstName:  first,
		model.FieldLastName:   last,
		model.FieldTitle:      s.pick(sim.JobTitles, "Director"),
		model.FieldCompany:    company,
		model.FieldEmail:      emailFor(first, last, company),
		"phone":               fmt.Sprintf("+91%d", 7000000000+s.rng.Int64N(3000000000)),
		model.FieldLinkedIn:   fmt.Sprintf("https://www.linkedin.com/in/%s-%s-%d", strings.ToLower(first), strings.ToLower(last), s.between(1000, 9999)),
		"website":             "https://" + slug + ".com",
		model.FieldLocation:   s.pick(sim.Locations, "Mumbai"),
		model.FieldDataSource: source,
		"scraped_at":          s.now.UTC().Format(time.RFC3339),
	}

	switch s.p.BaseID() {
	case "partners":
		minExp, maxExp := sim.MinExperience, sim.MaxExperience
		if minExp == 0 {
			minExp = 3
		}
		if maxExp == 0 {
			maxExp = 18
		}
		r["aum"] = fmt.Sprintf("%d Cr", s.between(10, 250))
		r["client_base"] = s.between(50, 350)
		r["digital_presence"] = s.between(30, 95)
		r["years_experience"] = s.between(minExp, maxExp)
		if s.chance(0.5) {
			r["sebi_registration"] = "Yes"
		} else {
			r["sebi_registration"] = "In Progress"
		}
	case "hni":
		r["net_worth_signal"] = s.between(5, 25) * 10_000_000
		r["education"] = s.pick(sim.Education, "")
		r["role_seniority"] = s.pick([]string{"Senior", "CXO", "Founder"}, "Senior")
		r["investment_activity"] = s.between(60, 100)
	case "uhni":
		r["ownership_stake"] = fmt.Sprintf("%d%%", s.between(20, 70))
		r["family_office"] = s.chance(0.5)
		r["liquidity_events"] = s.between(1, 5)
		r["philanthropy"] = s.between(40, 100)
		r["international_presence"] = s.between(50, 100)
	case "mass_affluent":
		r["income_band"] = s.between(25, 90) * 100_000
		r["digital_behavior"] = s.between(55, 95)
		r["investment_history"] = s.between(30, 90)
		r["intent_signal"] = s.between(20, 90)
	}
	return r
}

var intentStrengths = []struct {
	name   string
	weight float64
}{{"high", 0.3}, {"medium", 0.5}, {"low", 0.2}}

func (s *simulator) strength() string {
	x := s.rng.Float64()
	for _, st := range intentStrengths {
		if x < st.weight {
			return st.name
		}
		x -= st.weight
	}
	return "low"
}

// lastSeen returns a date whose age tracks the intent strength.
func (s *simulator) lastSeen(strength string) time.Time {
	var days int
	switch strength {
	case "high":
		days = s.between(0, 6)
	case "medium":
		days = s.between(7, 36)
	default:
		days = s.between(30, 89)
	}
	return s.now.AddDate(0, 0, -days)
}

var netWorthRanges = map[string][2]int64{
	"hni":           {1_000_000, 30_000_000},
	"uhni":          {30_000_000, 500_000_000},
	"mass_affluent": {100_000, 1_000_000},
}

// seniorityFor guesses an Apollo seniority from a title.
func seniorityFor(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "ceo"), strings.Contains(t, "founder"), strings.Contains(t, "owner"), strings.Contains(t, "chairman"):
		return "c_suite"
	case strings.Contains(t, "vp"), strings.Contains(t, "vice president"):
		return "vp"
	case strings.Contains(t, "director"):
		return "director"
	case strings.Contains(t, "manager"):
		return "manager"
	}
	return "individual_contributor"
}

// signalLead builds one lead carrying intent, engagement, wealth and
// organization signals drawn from the channel's signal config.
func (s *simulator) signalLead(i int) model.Record {
	sim := s.p.Simulation
	sig := s.p.Signals
	first := s.pick(sim.FirstNames, "Amit")
	last := s.pick(sim.LastNames, "Sharma")
	company := s.pick(sim.Companies, "Acme Capital")
	title := s.pick(sig.Titles, s.pick(sim.JobTitles, "Director"))
	strength := s.strength()
	industry := s.pick(sig.Industries, "Financial Services")

	org := map[string]any{
		"name":           company,
		"employee_count": []int{50, 100, 200, 500, 1000, 2000}[s.rng.IntN(6)],
		"revenue":        10_000_000 + s.rng.Int64N(50_000_000),
		"industry":       industry,
		"recent_funding": s.chance(0.15),
		"hiring_spike":   s.chance(0.2),
	}

	r := model.Record{
		model.FieldLeadID:      fmt.Sprintf("sim_%s_%d_%d", s.p.ID, s.now.Unix(), i),
		model.FieldFirstName:   first,
		model.FieldLastName:    last,
		model.FieldName:        first + " " + last,
		model.FieldEmail:       emailFor(first, last, company),
		"title":                title,
		model.FieldTitle:       title,
		"seniority":            seniorityFor(title),
		model.FieldCompany:     company,
		"industry":             industry,
		model.FieldLocation:    s.pick(sig.Locations, s.pick(sim.Locations, "Mumbai, India")),
		"intent_topics":        []any{s.pick(sig.Topics, "wealth management")},
		"intent_strength":      strength,
		"intent_signals_count": s.between(1, 8),
		"intent_last_seen":     s.lastSeen(strength).UTC().Format(time.RFC3339),
		"engagement_level":     s.between(0, 99),
		"website_visits":       s.between(0, 9),
		"email_opened":         s.chance(0.5),
		"email_clicked":        s.chance(0.3),
		"organization":         org,
		model.FieldDataSource:  SourceIntentSimulated,
		"signal_type":          "intent",
		"enriched_at":          s.now.UTC().Format(time.RFC3339),
	}
	if rng, ok := netWorthRanges[s.p.BaseID()]; ok {
		r["estimated_net_worth"] = rng[0] + s.rng.Int64N(rng[1]-rng[0])
	}
	if s.chance(0.1) {
		r["job_change_date"] = s.now.AddDate(0, 0, -s.between(0, 120)).UTC().Format("2006-01-02")
	}
	return r
}
