package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
)

// Signal tier cutoffs.
const (
	SignalHotCutoff  = 70
	SignalWarmCutoff = 40
)

// Trigger is an event that makes a lead timely to contact.
type Trigger struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// Recommendation suggests how and when to reach out.
type Recommendation struct {
	Channel         string `json:"channel"`
	Timing          string `json:"timing"`
	MessageType     string `json:"message_type"`
	Personalization string `json:"personalization,omitempty"`
}

// SignalBreakdown holds the per-factor sub-scores, the weights applied and
// the two unweighted bonuses.
type SignalBreakdown struct {
	Scores       map[string]float64 `json:"scores"`
	Weights      map[string]float64 `json:"weights"`
	RecencyBonus float64            `json:"recency_bonus"`
	TriggerBonus float64            `json:"trigger_bonus"`
}

// SignalResult is the outcome of scoring one record's intent signals.
type SignalResult struct {
	Score          int
	Tier           string
	Priority       int
	Breakdown      SignalBreakdown
	Triggers       []Trigger
	Recommendation Recommendation
}

var seniorityScores = map[string]float64{
	"c_suite":                100,
	"owner":                  100,
	"founder":                100,
	"vp":                     80,
	"director":               60,
	"manager":                40,
	"individual_contributor": 20,
}

var intentBase = map[string]float64{"high": 90, "medium": 60, "low": 30}

// signalFactors are evaluated in this order.
var signalFactors = []string{"intent", "title", "wealth", "company", "engagement", "geography"}

// SignalScore scores r against the channel's signal configuration at time
// now. Each factor contributes subscore/100 × weight; the recency and
// trigger bonuses are added unweighted before the final cap.
func SignalScore(r model.Record, cfg *channel.Signals, now time.Time) SignalResult {
	if cfg == nil {
		cfg = &channel.Signals{}
	}
	bd := SignalBreakdown{Scores: map[string]float64{}, Weights: map[string]float64{}}

	var score float64
	for _, name := range signalFactors {
		sub := signalFactor(name, r, cfg)
		bd.Scores[name] = sub
		w := cfg.Weights[name]
		bd.Weights[name] = w
		score += sub / 100 * w
	}

	bd.RecencyBonus = recencyBonus(r, now)
	bd.TriggerBonus = triggerBonus(r, now)
	score += bd.RecencyBonus + bd.TriggerBonus

	final := int(math.Min(math.Round(score), 100))
	if final < 0 {
		final = 0
	}
	tier := SignalTier(final)
	triggers := Triggers(r, now)
	return SignalResult{
		Score:          final,
		Tier:           tier,
		Priority:       Priority(final, r),
		Breakdown:      bd,
		Triggers:       triggers,
		Recommendation: recommend(tier, r, triggers),
	}
}

// SignalTier maps a signal score to its label.
func SignalTier(score int) string {
	switch {
	case score >= SignalHotCutoff:
		return model.SignalHot
	case score >= SignalWarmCutoff:
		return model.SignalWarm
	}
	return model.SignalCold
}

// Priority combines the signal score with the profile score (lead_score,
// else icp_score) into a 1 (highest) to 4 ranking.
func Priority(signal int, r model.Record) int {
	profile := r.Float(model.FieldLeadScore)
	if profile == 0 {
		profile = r.Float("icp_score")
	}
	combined := float64(signal)*0.6 + profile*0.4
	switch {
	case combined >= 85:
		return 1
	case combined >= 70:
		return 2
	case combined >= 55:
		return 3
	}
	return 4
}

func signalFactor(name string, r model.Record, cfg *channel.Signals) float64 {
	switch name {
	case "intent":
		return scoreIntent(r)
	case "title":
		return scoreTitle(r, cfg)
	case "wealth":
		return scoreWealth(r, cfg)
	case "company":
		return scoreCompany(r, cfg)
	case "engagement":
		return scoreEngagement(r)
	case "geography":
		return scoreGeography(r, cfg)
	}
	return 0
}

func scoreIntent(r model.Record) float64 {
	strength := strings.ToLower(r.String("intent_strength"))
	if strength == "" {
		return 0
	}
	s := intentBase[strength]
	if n := r.Float("intent_signals_count"); n > 0 {
		s += math.Min(n*2, 10)
	}
	if n := r.Len("intent_topics"); n > 0 {
		s += math.Min(float64(n)*3, 10)
	}
	return math.Min(s, 100)
}

// leadTitle prefers job_title and falls back to the title field sources
// such as Apollo use.
func leadTitle(r model.Record) string {
	if t := r.String(model.FieldTitle); t != "" {
		return t
	}
	return r.String("title")
}

func scoreTitle(r model.Record, cfg *channel.Signals) float64 {
	title := leadTitle(r)
	seniority := strings.ToLower(r.String("seniority"))
	if title == "" && seniority == "" {
		return 0
	}
	s, ok := seniorityScores[seniority]
	if !ok {
		s = 20
	}
	lower := strings.ToLower(title)
	for _, t := range cfg.Titles {
		if title != "" && strings.Contains(lower, strings.ToLower(t)) {
			s += 20
			break
		}
	}
	return math.Min(s, 100)
}

func scoreWealth(r model.Record, cfg *channel.Signals) float64 {
	nw := r.Float("estimated_net_worth")
	if nw == 0 {
		return 0
	}
	rng := cfg.NetWorth
	if rng.Min == 0 && rng.Max == 0 {
		return 0
	}
	if rng.Contains(nw) {
		if rng.Max == 0 || rng.Max == rng.Min {
			return 70
		}
		p := (nw - rng.Min) / (rng.Max - rng.Min)
		return math.Round(70 + p*30)
	}
	if nw < rng.Min {
		return math.Round(nw / rng.Min * 50)
	}
	return 100
}

// inEmployeeRange matches "min,max" ranges; an empty max is unbounded.
func inEmployeeRange(count float64, ranges []string) bool {
	for _, rg := range ranges {
		lo, hi, _ := strings.Cut(rg, ",")
		min, ok := model.ToFloat(lo)
		if !ok {
			continue
		}
		if count < min {
			continue
		}
		if max, ok := model.ToFloat(hi); ok && max > 0 && count > max {
			continue
		}
		return true
	}
	return false
}

func scoreCompany(r model.Record, cfg *channel.Signals) float64 {
	org := r.Map("organization")
	if len(org) == 0 {
		return 0
	}
	var s float64
	if n := org.Float("employee_count"); n > 0 {
		if inEmployeeRange(n, cfg.EmployeeRanges) {
			s += 40
		} else {
			s += 20
		}
	}
	if rev := org.Float("revenue"); rev > 0 {
		if cfg.Revenue.Contains(rev) {
			s += 30
		} else {
			s += 10
		}
	}
	if ind := strings.ToLower(org.String("industry")); ind != "" {
		matched := false
		for _, want := range cfg.Industries {
			if strings.Contains(ind, strings.ToLower(want)) {
				matched = true
				break
			}
		}
		if matched {
			s += 30
		} else {
			s += 10
		}
	}
	return math.Min(s, 100)
}

func scoreEngagement(r model.Record) float64 {
	var s float64
	if r.Bool("email_opened") {
		s += 20
	}
	if r.Bool("email_clicked") {
		s += 20
	}
	if v := r.Float("website_visits"); v > 0 {
		s += math.Min(v*5, 30)
	}
	if n := r.Len("content_downloads"); n > 0 {
		s += math.Min(float64(n)*10, 20)
	}
	if r.Float("linkedin_profile_views") > 0 || r.Bool("linkedin_profile_views") {
		s += 10
	}
	return math.Min(s, 100)
}

func leadLocation(r model.Record) string {
	if loc := r.String(model.FieldLocation); loc != "" {
		return loc
	}
	if city := r.String("city"); city != "" {
		return city + ", " + r.String("country")
	}
	return ""
}

func scoreGeography(r model.Record, cfg *channel.Signals) float64 {
	loc := strings.ToLower(leadLocation(r))
	if loc == "" {
		return 50
	}
	for _, want := range cfg.Locations {
		if strings.Contains(loc, strings.ToLower(want)) {
			return 100
		}
	}
	if strings.Contains(loc, "india") {
		return 70
	}
	return 30
}

func daysSince(r model.Record, field string, now time.Time) (int, bool) {
	t, ok := r.Time(field)
	if !ok {
		return 0, false
	}
	return int(math.Floor(now.Sub(t).Hours() / 24)), true
}

func recencyBonus(r model.Record, now time.Time) float64 {
	days, ok := daysSince(r, "intent_last_seen", now)
	if !ok {
		return 0
	}
	switch {
	case days <= 7:
		return 10
	case days <= 30:
		return 5
	case days <= 90:
		return 2
	}
	return 0
}

func triggerBonus(r model.Record, now time.Time) float64 {
	var b float64
	if days, ok := daysSince(r, "job_change_date", now); ok {
		switch {
		case days <= 30:
			b += 15
		case days <= 90:
			b += 10
		}
	}
	org := r.Map("organization")
	if org.Bool("recent_funding") {
		b += 10
	}
	if org.Bool("hiring_spike") {
		b += 5
	}
	return b
}

// Triggers lists the timely events found on r.
func Triggers(r model.Record, now time.Time) []Trigger {
	var out []Trigger
	if strings.EqualFold(r.String("intent_strength"), "high") {
		out = append(out, Trigger{Type: "high_intent", Description: "High buying intent detected", Priority: "high"})
	}
	if days, ok := daysSince(r, "job_change_date", now); ok && days <= 90 {
		out = append(out, Trigger{Type: "job_change", Description: fmt.Sprintf("Changed jobs %d days ago", days), Priority: "high"})
	}
	if r.Map("organization").Bool("recent_funding") {
		out = append(out, Trigger{Type: "funding", Description: "Company recently raised funding", Priority: "medium"})
	}
	if v := r.Int("website_visits"); v >= 3 {
		out = append(out, Trigger{Type: "engagement", Description: fmt.Sprintf("%d website visits", v), Priority: "medium"})
	}
	if r.Bool("email_clicked") {
		out = append(out, Trigger{Type: "email_engagement", Description: "Clicked email link", Priority: "medium"})
	}
	return out
}

func firstTopic(r model.Record, fallback string) string {
	if topics := r.Strings("intent_topics"); len(topics) > 0 && topics[0] != "" {
		return topics[0]
	}
	return fallback
}

func recommend(tier string, r model.Record, triggers []Trigger) Recommendation {
	switch tier {
	case model.SignalHot:
		for _, t := range triggers {
			if t.Type == "job_change" {
				return Recommendation{
					Channel:         "linkedin",
					Timing:          "immediate",
					MessageType:     "job_change_congratulations",
					Personalization: fmt.Sprintf("Congrats on the %s role at %s!", leadTitle(r), r.String(model.FieldCompany)),
				}
			}
		}
		return Recommendation{
			Channel:         "email",
			Timing:          "within_24h",
			MessageType:     "high_intent_personalized",
			Personalization: fmt.Sprintf("I noticed you've been researching %s...", firstTopic(r, "wealth management")),
		}
	case model.SignalWarm:
		return Recommendation{
			Channel:         "email",
			Timing:          "within_3_days",
			MessageType:     "intent_based_nurture",
			Personalization: fmt.Sprintf("Based on your interest in %s...", firstTopic(r, "investment advisory")),
		}
	}
	return Recommendation{Channel: "email", Timing: "weekly_nurture", MessageType: "educational_content"}
}

// SortByField stably sorts batch by a numeric field, highest first.
func SortByField(batch []model.Record, field string) {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Float(field) > batch[j].Float(field)
	})
}
