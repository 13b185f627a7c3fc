package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/leadflow/internal/model"
)

// Calculator computes one factor's sub-score (0-100) from a record.
type Calculator func(r model.Record) float64

// Calculators maps factor names to sub-score functions for one base channel.
type Calculators map[string]Calculator

var (
	aumPattern   = regexp.MustCompile(`(?i)(\d+)\s*Cr`)
	firstInteger = regexp.MustCompile(`\d+`)

	partnerMetros = []string{"mumbai", "delhi", "bengaluru", "bangalore"}
	tier1Metros   = []string{"mumbai", "delhi", "bengaluru", "bangalore", "pune", "hyderabad"}
)

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pct(v float64) float64 { return clamp(v, 0, 100) }

// orDefault returns the field's value, or def when it is missing or zero.
func orDefault(r model.Record, field string, def float64) float64 {
	if v := r.Float(field); v != 0 {
		return v
	}
	return def
}

func containsAny(s string, needles []string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

var partnerCalculators = Calculators{
	"years_experience": func(r model.Record) float64 {
		return pct(r.Float("years_experience") * 5)
	},
	"aum_band": func(r model.Record) float64 {
		m := aumPattern.FindStringSubmatch(r.String("aum"))
		if m == nil {
			return 40
		}
		n, _ := strconv.Atoi(m[1])
		return clamp(float64(n)/5*10, 20, 100)
	},
	"client_base": func(r model.Record) float64 {
		return clamp(r.Float("client_base")/5, 30, 100)
	},
	"digital_presence": func(r model.Record) float64 { return pct(orDefault(r, "digital_presence", 50)) },
	"engagement":       func(r model.Record) float64 { return pct(orDefault(r, "engagement", 60)) },
	"location_tier": func(r model.Record) float64 {
		if containsAny(r.String(model.FieldLocation), partnerMetros) {
			return 100
		}
		return 70
	},
}

var hniCalculators = Calculators{
	"net_worth_signal": func(r model.Record) float64 {
		return pct(r.Float("net_worth_signal") / 1e7 * 4)
	},
	"role_seniority": func(r model.Record) float64 {
		title := r.String(model.FieldTitle)
		switch {
		case containsAny(title, []string{"cfo", "ceo", "founder"}):
			return 100
		case containsAny(title, []string{"vp", "director"}):
			return 85
		}
		return 70
	},
	"education_pedigree": func(r model.Record) float64 {
		edu := r.String("education")
		switch {
		case edu == "":
			return 70
		case containsAny(edu, []string{"iit", "iim"}):
			return 95
		case containsAny(edu, []string{"isb"}):
			return 90
		case containsAny(edu, []string{"harvard", "wharton"}):
			return 98
		}
		return 80
	},
	"investment_activity": func(r model.Record) float64 { return pct(orDefault(r, "investment_activity", 60)) },
	"geography_score": func(r model.Record) float64 {
		if containsAny(r.String(model.FieldLocation), tier1Metros) {
			return 95
		}
		return 75
	},
	"engagement": func(r model.Record) float64 { return pct(orDefault(r, "engagement", 60)) },
}

var uhniCalculators = Calculators{
	"ownership_stake": func(r model.Record) float64 {
		m := firstInteger.FindString(r.String("ownership_stake"))
		if m == "" {
			return 70
		}
		n, _ := strconv.Atoi(m)
		return clamp(float64(n)*1.5, 50, 100)
	},
	"liquidity_events": func(r model.Record) float64 {
		return clamp(r.Float("liquidity_events")*20, 40, 100)
	},
	"family_office_structure": func(r model.Record) float64 {
		if r.Bool("family_office") {
			return 95
		}
		return 70
	},
	"philanthropic_activity": func(r model.Record) float64 { return pct(orDefault(r, "philanthropy", 60)) },
	"international_presence": func(r model.Record) float64 { return pct(orDefault(r, "international_presence", 60)) },
	"engagement": func(r model.Record) float64 {
		def := 50.0
		if r.Has(model.FieldLinkedIn) {
			def = 70
		}
		return clamp(orDefault(r, "engagement", def), 40, 100)
	},
}

var massAffluentCalculators = Calculators{
	"income_band": func(r model.Record) float64 {
		return clamp(r.Float("income_band")/1e5*2, 40, 95)
	},
	"digital_behavior":   func(r model.Record) float64 { return pct(orDefault(r, "digital_behavior", 60)) },
	"investment_history": func(r model.Record) float64 { return pct(orDefault(r, "investment_history", 50)) },
	"geography_score": func(r model.Record) float64 {
		loc := r.String(model.FieldLocation)
		switch {
		case containsAny(loc, tier1Metros):
			return 90
		case containsAny(loc, []string{"chennai"}):
			return 85
		}
		return 70
	},
	"engagement":    func(r model.Record) float64 { return pct(orDefault(r, "engagement", 55)) },
	"intent_signal": func(r model.Record) float64 { return pct(orDefault(r, "intent_signal", 50)) },
}

var calculatorsByBase = map[string]Calculators{
	"partners":      partnerCalculators,
	"hni":           hniCalculators,
	"uhni":          uhniCalculators,
	"mass_affluent": massAffluentCalculators,
}

// CalculatorsFor returns the sub-score functions for a base channel, or nil
// when the base has none.
func CalculatorsFor(base string) Calculators {
	return calculatorsByBase[base]
}
