package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadflow/internal/model"
)

func TestPartnerCalculators(t *testing.T) {
	c := CalculatorsFor("partners")
	tests := []struct {
		name   string
		factor string
		rec    model.Record
		want   float64
	}{
		{"experience", "years_experience", model.Record{"years_experience": 12}, 60},
		{"experience capped", "years_experience", model.Record{"years_experience": 40}, 100},
		{"aum parsed", "aum_band", model.Record{"aum": "₹150 Cr"}, 100},
		{"aum small", "aum_band", model.Record{"aum": "5 cr"}, 20},
		{"aum mid", "aum_band", model.Record{"aum": "35 Cr"}, 70},
		{"aum missing", "aum_band", model.Record{}, 40},
		{"client base floor", "client_base", model.Record{"client_base": 50}, 30},
		{"client base", "client_base", model.Record{"client_base": 300}, 60},
		{"digital default", "digital_presence", model.Record{}, 50},
		{"digital given", "digital_presence", model.Record{"digital_presence": 85}, 85},
		{"engagement default", "engagement", model.Record{"engagement": 0}, 60},
		{"metro", "location_tier", model.Record{"location": "Bengaluru, India"}, 100},
		{"non metro", "location_tier", model.Record{"location": "Jaipur"}, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c[tt.factor](tt.rec), 0.001)
		})
	}
}

func TestHNICalculators(t *testing.T) {
	c := CalculatorsFor("hni")
	tests := []struct {
		name   string
		factor string
		rec    model.Record
		want   float64
	}{
		{"net worth", "net_worth_signal", model.Record{"net_worth_signal": 5e7}, 20},
		{"net worth capped", "net_worth_signal", model.Record{"net_worth_signal": 5e8}, 100},
		{"cfo", "role_seniority", model.Record{"job_title": "CFO"}, 100},
		{"founder", "role_seniority", model.Record{"job_title": "Co-Founder"}, 100},
		{"director", "role_seniority", model.Record{"job_title": "Director, Sales"}, 85},
		{"other role", "role_seniority", model.Record{"job_title": "Analyst"}, 70},
		{"no education", "education_pedigree", model.Record{}, 70},
		{"iim", "education_pedigree", model.Record{"education": "IIM Ahmedabad"}, 95},
		{"isb", "education_pedigree", model.Record{"education": "ISB Hyderabad"}, 90},
		{"wharton", "education_pedigree", model.Record{"education": "Wharton"}, 98},
		{"other school", "education_pedigree", model.Record{"education": "Delhi University"}, 80},
		{"pune", "geography_score", model.Record{"location": "Pune"}, 95},
		{"elsewhere", "geography_score", model.Record{"location": "Kochi"}, 75},
		{"investment default", "investment_activity", model.Record{}, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c[tt.factor](tt.rec), 0.001)
		})
	}
}

func TestUHNICalculators(t *testing.T) {
	c := CalculatorsFor("uhni")
	tests := []struct {
		name   string
		factor string
		rec    model.Record
		want   float64
	}{
		{"stake", "ownership_stake", model.Record{"ownership_stake": "60% promoter"}, 90},
		{"stake floor", "ownership_stake", model.Record{"ownership_stake": "10%"}, 50},
		{"stake missing", "ownership_stake", model.Record{}, 70},
		{"liquidity", "liquidity_events", model.Record{"liquidity_events": 3}, 60},
		{"liquidity floor", "liquidity_events", model.Record{}, 40},
		{"family office", "family_office_structure", model.Record{"family_office": true}, 95},
		{"no family office", "family_office_structure", model.Record{}, 70},
		{"philanthropy", "philanthropic_activity", model.Record{"philanthropy": 80}, 80},
		{"engagement linkedin", "engagement", model.Record{"linkedin_url": "https://linkedin.com/in/x"}, 70},
		{"engagement bare", "engagement", model.Record{}, 50},
		{"engagement floor", "engagement", model.Record{"engagement": 10}, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c[tt.factor](tt.rec), 0.001)
		})
	}
}

func TestMassAffluentCalculators(t *testing.T) {
	c := CalculatorsFor("mass_affluent")
	tests := []struct {
		name   string
		factor string
		rec    model.Record
		want   float64
	}{
		{"income", "income_band", model.Record{"income_band": 3e6}, 60},
		{"income floor", "income_band", model.Record{"income_band": 1e5}, 40},
		{"income cap", "income_band", model.Record{"income_band": 1e8}, 95},
		{"tier1", "geography_score", model.Record{"location": "Hyderabad"}, 90},
		{"chennai", "geography_score", model.Record{"location": "Chennai"}, 85},
		{"other", "geography_score", model.Record{"location": "Surat"}, 70},
		{"engagement default", "engagement", model.Record{}, 55},
		{"intent default", "intent_signal", model.Record{}, 50},
		{"history default", "investment_history", model.Record{}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c[tt.factor](tt.rec), 0.001)
		})
	}
}

func TestCalculatorsFor_Unknown(t *testing.T) {
	assert.Nil(t, CalculatorsFor("signals-hni"))
}
