package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) string {
	return now.AddDate(0, 0, -n).Format(time.RFC3339)
}

func hniSignals(t *testing.T) *channel.Signals {
	t.Helper()
	p := builtin(t, "signals-hni")
	require.NotNil(t, p.Signals)
	return p.Signals
}

func TestSignalScore_WorkedExample(t *testing.T) {
	rec := model.Record{
		"intent_strength":      "high",
		"intent_signals_count": 3,
		"intent_topics":        []any{"wealth management", "tax planning"},
		"job_title":            "Founder & CEO",
		"seniority":            "founder",
		"organization": map[string]any{
			"employee_count": 300,
			"revenue":        2e7,
			"industry":       "Private Equity",
			"hiring_spike":   true,
		},
		"email_opened":     true,
		"website_visits":   2,
		"intent_last_seen": daysAgo(3),
		"lead_score":       90.0,
	}
	res := SignalScore(rec, hniSignals(t), now)

	// intent 100×.25 + title 100×.25 + wealth 0 + company 100×.10 + engagement 30×.10
	// = 63, + recency 10 + hiring spike 5.
	assert.Equal(t, 78, res.Score)
	assert.Equal(t, model.SignalHot, res.Tier)
	assert.Equal(t, 2, res.Priority) // 78×.6 + 90×.4 = 82.8
	assert.Equal(t, 100.0, res.Breakdown.Scores["intent"])
	assert.Equal(t, 30.0, res.Breakdown.Scores["engagement"])
	assert.Equal(t, 10.0, res.Breakdown.RecencyBonus)
	assert.Equal(t, 5.0, res.Breakdown.TriggerBonus)

	require.Len(t, res.Triggers, 1)
	assert.Equal(t, "high_intent", res.Triggers[0].Type)
	assert.Equal(t, "email", res.Recommendation.Channel)
	assert.Equal(t, "within_24h", res.Recommendation.Timing)
	assert.Contains(t, res.Recommendation.Personalization, "wealth management")
}

func TestSignalScore_CappedAt100(t *testing.T) {
	rec := model.Record{
		"intent_strength":     "high",
		"job_title":           "CEO",
		"seniority":           "c_suite",
		"intent_last_seen":    daysAgo(1),
		"job_change_date":     daysAgo(10),
		"company":             "Acme",
		"estimated_net_worth": 3e7,
		"organization":        map[string]any{"recent_funding": true, "hiring_spike": "true"},
	}
	res := SignalScore(rec, hniSignals(t), now)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, "linkedin", res.Recommendation.Channel)
	assert.Equal(t, "immediate", res.Recommendation.Timing)
	assert.Equal(t, "Congrats on the CEO role at Acme!", res.Recommendation.Personalization)
}

func TestSignalScore_EmptyRecord(t *testing.T) {
	res := SignalScore(model.Record{}, hniSignals(t), now)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, model.SignalCold, res.Tier)
	assert.Equal(t, 4, res.Priority)
	assert.Empty(t, res.Triggers)
	assert.Equal(t, "weekly_nurture", res.Recommendation.Timing)
}

func TestSignalScore_NilConfig(t *testing.T) {
	res := SignalScore(model.Record{"intent_strength": "high"}, nil, now)
	assert.Equal(t, 0, res.Score, "no weights means no weighted contribution")
}

func TestSignalTier(t *testing.T) {
	assert.Equal(t, model.SignalHot, SignalTier(70))
	assert.Equal(t, model.SignalWarm, SignalTier(69))
	assert.Equal(t, model.SignalWarm, SignalTier(40))
	assert.Equal(t, model.SignalCold, SignalTier(39))
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 1, Priority(100, model.Record{"lead_score": 80}))
	assert.Equal(t, 3, Priority(60, model.Record{"icp_score": 50}))
	assert.Equal(t, 4, Priority(50, model.Record{}))
}

func TestRecencyAndTriggerBonus(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{0, 10}, {7, 10}, {8, 5}, {30, 5}, {31, 2}, {90, 2}, {91, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, recencyBonus(model.Record{"intent_last_seen": daysAgo(tt.days)}, now), "days %d", tt.days)
	}
	assert.Equal(t, 15.0, triggerBonus(model.Record{"job_change_date": daysAgo(30)}, now))
	assert.Equal(t, 10.0, triggerBonus(model.Record{"job_change_date": daysAgo(60)}, now))
	assert.Equal(t, 0.0, triggerBonus(model.Record{"job_change_date": daysAgo(120)}, now))
}

func TestScoreWealth(t *testing.T) {
	cfg := &channel.Signals{NetWorth: channel.Range{Min: 1e6, Max: 3e6}}
	assert.Equal(t, 0.0, scoreWealth(model.Record{}, cfg))
	assert.Equal(t, 70.0, scoreWealth(model.Record{"estimated_net_worth": 1e6}, cfg))
	assert.Equal(t, 85.0, scoreWealth(model.Record{"estimated_net_worth": 2e6}, cfg))
	assert.Equal(t, 25.0, scoreWealth(model.Record{"estimated_net_worth": 5e5}, cfg))
	assert.Equal(t, 100.0, scoreWealth(model.Record{"estimated_net_worth": 9e6}, cfg))

	open := &channel.Signals{NetWorth: channel.Range{Min: 3e7}}
	assert.Equal(t, 70.0, scoreWealth(model.Record{"estimated_net_worth": 5e8}, open))
}

func TestScoreCompany_EmployeeRanges(t *testing.T) {
	cfg := &channel.Signals{EmployeeRanges: []string{"11,50", "10001,"}}
	rec := func(n int) model.Record {
		return model.Record{"organization": map[string]any{"employee_count": n}}
	}
	assert.Equal(t, 40.0, scoreCompany(rec(20), cfg))
	assert.Equal(t, 40.0, scoreCompany(rec(50000), cfg), "empty max is unbounded")
	assert.Equal(t, 20.0, scoreCompany(rec(500), cfg))
	assert.Equal(t, 0.0, scoreCompany(model.Record{}, cfg))
}

func TestScoreGeography(t *testing.T) {
	cfg := &channel.Signals{Locations: []string{"Mumbai, India"}}
	assert.Equal(t, 50.0, scoreGeography(model.Record{}, cfg))
	assert.Equal(t, 100.0, scoreGeography(model.Record{"city": "Mumbai", "country": "India"}, cfg))
	assert.Equal(t, 70.0, scoreGeography(model.Record{"location": "Kochi, India"}, cfg))
	assert.Equal(t, 30.0, scoreGeography(model.Record{"location": "Dubai"}, cfg))
}

func TestSortByFieldIsStableDescending(t *testing.T) {
	batch := []model.Record{
		{"id": 1, "lead_score": 50.0},
		{"id": 2, "lead_score": 90.0},
		{"id": 3, "lead_score": 50.0},
	}
	SortByField(batch, "lead_score")
	assert.Equal(t, 2, batch[0]["id"])
	assert.Equal(t, 1, batch[1]["id"])
	assert.Equal(t, 3, batch[2]["id"])
}
