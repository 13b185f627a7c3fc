package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Merge(t *testing.T) {
	t.Parallel()

	r := Record{"email": "a@x.com", "company": "Acme", "lead_score": 40.0}
	r.Merge(map[string]any{"company": "Acme Corp", "email": nil, "lead_tier": "Warm"})

	assert.Equal(t, "a@x.com", r["email"], "nil must not erase")
	assert.Equal(t, "Acme Corp", r["company"])
	assert.Equal(t, "Warm", r["lead_tier"])
	assert.Equal(t, 40.0, r["lead_score"])
}

func TestRecord_Accessors(t *testing.T) {
	t.Parallel()

	r := Record{
		"years":    "12",
		"visits":   3,
		"opened":   "yes",
		"clicked":  true,
		"seen":     "2026-10-01",
		"topics":   []any{"tax planning", "estate planning"},
		"org":      map[string]any{"name": "Acme", "tags": []any{"fin"}},
		"blank":    "   ",
		"nothing":  nil,
		"revenue":  1.5e7,
		"nan_text": "n/a",
	}

	assert.Equal(t, 12.0, r.Float("years"))
	assert.Equal(t, 3, r.Int("visits"))
	assert.Equal(t, 0.0, r.Float("nan_text"))
	assert.True(t, r.Bool("opened"))
	assert.True(t, r.Bool("clicked"))
	assert.False(t, r.Bool("missing"))
	assert.Equal(t, "15000000", r.String("revenue"))

	seen, ok := r.Time("seen")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), seen)

	assert.Equal(t, []string{"tax planning", "estate planning"}, r.Strings("topics"))
	assert.Equal(t, 2, r.Len("topics"))
	assert.Equal(t, "Acme", r.Map("org").String("name"))
	assert.NotNil(t, r.Map("missing"))

	assert.False(t, r.Has("blank"))
	assert.False(t, r.Has("nothing"))
	assert.True(t, r.Has("years"))
}

func TestRecord_Path(t *testing.T) {
	t.Parallel()

	r := Record{
		"name": "Priya",
		"organization": map[string]any{
			"name":      "Elevate Capital",
			"locations": []any{map[string]any{"city": "Pune"}},
		},
		"emails": []string{"p@x.com", "priya@y.com"},
	}

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"name", "Priya", true},
		{"organization.name", "Elevate Capital", true},
		{"organization.locations[0].city", "Pune", true},
		{"emails[1]", "priya@y.com", true},
		{"emails[5]", nil, false},
		{"organization.missing", nil, false},
		{"name.first", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := r.Path(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRound(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 72.35, Round(72.346, 2))
	assert.Equal(t, 70.0, Round(69.5, 0))
}
