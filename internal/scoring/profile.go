// Package scoring computes profile scores, tiers and intent-signal scores
// for lead records. Every scorer is a pure function of its inputs.
package scoring

import (
	"sort"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
)

// Factor is one weighted component of a profile score.
type Factor struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Score    float64 `json:"score"`
	Weighted float64 `json:"weighted"`
	Missing  bool    `json:"missing,omitempty"`
}

// Breakdown is a profile score with its per-factor detail.
type Breakdown struct {
	Score   float64  `json:"score"`
	Factors []Factor `json:"factors"`
}

// Map renders the breakdown for storage on a record.
func (b Breakdown) Map() map[string]any {
	factors := make(map[string]any, len(b.Factors))
	for _, f := range b.Factors {
		entry := map[string]any{"score": f.Score, "weight": f.Weight}
		if f.Missing {
			entry["missing"] = true
		}
		factors[f.Name] = entry
	}
	return map[string]any{"score": b.Score, "factors": factors}
}

// ProfileScore computes clamp(Σ weight/100 × subscore, 0, 100) rounded to
// two decimals. Weights are percent points and are not renormalized when
// they do not sum to 100. A factor with no calculator contributes 0.
func ProfileScore(r model.Record, weights map[string]float64, calcs Calculators) Breakdown {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var total float64
	factors := make([]Factor, 0, len(names))
	for _, name := range names {
		w := weights[name]
		f := Factor{Name: name, Weight: w}
		if fn, ok := calcs[name]; ok {
			f.Score = fn(r)
			f.Weighted = w / 100 * f.Score
			total += f.Weighted
		} else {
			f.Missing = true
		}
		factors = append(factors, f)
	}
	return Breakdown{Score: model.Round(clamp(total, 0, 100), 2), Factors: factors}
}

// ScoreProfile scores r with p's weights and its base channel's calculators.
func ScoreProfile(r model.Record, p *channel.Profile) Breakdown {
	return ProfileScore(r, p.Scoring.Weights, CalculatorsFor(p.BaseID()))
}

// TierFor classifies score against the thresholds.
func TierFor(score float64, th channel.Thresholds) model.Tier {
	switch {
	case score >= th.Hot:
		return model.TierHot
	case score >= th.Warm:
		return model.TierWarm
	}
	return model.TierCold
}
