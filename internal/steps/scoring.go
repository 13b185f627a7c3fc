package steps

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/dedupe"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/scoring"
)

type dedupeConfig struct {
	Key             string `yaml:"key"`
	AllowDuplicates *bool  `yaml:"allow_duplicates"`
}

func (c *dedupeConfig) Validate() error {
	switch c.Key {
	case "", "identity":
		return nil
	case "company":
		return eris.New("dedupe by company is not supported; identity keys are email, linkedin_url or lead_id")
	}
	return eris.Errorf("unknown dedupe key %q", c.Key)
}

type dedupeStep struct {
	pipeline.Base
	allow bool
}

func newDedupe(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	var cfg dedupeConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	allow := rc.Settings.AllowDuplicates
	if cfg.AllowDuplicates != nil {
		allow = *cfg.AllowDuplicates
	}
	return &dedupeStep{Base: pipeline.NewBase(desc, rc), allow: allow}, nil
}

// Execute drops records whose identity is already stored or claimed by
// this run, then claims the survivors.
func (s *dedupeStep) Execute(_ context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if s.allow {
		for _, k := range dedupe.Keys(batch) {
			rc.Claim(k)
		}
		rc.SetMetric("deduped", int64(len(batch)))
		return batch, nil
	}
	kept, dups := dedupe.Filter(batch, rc)
	for _, k := range dedupe.Keys(kept) {
		rc.Claim(k)
	}
	rc.Incr("duplicates", int64(dups))
	rc.SetMetric("deduped", int64(len(kept)))
	s.Logger().Info("steps: dedupe complete", zap.Int("kept", len(kept)), zap.Int("duplicates", dups))
	return kept, nil
}

type leadScoringStep struct {
	pipeline.Base
}

func newLeadScoring(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	if err := pipeline.DecodeConfig(desc, &struct{}{}); err != nil {
		return nil, err
	}
	if len(rc.Channel.Scoring.Weights) == 0 {
		return nil, configErr(desc, "channel has no scoring weights")
	}
	return &leadScoringStep{Base: pipeline.NewBase(desc, rc)}, nil
}

// Execute scores and tiers every record, highest score first.
func (s *leadScoringStep) Execute(_ context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	p := rc.Channel
	counts := map[model.Tier]int64{}
	for _, r := range batch {
		bd := scoring.ScoreProfile(r, p)
		tier := scoring.TierFor(bd.Score, p.Scoring.Thresholds)
		r[model.FieldLeadScore] = bd.Score
		r[model.FieldLeadTier] = string(tier)
		r["lead_score_breakdown"] = bd.Map()
		counts[tier]++
	}
	scoring.SortByField(batch, model.FieldLeadScore)

	rc.SetMetric("scored", int64(len(batch)))
	rc.SetMetric("hot", counts[model.TierHot])
	rc.SetMetric("warm", counts[model.TierWarm])
	rc.SetMetric("cold", counts[model.TierCold])
	s.Logger().Info("steps: scoring complete",
		zap.Int("scored", len(batch)),
		zap.Int64("hot", counts[model.TierHot]),
		zap.Int64("warm", counts[model.TierWarm]),
	)
	return batch, nil
}

type signalConfig struct {
	MinSignalScore int `yaml:"min_signal_score"`
}

func (c *signalConfig) Validate() error {
	if c.MinSignalScore < 0 || c.MinSignalScore > 100 {
		return eris.New("min_signal_score must be between 0 and 100")
	}
	return nil
}

type signalScoringStep struct {
	pipeline.Base
	cfg signalConfig
}

func newSignalScoring(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	var cfg signalConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	if rc.Channel.Signals == nil {
		return nil, configErr(desc, "channel has no signal configuration")
	}
	return &signalScoringStep{Base: pipeline.NewBase(desc, rc), cfg: cfg}, nil
}

// Execute scores intent signals, drops records under the minimum and
// sorts by signal score.
func (s *signalScoringStep) Execute(_ context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	now := rc.Now()
	out := make([]model.Record, 0, len(batch))
	tiers := map[string]int64{}
	var total int
	for _, r := range batch {
		res := scoring.SignalScore(r, rc.Channel.Signals, now)
		if res.Score < s.cfg.MinSignalScore {
			continue
		}
		triggers := make([]any, len(res.Triggers))
		for i, t := range res.Triggers {
			triggers[i] = map[string]any{"type": t.Type, "description": t.Description, "priority": t.Priority}
		}
		r[model.FieldSignalScore] = res.Score
		r[model.FieldSignalTier] = res.Tier
		r["signal_priority"] = res.Priority
		r["signal_breakdown"] = map[string]any{
			"scores":        res.Breakdown.Scores,
			"weights":       res.Breakdown.Weights,
			"recency_bonus": res.Breakdown.RecencyBonus,
			"trigger_bonus": res.Breakdown.TriggerBonus,
		}
		r["signal_triggers"] = triggers
		r["outreach_recommendation"] = map[string]any{
			"channel":         res.Recommendation.Channel,
			"timing":          res.Recommendation.Timing,
			"message_type":    res.Recommendation.MessageType,
			"personalization": res.Recommendation.Personalization,
		}
		tiers[res.Tier]++
		total += res.Score
		out = append(out, r)
	}
	scoring.SortByField(out, model.FieldSignalScore)

	avg := 0.0
	if len(out) > 0 {
		avg = model.Round(float64(total)/float64(len(out)), 1)
	}
	rc.SetMeta("signal_summary", map[string]any{
		"total":         len(out),
		"hot":           tiers[model.SignalHot],
		"warm":          tiers[model.SignalWarm],
		"cold":          tiers[model.SignalCold],
		"average_score": avg,
		"filtered_out":  len(batch) - len(out),
	})
	rc.SetMetric("signal_scored", int64(len(out)))
	rc.SetMetric("hot", tiers[model.SignalHot])
	rc.SetMetric("warm", tiers[model.SignalWarm])
	rc.SetMetric("cold", tiers[model.SignalCold])
	s.Logger().Info("steps: signal scoring complete",
		zap.Int("scored", len(out)),
		zap.Int("filtered", len(batch)-len(out)),
		zap.Float64("average", avg),
	)
	return out, nil
}
