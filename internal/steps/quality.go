package steps

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/leadflow/internal/filter"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
)

var errBatchSize = errors.New("batch_size must be between 1 and 10")

type qualityConfig struct {
	RequiredFields []string    `yaml:"required_fields"`
	Filter         filter.Expr `yaml:"filter"`
	MinSignalScore float64     `yaml:"min_signal_score"`
	SignalTiers    []string    `yaml:"signal_tiers"`
}

func (c *qualityConfig) Validate() error {
	return c.Filter.Validate()
}

type qualityStep struct {
	pipeline.Base
	cfg qualityConfig
}

func newDataQuality(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	var cfg qualityConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &qualityStep{Base: pipeline.NewBase(desc, rc), cfg: cfg}, nil
}

// Execute normalizes contact fields and drops records that fail the
// required fields, the filter or the signal gates.
func (s *qualityStep) Execute(_ context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	out := make([]model.Record, 0, len(batch))
	var invalid int
	for _, r := range batch {
		normalize(r, rc)
		if err := s.check(r); err != nil {
			invalid++
			s.Logger().Debug("steps: record rejected",
				zap.String("lead", model.IdentityKey(r)), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	rc.SetMetric("cleaned", int64(len(out)))
	rc.Incr("invalid", int64(invalid))
	s.Logger().Info("steps: data quality complete", zap.Int("kept", len(out)), zap.Int("invalid", invalid))
	return out, nil
}

func (s *qualityStep) check(r model.Record) error {
	for _, f := range s.cfg.RequiredFields {
		if _, ok := r.Path(f); !ok || !hasValue(r, f) {
			return &pipeline.ValidationError{Field: f, Reason: "required"}
		}
	}
	if s.cfg.MinSignalScore > 0 && r.Float(model.FieldSignalScore) < s.cfg.MinSignalScore {
		return &pipeline.ValidationError{Field: model.FieldSignalScore, Reason: "below minimum"}
	}
	if len(s.cfg.SignalTiers) > 0 && !contains(s.cfg.SignalTiers, r.String(model.FieldSignalTier)) {
		return &pipeline.ValidationError{Field: model.FieldSignalTier, Reason: "tier not accepted"}
	}
	if !s.cfg.Filter.IsZero() && !s.cfg.Filter.Match(r) {
		return &pipeline.ValidationError{Field: "filter", Reason: "no match"}
	}
	return nil
}

func hasValue(r model.Record, path string) bool {
	v, _ := r.Path(path)
	return strings.TrimSpace(model.ToString(v)) != ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// normalize cleans contact fields in place.
func normalize(r model.Record, rc *pipeline.RunContext) {
	for _, f := range []string{model.FieldName, model.FieldTitle, model.FieldCompany, model.FieldLocation} {
		if v, ok := r[f].(string); ok {
			r[f] = strings.TrimSpace(v)
		}
	}
	if email, ok := r[model.FieldEmail].(string); ok {
		r[model.FieldEmail] = strings.ToLower(strings.TrimSpace(email))
	}
	if name := r.String(model.FieldName); name != "" {
		r[model.FieldName] = cases.Title(language.Und).String(name)
	}
	if phone := r.String("phone"); phone != "" {
		r["phone"] = normalizePhone(phone)
	}
	if site := strings.TrimSpace(r.String("website")); site != "" && !strings.Contains(site, "://") {
		r["website"] = "https://" + site
	}
	r[model.FieldChannel] = rc.Channel.Name
	if !r.Has("scraped_at") {
		r["scraped_at"] = nowRFC3339(rc)
	}
}

// normalizePhone keeps digits and a leading plus.
func normalizePhone(s string) string {
	var b strings.Builder
	for i, c := range strings.TrimSpace(s) {
		if c >= '0' && c <= '9' || (c == '+' && i == 0) {
			b.WriteRune(c)
		}
	}
	return b.String()
}
