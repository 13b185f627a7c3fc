package steps

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/pkg/apollo"
)

// Enrichment states written to enrichment_status.
const (
	EnrichSuccess   = "success"
	EnrichFailed    = "failed"
	EnrichSimulated = "simulated"
)

type enrichConfig struct {
	BatchSize            int  `yaml:"batch_size"`
	RevealPersonalEmails bool `yaml:"reveal_personal_emails"`
	RevealPhoneNumber    bool `yaml:"reveal_phone_number"`
}

func (c *enrichConfig) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > apollo.MaxBulkMatch {
		return errBatchSize
	}
	return nil
}

type enrichStep struct {
	pipeline.Base
	cfg    enrichConfig
	client apollo.Client
}

func newApolloEnrich(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	cfg := enrichConfig{BatchSize: apollo.MaxBulkMatch}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &enrichStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.Apollo}, nil
}

// Execute enriches the batch in bulk chunks. A failed chunk marks its
// records failed and the run continues.
func (s *enrichStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if s.ShouldSimulate() || s.client == nil {
		for _, r := range batch {
			r["enrichment_status"] = EnrichSimulated
		}
		rc.Incr("enriched", int64(len(batch)))
		s.Logger().Info("steps: simulated enrichment", zap.Int("count", len(batch)))
		return batch, nil
	}

	var enriched, failed int
	for start := 0; start < len(batch); start += s.cfg.BatchSize {
		chunk := batch[start:min(start+s.cfg.BatchSize, len(batch))]
		reqs := make([]apollo.MatchRequest, len(chunk))
		for i, r := range chunk {
			reqs[i] = apollo.MatchRequest{
				Email:                r.String(model.FieldEmail),
				LinkedInURL:          r.String(model.FieldLinkedIn),
				FirstName:            r.String(model.FieldFirstName),
				LastName:             r.String(model.FieldLastName),
				OrganizationName:     r.String(model.FieldCompany),
				RevealPersonalEmails: s.cfg.RevealPersonalEmails,
				RevealPhoneNumber:    s.cfg.RevealPhoneNumber,
			}
		}

		resp, err := s.client.BulkEnrich(ctx, reqs)
		if err != nil {
			s.Logger().Warn("steps: bulk enrichment failed", zap.Int("offset", start), zap.Error(err))
			for _, r := range chunk {
				r["enrichment_status"] = EnrichFailed
				r["enrichment_error"] = err.Error()
			}
			failed += len(chunk)
			continue
		}
		for i, r := range chunk {
			if i >= len(resp.Matches) || len(resp.Matches[i]) == 0 {
				r["enrichment_status"] = EnrichFailed
				r["enrichment_error"] = "no match"
				failed++
				continue
			}
			mergePerson(r, resp.Matches[i], nowRFC3339(rc))
			enriched++
		}
	}

	rc.Incr("enriched", int64(enriched))
	rc.Incr("enrichment_failed", int64(failed))
	s.Logger().Info("steps: enrichment complete", zap.Int("enriched", enriched), zap.Int("failed", failed))
	return batch, nil
}

// mergePerson folds an Apollo match into r. Empty Apollo values never
// erase what r already has.
func mergePerson(r model.Record, p apollo.Person, at string) {
	src := model.Record(p)
	org := src.Map("organization")
	upd := map[string]any{
		model.FieldFirstName: src.String("first_name"),
		model.FieldLastName:  src.String("last_name"),
		model.FieldName:      src.String("name"),
		model.FieldEmail:     src.String("email"),
		"phone":              firstOf(src, "phone_numbers[0].sanitized_number"),
		model.FieldTitle:     src.String("title"),
		"seniority":          src.String("seniority"),
		model.FieldCompany:   org.String("name"),
		"company_domain":     org.String("primary_domain"),
		"company_industry":   org.String("industry"),
		"city":               src.String("city"),
		"state":              src.String("state"),
		"country":            src.String("country"),
		model.FieldLinkedIn:  src.String("linkedin_url"),
		"apollo_person_id":   src.String("id"),
	}
	for k, v := range upd {
		if s, _ := v.(string); strings.TrimSpace(s) == "" {
			delete(upd, k)
		}
	}
	if n, ok := model.ToFloat(org["estimated_num_employees"]); ok && n > 0 {
		upd["company_size"] = n
	}
	if loc := joinNonEmpty(", ", src.String("city"), src.String("state"), src.String("country")); loc != "" {
		upd[model.FieldLocation] = loc
	}
	confidence := 75
	if src.String("email_status") == "verified" {
		confidence = 100
	}
	upd["apollo_confidence_score"] = confidence
	upd["enrichment_status"] = EnrichSuccess
	upd["enrichment_source"] = "apollo"
	upd["enrichment_date"] = at
	r.Merge(upd)
	delete(r, "enrichment_error")
}
