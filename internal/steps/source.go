package steps

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/pkg/apify"
	"github.com/sells-group/leadflow/pkg/apollo"
)

type triggerConfig struct {
	Trigger string `yaml:"trigger"`
}

type triggerStep struct {
	pipeline.Base
	cfg triggerConfig
}

func newTrigger(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	cfg := triggerConfig{Trigger: "manual"}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &triggerStep{Base: pipeline.NewBase(desc, rc), cfg: cfg}, nil
}

// Execute stamps the run identity. A run id set by the caller is kept.
func (s *triggerStep) Execute(_ context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if rc.MetaString(pipeline.MetaRunID) == "" {
		rc.SetMeta(pipeline.MetaRunID, uuid.NewString())
	}
	rc.SetMeta(pipeline.MetaStartedAt, nowRFC3339(rc))
	rc.SetMeta(pipeline.MetaTrigger, s.cfg.Trigger)
	s.Logger().Info("steps: run triggered",
		zap.String("run_id", rc.MetaString(pipeline.MetaRunID)),
		zap.String("trigger", s.cfg.Trigger),
	)
	return batch, nil
}

type apifyConfig struct {
	ActorID    string `yaml:"actor_id"`
	SampleSize int    `yaml:"sample_size"`
	QueryLimit int    `yaml:"query_limit"`
	TestEmail  string `yaml:"test_email"`
}

type apifyStep struct {
	pipeline.Base
	cfg    apifyConfig
	client apify.Client
	poll   []apify.PollOption
}

func newApifyScrape(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	cfg := apifyConfig{QueryLimit: 1}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	cfg.SampleSize = defaultSize(cfg.SampleSize, rc, 25)
	if cfg.ActorID == "" {
		cfg.ActorID = rc.Channel.Scraping.ActorID
	}
	return &apifyStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.Apify, poll: d.ApifyPoll}, nil
}

// Execute scrapes live when it can and falls back to simulated leads on
// any failure or an empty result.
func (s *apifyStep) Execute(ctx context.Context, _ []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if !s.ShouldSimulate() && s.client != nil {
		leads, err := s.scrape(ctx)
		switch {
		case err != nil:
			s.Logger().Warn("steps: apify scrape failed, simulating", zap.Error(err))
		case len(leads) == 0:
			s.Logger().Warn("steps: apify returned no leads, simulating")
		default:
			rc.SetMetric("scraped", int64(len(leads)))
			s.Logger().Info("steps: scraped leads", zap.Int("count", len(leads)))
			return leads, nil
		}
	}

	sim := newSimulator(rc.Channel, seedFor(rc, s.Descriptor().ID), rc.Now())
	leads := make([]model.Record, 0, s.cfg.SampleSize)
	for i := 0; i < s.cfg.SampleSize; i++ {
		leads = append(leads, sim.profileLead(i, SourceApifySimulated))
	}
	if s.cfg.TestEmail != "" && len(leads) > 0 {
		leads[0][model.FieldEmail] = s.cfg.TestEmail
		leads[0][model.FieldDataSource] = "apify-test"
	}
	rc.SetMetric("scraped", int64(len(leads)))
	s.Logger().Info("steps: simulated scraped leads", zap.Int("count", len(leads)))
	return leads, nil
}

func (s *apifyStep) scrape(ctx context.Context) ([]model.Record, error) {
	sc := s.Context().Channel.Scraping
	if s.cfg.ActorID == "" {
		return nil, eris.Errorf("no actor configured for channel %s", s.Context().Channel.ID)
	}
	queries := sc.Queries
	if len(queries) == 0 {
		return nil, eris.Errorf("no queries configured for channel %s", s.Context().Channel.ID)
	}
	if s.cfg.QueryLimit > 0 && len(queries) > s.cfg.QueryLimit {
		queries = queries[:s.cfg.QueryLimit]
	}

	var out []model.Record
	for _, q := range queries {
		items, err := apify.RunActor(ctx, s.client, s.cfg.ActorID, substituteQuery(sc.Input, q), s.cfg.SampleSize, s.poll...)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			out = append(out, normalizeApifyItem(item, q, s.Context().Channel.ID))
		}
		if len(out) >= s.cfg.SampleSize {
			break
		}
	}
	if len(out) > s.cfg.SampleSize {
		out = out[:s.cfg.SampleSize]
	}
	return out, nil
}

// substituteQuery replaces {{query}} in every string of the actor input.
func substituteQuery(v any, query string) any {
	switch t := v.(type) {
	case string:
		return strings.ReplaceAll(t, "{{query}}", query)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = substituteQuery(item, query)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = substituteQuery(item, query)
		}
		return out
	}
	return v
}

func firstOf(r model.Record, paths ...string) string {
	for _, p := range paths {
		if v, ok := r.Path(p); ok {
			if s := model.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func normalizeApifyItem(item map[string]any, query, channelID string) model.Record {
	it := model.Record(item)
	first := firstOf(it, "firstName", "first_name")
	last := firstOf(it, "lastName", "last_name")
	name := firstOf(it, "name")
	if name == "" {
		name = strings.TrimSpace(first + " " + last)
	}
	id := firstOf(it, "id", "profileId")
	if id == "" {
		id = channelID + "-" + uuid.NewString()[:10]
	}
	linkedin := firstOf(it, "linkedinUrl", "linkedinProfile", "linkedin")
	if linkedin == "" {
		linkedin = "https://www.linkedin.com/search/results/all/?keywords=" + url.QueryEscape(query)
	}
	r := model.Record{
		model.FieldLeadID:     id,
		model.FieldName:       name,
		model.FieldTitle:      firstOf(it, "title", "position", "jobTitle"),
		model.FieldCompany:    firstOf(it, "organizationName", "companyName", "company"),
		model.FieldEmail:      firstOf(it, "email", "emails[0]"),
		"phone":               firstOf(it, "phone", "phones[0]"),
		model.FieldLinkedIn:   linkedin,
		"website":             firstOf(it, "organizationWebsite", "website"),
		model.FieldLocation:   firstOf(it, "location", "city", "region"),
		"industry":            firstOf(it, "organizationIndustry", "industry"),
		model.FieldDataSource: "apify-apollo",
		"raw_enrichment":      item,
	}
	if first != "" {
		r[model.FieldFirstName] = first
	}
	if last != "" {
		r[model.FieldLastName] = last
	}
	return r
}

type apolloSearchConfig struct {
	SampleSize int    `yaml:"sample_size"`
	PerPage    int    `yaml:"per_page"`
	Keywords   string `yaml:"keywords"`
	Seed       uint64 `yaml:"seed"`
}

type apolloSearchStep struct {
	pipeline.Base
	cfg    apolloSearchConfig
	client apollo.Client
	intent bool
}

func newApolloSearch(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	return newSourcing(desc, rc, d, false)
}

func newIntentSignals(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	return newSourcing(desc, rc, d, true)
}

func newSourcing(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps, intent bool) (pipeline.Step, error) {
	cfg := apolloSearchConfig{PerPage: 50}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	cfg.SampleSize = defaultSize(cfg.SampleSize, rc, 10)
	if cfg.PerPage <= 0 || cfg.PerPage > 100 {
		return nil, configErr(desc, "per_page must be between 1 and 100")
	}
	if intent && rc.Channel.Signals == nil {
		return nil, configErr(desc, "channel "+rc.Channel.ID+" has no signal configuration")
	}
	return &apolloSearchStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.Apollo, intent: intent}, nil
}

func (s *apolloSearchStep) request() apollo.SearchRequest {
	req := apollo.SearchRequest{Keywords: s.cfg.Keywords}
	if sig := s.Context().Channel.Signals; sig != nil {
		req.PersonTitles = sig.Titles
		req.PersonSeniorities = sig.Seniorities
		req.PersonLocations = sig.Locations
		req.EmployeeRanges = sig.EmployeeRanges
		req.KeywordTags = sig.Industries
		if s.intent {
			req.IntentTopics = sig.Topics
			req.IntentStrength = []string{"high", "medium"}
		}
	}
	return req
}

// Execute sources leads from Apollo. Rate limiting and auth failures fall
// back to simulation; other provider errors on the first page fail the
// step.
func (s *apolloSearchStep) Execute(ctx context.Context, _ []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if !s.ShouldSimulate() && s.client != nil {
		leads, err := s.search(ctx)
		switch {
		case err == nil:
			rc.SetMetric("sourced", int64(len(leads)))
			s.Logger().Info("steps: sourced leads from apollo", zap.Int("count", len(leads)))
			return leads, nil
		case resilience.IsRateLimited(err) || resilience.IsAuthInvalid(err):
			s.Logger().Warn("steps: apollo unavailable, simulating", zap.Error(err))
		default:
			return nil, err
		}
	} else if !s.ShouldSimulate() {
		s.Logger().Warn("steps: apollo not configured, simulating")
	}

	seed := s.cfg.Seed
	if seed == 0 {
		seed = seedFor(rc, s.Descriptor().ID)
	}
	sim := newSimulator(rc.Channel, seed, rc.Now())
	leads := make([]model.Record, 0, s.cfg.SampleSize)
	for i := 0; i < s.cfg.SampleSize; i++ {
		if s.intent {
			leads = append(leads, sim.signalLead(i))
		} else {
			leads = append(leads, sim.profileLead(i, SourceApolloSimulated))
		}
	}
	rc.SetMetric("sourced", int64(len(leads)))
	s.Logger().Info("steps: simulated sourced leads", zap.Int("count", len(leads)), zap.Bool("intent", s.intent))
	return leads, nil
}

func (s *apolloSearchStep) search(ctx context.Context) ([]model.Record, error) {
	req := s.request()
	var out []model.Record
	for page := 1; len(out) < s.cfg.SampleSize; page++ {
		req.Page = page
		req.PerPage = min(s.cfg.PerPage, s.cfg.SampleSize-len(out))

		var resp *apollo.SearchResponse
		var err error
		if s.intent {
			resp, err = s.client.SearchIntent(ctx, req)
		} else {
			resp, err = s.client.SearchPeople(ctx, req)
		}
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.Logger().Warn("steps: apollo page failed, keeping earlier pages", zap.Int("page", page), zap.Error(err))
			break
		}
		for _, p := range resp.People {
			out = append(out, personRecord(p))
		}
		if len(resp.People) == 0 || (resp.Pagination.TotalPages > 0 && page >= resp.Pagination.TotalPages) {
			break
		}
	}
	if len(out) > s.cfg.SampleSize {
		out = out[:s.cfg.SampleSize]
	}
	return out, nil
}

// personRecord maps an Apollo person onto lead fields.
func personRecord(p apollo.Person) model.Record {
	src := model.Record(p)
	org := src.Map("organization")
	r := model.Record{
		model.FieldFirstName:  src.String("first_name"),
		model.FieldLastName:   src.String("last_name"),
		model.FieldEmail:      src.String("email"),
		model.FieldLinkedIn:   src.String("linkedin_url"),
		"title":               src.String("title"),
		model.FieldTitle:      src.String("title"),
		"seniority":           src.String("seniority"),
		"phone":               firstOf(src, "phone_numbers[0].sanitized_number", "phone_numbers[0].raw_number"),
		"city":                src.String("city"),
		"state":               src.String("state"),
		"country":             src.String("country"),
		"apollo_person_id":    src.String("id"),
		model.FieldDataSource: "apollo",
	}
	r[model.FieldName] = src.String("name")
	if !r.Has(model.FieldName) {
		r[model.FieldName] = strings.TrimSpace(r.String(model.FieldFirstName) + " " + r.String(model.FieldLastName))
	}
	r[model.FieldCompany] = firstOf(src, "organization_name", "organization.name")
	r[model.FieldLocation] = joinNonEmpty(", ", r.String("city"), r.String("state"), r.String("country"))
	if len(org) > 0 {
		r["industry"] = org.String("industry")
		r["organization"] = map[string]any{
			"name":           org.String("name"),
			"domain":         org.String("primary_domain"),
			"employee_count": org["estimated_num_employees"],
			"revenue":        org["estimated_annual_revenue"],
			"industry":       org.String("industry"),
			"technologies":   org["technologies"],
		}
	}
	for _, k := range []string{"intent_topics", "intent_strength", "intent_signals_count", "intent_last_seen"} {
		if v, ok := src[k]; ok && v != nil {
			r[k] = v
		}
	}
	return r
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
