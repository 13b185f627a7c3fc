package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/filter"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/pkg/heygen"
)

// Writer drafts text from a system and user prompt. The anthropic and
// gemini generators satisfy it.
type Writer interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Chain returns a Writer that tries each writer in order and returns the
// first non-empty draft. Nil writers are skipped.
func Chain(writers ...Writer) Writer {
	var ws []Writer
	for _, w := range writers {
		if w != nil {
			ws = append(ws, w)
		}
	}
	switch len(ws) {
	case 0:
		return nil
	case 1:
		return ws[0]
	}
	return chain(ws)
}

type chain []Writer

func (c chain) Name() string {
	names := make([]string, len(c))
	for i, w := range c {
		names[i] = w.Name()
	}
	return strings.Join(names, ",")
}

func (c chain) Generate(ctx context.Context, system, prompt string) (string, error) {
	var errs []error
	for _, w := range c {
		out, err := w.Generate(ctx, system, prompt)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if err == nil {
			err = eris.Errorf("%s: empty draft", w.Name())
		}
		errs = append(errs, err)
	}
	return "", eris.Errorf("steps: every writer failed: %v", errs)
}

// draft asks w for text and falls back to the template result. It reports
// which source produced the text.
func draft(ctx context.Context, log *zap.Logger, w Writer, system, prompt, fallback string) (string, string) {
	if w == nil {
		return fallback, "template"
	}
	out, err := w.Generate(ctx, system, prompt)
	if err != nil || strings.TrimSpace(out) == "" {
		log.Warn("steps: writer failed, using template", zap.String("writer", w.Name()), zap.Error(err))
		return fallback, "template"
	}
	return strings.TrimSpace(out), w.Name()
}

const videoSystem = "You write 60 second personalized video scripts for a wealth advisory firm. " +
	"Speak directly to the prospect, mention one specific detail about them, and end with a single clear invitation to talk. " +
	"Return only the spoken script."

func videoPrompt(r model.Record, channelName string) string {
	return fmt.Sprintf("Prospect: %s\nTitle: %s\nCompany: %s\nLocation: %s\nSegment: %s\nScore: %.0f",
		r.String(model.FieldName), r.String(model.FieldTitle), r.String(model.FieldCompany),
		r.String(model.FieldLocation), channelName, leadScore(r))
}

func videoTemplate(r model.Record, sender string) string {
	first := r.String(model.FieldFirstName)
	if first == "" {
		first = "there"
	}
	company := r.String(model.FieldCompany)
	if company == "" {
		company = "your business"
	}
	if sender == "" {
		sender = "our team"
	}
	return fmt.Sprintf("Hi %s, this is %s. I have been following what you are building at %s "+
		"and wanted to share a few ideas on how families in your position are structuring their wealth. "+
		"If it is useful, I would love fifteen minutes with you this week.", first, sender, company)
}

func leadScore(r model.Record) float64 {
	if r.Has(model.FieldLeadScore) {
		return r.Float(model.FieldLeadScore)
	}
	return r.Float(model.FieldSignalScore)
}

type videoConfig struct {
	MinScore    float64     `yaml:"min_score"`
	Limit       int         `yaml:"limit"`
	AspectRatio string      `yaml:"aspect_ratio"`
	Background  string      `yaml:"background"`
	Filter      filter.Expr `yaml:"filter"`
}

func (c *videoConfig) Validate() error {
	if c.Limit < 0 {
		return eris.New("limit must not be negative")
	}
	return c.Filter.Validate()
}

type videoStep struct {
	pipeline.Base
	cfg    videoConfig
	client heygen.Client
	set    VideoSettings
	writer Writer
}

func newVideoPersonalization(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	cfg := videoConfig{MinScore: 85, Limit: 5, AspectRatio: "16:9"}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	set := d.Video
	if set.PollInterval <= 0 {
		set.PollInterval = 10 * time.Second
	}
	if set.MaxPolls <= 0 {
		set.MaxPolls = 30
	}
	return &videoStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.HeyGen, set: set, writer: d.Writer}, nil
}

func (s *videoStep) candidates(batch []model.Record) []model.Record {
	def := filter.And(hotOnly, filter.Expr{Any: []filter.Expr{
		filter.Gte(model.FieldLeadScore, s.cfg.MinScore),
		filter.Gte(model.FieldSignalScore, s.cfg.MinScore),
	}})
	leads := selectOr(batch, s.cfg.Filter, def)
	if s.cfg.Limit > 0 && len(leads) > s.cfg.Limit {
		leads = leads[:s.cfg.Limit]
	}
	return leads
}

// Execute scripts and renders avatar videos for the top Hot leads. A
// failed render marks the lead and the run continues.
func (s *videoStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if !rc.Channel.Outreach.Video {
		return batch, nil
	}
	simulate := s.ShouldSimulate() || s.client == nil || s.set.AvatarID == ""
	writer := s.writer
	if s.ShouldSimulate() {
		writer = nil
	}
	var rendered int
	for _, r := range s.candidates(batch) {
		script, source := draft(ctx, s.Logger(), writer, videoSystem,
			videoPrompt(r, rc.Channel.Name), videoTemplate(r, rc.Settings.SenderName))
		r["video_script"] = script
		r["video_script_source"] = source

		if simulate {
			id := fmt.Sprintf("sim-%08x", seedFor(rc, model.EnsureIdentity(r))&0xffffffff)
			r["video_id"] = id
			r["video_status"] = "simulated"
			r["video_url"] = "https://app.heygen.com/videos/" + id
		} else if err := s.render(ctx, r, script); err != nil {
			r["video_status"] = heygen.StatusFailed
			r["video_error"] = err.Error()
			s.Logger().Warn("steps: video render failed", zap.String("lead", model.IdentityKey(r)), zap.Error(err))
			continue
		}
		rc.AddArtifact("videos", map[string]any{
			"lead":   model.EnsureIdentity(r),
			"video":  r["video_id"],
			"url":    r["video_url"],
			"status": r["video_status"],
		})
		rendered++
	}
	rc.Incr("videos", int64(rendered))
	s.Logger().Info("steps: video personalization complete", zap.Int("videos", rendered), zap.Bool("simulated", simulate))
	return batch, nil
}

func (s *videoStep) render(ctx context.Context, r model.Record, script string) error {
	v, err := s.client.Generate(ctx, heygen.VideoRequest{
		Title:       fmt.Sprintf("%s - %s", s.Context().Channel.Name, r.String(model.FieldName)),
		AvatarID:    s.set.AvatarID,
		VoiceID:     s.set.VoiceID,
		Script:      script,
		AspectRatio: s.cfg.AspectRatio,
		Background:  s.cfg.Background,
	})
	if err != nil {
		return err
	}
	r["video_id"] = v.ID
	done, err := heygen.Poll(ctx, s.client, v.ID, s.set.PollInterval, s.set.MaxPolls)
	if err != nil {
		return err
	}
	if done.Status != heygen.StatusCompleted {
		return eris.Errorf("video %s ended %s", v.ID, done.Status)
	}
	r["video_status"] = done.Status
	r["video_url"] = done.URL
	return nil
}

const briefingSystem = "You are an executive assistant preparing a one page briefing for a relationship manager " +
	"before a first meeting with a high value prospect. Use short sections: Who, Why now, Talking points, Risks."

func briefingPrompt(r model.Record, channelName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Segment: %s\n", channelName)
	for _, f := range []string{model.FieldName, model.FieldTitle, model.FieldCompany, model.FieldLocation, "industry", "intent_topics", "intent_strength"} {
		if v, ok := r.Path(f); ok {
			fmt.Fprintf(&b, "%s: %s\n", f, model.ToString(v))
		}
	}
	fmt.Fprintf(&b, "score: %.0f\n", leadScore(r))
	if trig, ok := r["signal_triggers"].([]any); ok {
		for _, t := range trig {
			if m, ok := t.(map[string]any); ok {
				fmt.Fprintf(&b, "trigger: %s\n", model.ToString(m["description"]))
			}
		}
	}
	return b.String()
}

func briefingTemplate(r model.Record, channelName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Who: %s, %s at %s (%s)\n", r.String(model.FieldName), r.String(model.FieldTitle),
		r.String(model.FieldCompany), r.String(model.FieldLocation))
	fmt.Fprintf(&b, "Why now: %s lead scoring %.0f", channelName, leadScore(r))
	if topics := r.Strings("intent_topics"); len(topics) > 0 {
		fmt.Fprintf(&b, ", researching %s", strings.Join(topics, ", "))
	}
	b.WriteString("\nTalking points: current advisory setup, liquidity plans, family priorities\n")
	b.WriteString("Risks: unverified contact details until the first reply")
	return b.String()
}

type briefingStep struct {
	pipeline.Base
	cfg    syncConfig
	writer Writer
}

func newExecutiveBriefing(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	var cfg syncConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &briefingStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, writer: d.Writer}, nil
}

// Execute prepares a meeting briefing for every Hot lead.
func (s *briefingStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if !rc.Channel.Outreach.ExecutiveAssistant {
		return batch, nil
	}
	writer := s.writer
	if s.ShouldSimulate() {
		writer = nil
	}
	leads := selectOr(batch, s.cfg.Filter, hotOnly)
	for _, r := range leads {
		text, source := draft(ctx, s.Logger(), writer, briefingSystem,
			briefingPrompt(r, rc.Channel.Name), briefingTemplate(r, rc.Channel.Name))
		r["executive_briefing"] = text
		rc.AddArtifact("executive_briefings", map[string]any{
			"lead":     model.EnsureIdentity(r),
			"name":     r.String(model.FieldName),
			"source":   source,
			"briefing": text,
		})
	}
	rc.Incr("briefings", int64(len(leads)))
	s.Logger().Info("steps: executive briefings prepared", zap.Int("count", len(leads)))
	return batch, nil
}
