package steps

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/dispatch"
	"github.com/sells-group/leadflow/internal/filter"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/pkg/moengage"
	"github.com/sells-group/leadflow/pkg/postmark"
	"github.com/sells-group/leadflow/pkg/slack"
)

// Sequence touch delays in days, one per template.
var sequenceDelays = []int{0, 3, 7, 12, 19}

type sequenceConfig struct {
	Name   string      `yaml:"name"`
	Filter filter.Expr `yaml:"filter"`
}

func (c *sequenceConfig) Validate() error { return c.Filter.Validate() }

type emailSequenceStep struct {
	pipeline.Base
	cfg sequenceConfig
}

func newEmailSequence(desc pipeline.Descriptor, rc *pipeline.RunContext, _ *Deps) (pipeline.Step, error) {
	var cfg sequenceConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = rc.Channel.ID + "-nurture"
	}
	return &emailSequenceStep{Base: pipeline.NewBase(desc, rc), cfg: cfg}, nil
}

// Execute queues Warm and Hot leads into the channel's nurture sequence.
func (s *emailSequenceStep) Execute(_ context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	templates := rc.Channel.Outreach.EmailTemplates
	if len(templates) == 0 {
		s.Logger().Debug("steps: channel has no sequence templates")
		return batch, nil
	}
	leads := selectOr(batch, s.cfg.Filter, warmOrBetter)
	for _, r := range leads {
		touches := make([]any, len(templates))
		for i, t := range templates {
			delay := sequenceDelays[min(i, len(sequenceDelays)-1)]
			touches[i] = map[string]any{"step": i + 1, "template": t, "delay_days": delay}
		}
		r["sequence_name"] = s.cfg.Name
		r["sequence_status"] = "queued"
		r["last_touch"] = nil
		r["email_sequence"] = touches
		rc.AddArtifact("email_sequences", map[string]any{
			"lead":     model.EnsureIdentity(r),
			"email":    r.String(model.FieldEmail),
			"sequence": s.cfg.Name,
			"steps":    len(templates),
		})
	}
	rc.Incr("sequenced", int64(len(leads)))
	s.Logger().Info("steps: sequence queued", zap.String("sequence", s.cfg.Name), zap.Int("leads", len(leads)))
	return batch, nil
}

type emailSendConfig struct {
	MinTier        string `yaml:"min_tier"`
	AllowSynthetic bool   `yaml:"allow_synthetic"`
}

func (c *emailSendConfig) Validate() error {
	if c.MinTier != "" && model.ParseTier(c.MinTier) == "" {
		return eris.Errorf("unknown min_tier %q", c.MinTier)
	}
	return nil
}

type emailSendStep struct {
	pipeline.Base
	cfg        emailSendConfig
	dispatcher *dispatch.Dispatcher
}

func newEmailSend(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	var cfg emailSendConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	// MoEngage holds the primary slot even when unconfigured so a Postmark
	// failure is never counted as a primary failure.
	providers := []dispatch.Provider{
		&moengageProvider{
			client:  d.MoEngage,
			channel: rc.Channel.Name,
			now:     func() int64 { return rc.Now().Unix() },
		},
		&postmarkProvider{client: d.Postmark, settings: d.Email, tag: rc.Channel.ID},
	}
	return &emailSendStep{
		Base:       pipeline.NewBase(desc, rc),
		cfg:        cfg,
		dispatcher: dispatch.New(providers...).WithNow(rc.Now),
	}, nil
}

// Execute sends the channel's initial email to eligible leads, MoEngage
// first with Postmark as the fallback.
func (s *emailSendStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	out, sum := s.dispatcher.Dispatch(ctx, batch, dispatch.Options{
		MinTier:        model.ParseTier(s.cfg.MinTier),
		AllowSynthetic: s.cfg.AllowSynthetic,
		Template:       rc.Channel.Outreach.InitialEmail,
		SenderName:     rc.Settings.SenderName,
		Simulate:       s.ShouldSimulate(),
	})
	rc.Incr("email_primary_sent", int64(sum.Sent["moengage"]))
	rc.Incr("email_secondary_sent", int64(sum.Sent["postmark"]))
	rc.Incr("primary_failed", int64(sum.PrimaryFailed))
	rc.Incr("email_failed", int64(sum.Failed))
	rc.Incr("invalid_recipients", int64(sum.Invalid))
	rc.Incr("email_simulated", int64(sum.Simulated))
	s.Logger().Info("steps: email dispatch complete",
		zap.Int("eligible", sum.Eligible),
		zap.Any("sent", sum.Sent),
		zap.Int("primary_failed", sum.PrimaryFailed),
		zap.Int("failed", sum.Failed),
		zap.Int("simulated", sum.Simulated),
	)
	return out, nil
}

type postmarkSendStep struct {
	pipeline.Base
	cfg      syncConfig
	client   postmark.Client
	settings EmailSettings
}

func newPostmarkSend(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	var cfg syncConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &postmarkSendStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.Postmark, settings: d.Email}, nil
}

// Execute sends the initial email straight through Postmark and opens the
// sequence for every lead it reached.
func (s *postmarkSendStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	tmpl := rc.Channel.Outreach.InitialEmail
	if tmpl == nil || tmpl.Subject == "" || tmpl.HTMLBody == "" {
		return batch, nil
	}
	simulate := s.ShouldSimulate() || s.client == nil || s.settings.From == ""
	var sent int
	for _, r := range selectOr(batch, s.cfg.Filter, warmOrBetter) {
		to := strings.TrimSpace(r.String(model.FieldEmail))
		if !strings.Contains(to, "@") {
			r["postmark_status"] = dispatch.StateInvalid
			continue
		}
		html := dispatch.Render(tmpl.HTMLBody, r, rc.Settings.SenderName)
		if simulate {
			r["postmark_status"] = dispatch.StateSimulated
			continue
		}
		id, err := s.client.Send(ctx, postmark.Email{
			From:          s.settings.From,
			To:            to,
			Subject:       dispatch.Render(tmpl.Subject, r, rc.Settings.SenderName),
			HTMLBody:      html,
			TextBody:      dispatch.PlainText(html),
			Tag:           rc.Channel.ID,
			MessageStream: s.settings.MessageStream,
		})
		if err != nil {
			r["postmark_status"] = dispatch.StateFailed
			r["postmark_error"] = err.Error()
			s.Logger().Warn("steps: postmark send failed", zap.String("to", to), zap.Error(err))
			continue
		}
		r["postmark_status"] = dispatch.StateDelivered
		r["postmark_message_id"] = id
		r["sequence_status"] = "email_1_sent"
		r["last_touch"] = nowRFC3339(rc)
		sent++
	}
	rc.Incr("postmark_sent", int64(sent))
	s.Logger().Info("steps: postmark send complete", zap.Int("sent", sent), zap.Bool("simulated", simulate))
	return batch, nil
}

type newsletterConfig struct {
	Campaign string      `yaml:"campaign"`
	Filter   filter.Expr `yaml:"filter"`
}

func (c *newsletterConfig) Validate() error { return c.Filter.Validate() }

type newsletterStep struct {
	pipeline.Base
	cfg    newsletterConfig
	client moengage.Client
}

func newNewsletter(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	var cfg newsletterConfig
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	if cfg.Campaign == "" {
		cfg.Campaign = rc.Channel.Outreach.Newsletter
	}
	return &newsletterStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.MoEngage}, nil
}

// Execute enrolls leads in the channel newsletter. Live runs track a
// NewsletterEnqueued event per lead.
func (s *newsletterStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if s.cfg.Campaign == "" || strings.EqualFold(s.cfg.Campaign, "disabled") {
		return batch, nil
	}
	leads := batch
	if !s.cfg.Filter.IsZero() {
		leads = filter.Apply(batch, s.cfg.Filter)
	}
	live := !s.ShouldSimulate() && s.client != nil
	var enqueued int
	for _, r := range leads {
		if live {
			err := s.client.TrackEvent(ctx, moengage.Event{
				CustomerID: model.EnsureIdentity(r),
				Actions: []moengage.Action{{
					Action:     EventNewsletterEnqueued,
					Timestamp:  rc.Now().Unix(),
					Attributes: map[string]any{"campaign": s.cfg.Campaign, "segment": rc.Channel.Name},
				}},
			})
			if err != nil {
				r["newsletter_status"] = "failed"
				s.Logger().Warn("steps: newsletter enqueue failed", zap.String("lead", model.IdentityKey(r)), zap.Error(err))
				continue
			}
		}
		r["newsletter_status"] = "enqueued"
		r["newsletter_campaign"] = s.cfg.Campaign
		rc.AddArtifact("newsletter_queue", map[string]any{
			"lead":     model.EnsureIdentity(r),
			"email":    r.String(model.FieldEmail),
			"campaign": s.cfg.Campaign,
		})
		enqueued++
	}
	rc.Incr("newsletter_enqueued", int64(enqueued))
	s.Logger().Info("steps: newsletter enqueue complete", zap.String("campaign", s.cfg.Campaign), zap.Int("leads", enqueued))
	return batch, nil
}

var slackToken = regexp.MustCompile(`{(count|lead\.[\w.\[\]]+)}`)

type slackConfig struct {
	Message string      `yaml:"message"`
	Filter  filter.Expr `yaml:"filter"`
}

func (c *slackConfig) Validate() error { return c.Filter.Validate() }

type slackNotifyStep struct {
	pipeline.Base
	cfg     slackConfig
	client  slack.Client
	channel string
}

func newSlackNotify(desc pipeline.Descriptor, rc *pipeline.RunContext, d *Deps) (pipeline.Step, error) {
	cfg := slackConfig{Message: "{count} new leads for " + rc.Channel.Name + ". Top lead: {lead.name} at {lead.company}"}
	if err := pipeline.DecodeConfig(desc, &cfg); err != nil {
		return nil, err
	}
	return &slackNotifyStep{Base: pipeline.NewBase(desc, rc), cfg: cfg, client: d.Slack, channel: d.SlackChannel}, nil
}

// Execute posts a summary of the selected leads. Delivery failures are
// logged and never fail the run.
func (s *slackNotifyStep) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	rc := s.Context()
	if !rc.Channel.Outreach.SlackSummary {
		return batch, nil
	}
	leads := batch
	if !s.cfg.Filter.IsZero() {
		leads = filter.Apply(batch, s.cfg.Filter)
	}
	if len(leads) == 0 {
		return batch, nil
	}
	text := renderSlack(s.cfg.Message, len(leads), leads[0])

	if s.ShouldSimulate() || s.client == nil {
		s.Logger().Info("steps: slack notification (simulated)", zap.String("text", text))
		return batch, nil
	}
	if err := s.client.Post(ctx, slack.Message{Text: text, Channel: s.channel}); err != nil {
		s.Logger().Warn("steps: slack post failed", zap.Error(err))
		rc.Incr("slack_failed", 1)
		return batch, nil
	}
	rc.Incr("slack_notified", 1)
	return batch, nil
}

// renderSlack fills {count} and {lead.<path>} tokens. Unresolved lead
// paths render empty.
func renderSlack(tmpl string, count int, lead model.Record) string {
	return slackToken.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if key == "count" {
			return strconv.Itoa(count)
		}
		v, _ := lead.Path(strings.TrimPrefix(key, "lead."))
		return model.ToString(v)
	})
}
