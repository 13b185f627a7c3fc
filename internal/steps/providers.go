package steps

import (
	"context"

	"github.com/sells-group/leadflow/internal/dispatch"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/pkg/moengage"
	"github.com/sells-group/leadflow/pkg/postmark"
)

// MoEngage event names tracked for outreach.
const (
	EventLeadEmailSent      = "LeadEmailSent"
	EventEmailOutreachReady = "EmailOutreachReady"
	EventNewsletterEnqueued = "NewsletterEnqueued"
)

// moengageProvider delivers by upserting the lead as a customer and
// tracking an event that a MoEngage campaign turns into the email.
type moengageProvider struct {
	client  moengage.Client
	channel string
	now     func() int64
}

func (p *moengageProvider) Name() string  { return "moengage" }
func (p *moengageProvider) Enabled() bool { return p.client != nil }

func (p *moengageProvider) Send(ctx context.Context, m dispatch.Message) (string, error) {
	r := m.Record
	id := model.EnsureIdentity(r)
	err := p.client.UpsertCustomer(ctx, moengage.Customer{
		CustomerID: id,
		Attributes: customerAttributes(r, p.channel),
	})
	if err != nil {
		return "", err
	}
	ts := p.now()
	err = p.client.TrackEvent(ctx, moengage.Event{
		CustomerID: id,
		Actions: []moengage.Action{
			{Action: EventLeadEmailSent, Timestamp: ts, Attributes: map[string]any{
				"subject": m.Subject,
				"segment": p.channel,
			}},
			{Action: EventEmailOutreachReady, Timestamp: ts, Attributes: map[string]any{
				"subject":   m.Subject,
				"html_body": m.HTMLBody,
			}},
		},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func customerAttributes(r model.Record, channel string) map[string]any {
	attrs := map[string]any{
		"email":      r.String(model.FieldEmail),
		"first_name": r.String(model.FieldFirstName),
		"last_name":  r.String(model.FieldLastName),
		"name":       r.String(model.FieldName),
		"company":    r.String(model.FieldCompany),
		"job_title":  r.String(model.FieldTitle),
		"segment":    channel,
	}
	if r.Has(model.FieldLeadScore) {
		attrs["lead_score"] = r.Float(model.FieldLeadScore)
		attrs["lead_tier"] = r.String(model.FieldLeadTier)
	}
	if r.Has(model.FieldSignalScore) {
		attrs["signal_score"] = r.Float(model.FieldSignalScore)
		attrs["signal_tier"] = r.String(model.FieldSignalTier)
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return attrs
}

// postmarkProvider sends the rendered email directly.
type postmarkProvider struct {
	client   postmark.Client
	settings EmailSettings
	tag      string
}

func (p *postmarkProvider) Name() string  { return "postmark" }
func (p *postmarkProvider) Enabled() bool { return p.client != nil && p.settings.From != "" }

func (p *postmarkProvider) Send(ctx context.Context, m dispatch.Message) (string, error) {
	return p.client.Send(ctx, postmark.Email{
		From:          p.settings.From,
		To:            m.To,
		Subject:       m.Subject,
		HTMLBody:      m.HTMLBody,
		TextBody:      m.TextBody,
		Tag:           p.tag,
		MessageStream: p.settings.MessageStream,
	})
}
