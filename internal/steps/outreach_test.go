package steps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/dispatch"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/pkg/moengage"
	"github.com/sells-group/leadflow/pkg/postmark"
	"github.com/sells-group/leadflow/pkg/slack"
)

func TestEmailSequence_QueuesWarmAndHot(t *testing.T) {
	rc, _ := newTestRC(t, "hni")
	s := build(t, rc, Deps{}, pipeline.Descriptor{Kind: KindEmailSequence})

	out, err := s.Execute(context.Background(), tiered())
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "hni-nurture", out[0].String("sequence_name"))
	assert.Equal(t, "queued", out[1].String("sequence_status"))
	touches, ok := out[0]["email_sequence"].([]any)
	require.True(t, ok)
	require.Len(t, touches, 5)
	last := touches[4].(map[string]any)
	assert.Equal(t, "H-E-05", last["template"])
	assert.Equal(t, 19, last["delay_days"])
	assert.False(t, out[2].Has("sequence_name"))

	assert.Equal(t, int64(2), rc.Metric("sequenced"))
	assert.Len(t, rc.Artifact("email_sequences"), 2)
}

func TestEmailSend_FallsBackToPostmark(t *testing.T) {
	rc, _ := newTestRC(t, "hni", pipeline.WithLive(true), pipeline.WithSettings(pipeline.Settings{SenderName: "Kavya"}))
	ctx := context.Background()
	me := new(mockMoEngage)
	pm := new(mockPostmark)

	me.On("UpsertCustomer", ctx, mock.MatchedBy(func(c moengage.Customer) bool { return c.CustomerID == "hot@x.com" })).Return(nil)
	me.On("UpsertCustomer", ctx, mock.MatchedBy(func(c moengage.Customer) bool { return c.CustomerID == "warm@x.com" })).
		Return(resilience.ClassifyStatus("moengage", 503, []byte("unavailable")))
	me.On("TrackEvent", ctx, mock.MatchedBy(func(e moengage.Event) bool {
		return len(e.Actions) == 2 && e.Actions[0].Action == EventLeadEmailSent && e.Actions[0].Timestamp == testNow.Unix()
	})).Return(nil)
	pm.On("Send", ctx, mock.MatchedBy(func(e postmark.Email) bool {
		return e.To == "warm@x.com" && e.From == "desk@leadflow.test" && e.Tag == "hni" &&
			strings.Contains(e.Subject, "Ravi") && strings.Contains(e.HTMLBody, "Kavya")
	})).Return("pm-1", nil)

	s := build(t, rc, Deps{MoEngage: me, Postmark: pm, Email: EmailSettings{From: "desk@leadflow.test"}},
		pipeline.Descriptor{Kind: KindEmailSend})
	out, err := s.Execute(ctx, tiered())
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, dispatch.StateDelivered, out[0].String(dispatch.FieldState))
	assert.Equal(t, "moengage", out[0].String(dispatch.FieldProvider))
	assert.Equal(t, "email_1_sent", out[0].String("sequence_status"))
	assert.Equal(t, "2026-03-10T09:00:00Z", out[0].String("last_touch"))

	assert.Equal(t, dispatch.StateDelivered, out[1].String(dispatch.FieldState))
	assert.Equal(t, "postmark", out[1].String(dispatch.FieldProvider))
	assert.Equal(t, "pm-1", out[1].String(dispatch.FieldMessageID))

	assert.False(t, out[2].Has(dispatch.FieldState))

	assert.Equal(t, int64(1), rc.Metric("email_primary_sent"))
	assert.Equal(t, int64(1), rc.Metric("email_secondary_sent"))
	assert.Equal(t, int64(1), rc.Metric("primary_failed"))
	assert.Equal(t, int64(0), rc.Metric("email_failed"))
	me.AssertExpectations(t)
	pm.AssertExpectations(t)
}

func TestEmailSend_PostmarkOnlyFailureIsNotPrimary(t *testing.T) {
	rc, _ := newTestRC(t, "hni", pipeline.WithLive(true))
	ctx := context.Background()
	pm := new(mockPostmark)
	pm.On("Send", ctx, mock.Anything).Return("", resilience.ClassifyStatus("postmark", 422, []byte("inactive recipient")))

	s := build(t, rc, Deps{Postmark: pm, Email: EmailSettings{From: "desk@leadflow.test"}},
		pipeline.Descriptor{Kind: KindEmailSend})
	out, err := s.Execute(ctx, tiered())
	require.NoError(t, err)

	assert.Equal(t, dispatch.StateFailed, out[0].String(dispatch.FieldState))
	assert.Equal(t, dispatch.StateFailed, out[1].String(dispatch.FieldState))
	assert.Equal(t, int64(0), rc.Metric("primary_failed"))
	assert.Equal(t, int64(2), rc.Metric("email_failed"))
	pm.AssertNumberOfCalls(t, "Send", 2)
}

func TestEmailSend_SimulatedAndSyntheticSkipped(t *testing.T) {
	rc, _ := newTestRC(t, "hni")
	me := new(mockMoEngage)
	batch := tiered()
	batch[1][model.FieldDataSource] = dispatch.SyntheticSource

	s := build(t, rc, Deps{MoEngage: me}, pipeline.Descriptor{Kind: KindEmailSend})
	out, err := s.Execute(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, dispatch.StateSimulated, out[0].String(dispatch.FieldState))
	assert.False(t, out[1].Has(dispatch.FieldState))
	assert.Equal(t, int64(1), rc.Metric("email_simulated"))
	me.AssertNotCalled(t, "UpsertCustomer", mock.Anything, mock.Anything)
}

func TestEmailSend_MinTierValidated(t *testing.T) {
	rc, _ := newTestRC(t, "hni")
	_, err := NewRegistry(Deps{}).Build(pipeline.Descriptor{ID: "e", Kind: KindEmailSend, Config: map[string]any{"min_tier": "Lukewarm"}}, rc)
	var ce *pipeline.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestPostmarkSend(t *testing.T) {
	rc, _ := newTestRC(t, "mass_affluent", pipeline.WithLive(true))
	ctx := context.Background()
	pm := new(mockPostmark)
	pm.On("Send", ctx, mock.MatchedBy(func(e postmark.Email) bool { return e.To == "hot@x.com" })).Return("m-1", nil)
	pm.On("Send", ctx, mock.MatchedBy(func(e postmark.Email) bool { return e.To == "warm@x.com" })).Return("", errors.New("422"))

	batch := tiered()
	batch = append(batch, model.Record{model.FieldName: "No Mail", model.FieldLeadTier: "Hot"})
	s := build(t, rc, Deps{Postmark: pm, Email: EmailSettings{From: "desk@leadflow.test"}}, pipeline.Descriptor{Kind: KindPostmarkSend})
	out, err := s.Execute(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, dispatch.StateDelivered, out[0].String("postmark_status"))
	assert.Equal(t, "m-1", out[0].String("postmark_message_id"))
	assert.Equal(t, "email_1_sent", out[0].String("sequence_status"))
	assert.Equal(t, dispatch.StateFailed, out[1].String("postmark_status"))
	assert.Equal(t, "422", out[1].String("postmark_error"))
	assert.False(t, out[2].Has("postmark_status"))
	assert.Equal(t, dispatch.StateInvalid, out[3].String("postmark_status"))
	assert.Equal(t, int64(1), rc.Metric("postmark_sent"))
}

func TestPostmarkSend_SimulatedWithoutSender(t *testing.T) {
	rc, _ := newTestRC(t, "mass_affluent", pipeline.WithLive(true))
	pm := new(mockPostmark)
	s := build(t, rc, Deps{Postmark: pm}, pipeline.Descriptor{Kind: KindPostmarkSend})
	out, err := s.Execute(context.Background(), tiered())
	require.NoError(t, err)
	assert.Equal(t, dispatch.StateSimulated, out[0].String("postmark_status"))
	pm.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNewsletter_LiveTracksEvents(t *testing.T) {
	rc, _ := newTestRC(t, "hni", pipeline.WithLive(true))
	ctx := context.Background()
	me := new(mockMoEngage)
	me.On("TrackEvent", ctx, mock.MatchedBy(func(e moengage.Event) bool { return e.CustomerID == "cold@x.com" })).
		Return(errors.New("boom"))
	me.On("TrackEvent", ctx, mock.MatchedBy(func(e moengage.Event) bool {
		return e.Actions[0].Action == EventNewsletterEnqueued && e.Actions[0].Attributes["campaign"] == "quant-edge"
	})).Return(nil)

	s := build(t, rc, Deps{MoEngage: me}, pipeline.Descriptor{Kind: KindNewsletter})
	out, err := s.Execute(ctx, tiered())
	require.NoError(t, err)

	assert.Equal(t, "enqueued", out[0].String("newsletter_status"))
	assert.Equal(t, "quant-edge", out[0].String("newsletter_campaign"))
	assert.Equal(t, "failed", out[2].String("newsletter_status"))
	assert.Equal(t, int64(2), rc.Metric("newsletter_enqueued"))
	assert.Len(t, rc.Artifact("newsletter_queue"), 2)
}

func TestNewsletter_DisabledCampaign(t *testing.T) {
	rc, _ := newTestRC(t, "hni")
	s := build(t, rc, Deps{}, pipeline.Descriptor{Kind: KindNewsletter, Config: map[string]any{"campaign": "disabled"}})
	out, err := s.Execute(context.Background(), tiered())
	require.NoError(t, err)
	assert.False(t, out[0].Has("newsletter_status"))
	assert.Equal(t, int64(0), rc.Metric("newsletter_enqueued"))
}

func TestSlackNotify_Posts(t *testing.T) {
	rc, _ := newTestRC(t, "hni", pipeline.WithLive(true))
	ctx := context.Background()
	sc := new(mockSlack)
	sc.On("Post", ctx, slack.Message{
		Text:    "2 new leads for High Net Worth Individuals. Top lead: Asha Iyer at Iyer Capital",
		Channel: "#leads",
	}).Return(nil)

	s := build(t, rc, Deps{Slack: sc, SlackChannel: "#leads"}, pipeline.Descriptor{Kind: KindSlackNotify, Config: map[string]any{
		"filter": map[string]any{"field": "lead_tier", "op": "in", "value": []any{"Hot", "Warm"}},
	}})
	_, err := s.Execute(ctx, tiered())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rc.Metric("slack_notified"))
	sc.AssertExpectations(t)
}

func TestSlackNotify_FailureDoesNotFailRun(t *testing.T) {
	rc, _ := newTestRC(t, "hni", pipeline.WithLive(true))
	sc := new(mockSlack)
	sc.On("Post", mock.Anything, mock.Anything).Return(errors.New("channel_not_found"))

	s := build(t, rc, Deps{Slack: sc}, pipeline.Descriptor{Kind: KindSlackNotify})
	out, err := s.Execute(context.Background(), tiered())
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, int64(0), rc.Metric("slack_notified"))
	assert.Equal(t, int64(1), rc.Metric("slack_failed"))
}

func TestSlackNotify_DisabledForChannel(t *testing.T) {
	rc, _ := newTestRC(t, "mass_affluent", pipeline.WithLive(true))
	sc := new(mockSlack)
	s := build(t, rc, Deps{Slack: sc}, pipeline.Descriptor{Kind: KindSlackNotify})
	_, err := s.Execute(context.Background(), tiered())
	require.NoError(t, err)
	sc.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestRenderSlack(t *testing.T) {
	lead := model.Record{
		model.FieldName: "Asha Iyer",
		"signal_triggers": []any{
			map[string]any{"type": "funding_round"},
		},
	}
	got := renderSlack("{count} hot: {lead.name} ({lead.signal_triggers[0].type}) {lead.missing}.", 4, lead)
	assert.Equal(t, "4 hot: Asha Iyer (funding_round) .", got)
}
