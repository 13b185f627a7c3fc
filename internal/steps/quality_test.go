package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
)

func TestDataQuality_Normalizes(t *testing.T) {
	rc, _ := newTestRC(t, "hni")
	s := build(t, rc, Deps{}, pipeline.Descriptor{Kind: KindDataQuality})

	out, err := s.Execute(context.Background(), []model.Record{{
		model.FieldEmail:   "  Asha.Iyer@Example.COM ",
		model.FieldName:    "  asha iyer ",
		model.FieldCompany: " Iyer Capital ",
		"phone":            "+91 (98) 2000-1111",
		"website":          "iyer.in",
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	r := out[0]
	assert.Equal(t, "asha.iyer@example.com", r.String(model.FieldEmail))
	assert.Equal(t, "Asha Iyer", r.String(model.FieldName))
	assert.Equal(t, "Iyer Capital", r.String(model.FieldCompany))
	assert.Equal(t, "+919820001111", r.String("phone"))
	assert.Equal(t, "https://iyer.in", r.String("website"))
	assert.Equal(t, rc.Channel.Name, r.String(model.FieldChannel))
	assert.Equal(t, "2026-03-10T09:00:00Z", r.String("scraped_at"))
	assert.Equal(t, int64(1), rc.Metric("cleaned"))
}

func TestDataQuality_SignalGates(t *testing.T) {
	rc, _ := newTestRC(t, "signals-hni")
	s := build(t, rc, Deps{}, pipeline.Descriptor{Kind: KindDataQuality, Config: map[string]any{
		"required_fields":  []any{"email", "signal_score"},
		"min_signal_score": 40,
		"signal_tiers":     []any{model.SignalHot, model.SignalWarm},
	}})

	batch := []model.Record{
		{model.FieldEmail: "a@x.com", model.FieldSignalScore: 80, model.FieldSignalTier: model.SignalHot},
		{model.FieldEmail: "b@x.com", model.FieldSignalScore: 30, model.FieldSignalTier: model.SignalCold},
		{model.FieldEmail: "", model.FieldSignalScore: 90, model.FieldSignalTier: model.SignalHot},
		{model.FieldEmail: "d@x.com", model.FieldSignalScore: 45, model.FieldSignalTier: model.SignalCold},
		{model.FieldEmail: "e@x.com", model.FieldSignalScore: 55, model.FieldSignalTier: model.SignalWarm},
	}
	out, err := s.Execute(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a@x.com", out[0].String(model.FieldEmail))
	assert.Equal(t, "e@x.com", out[1].String(model.FieldEmail))
	assert.Equal(t, int64(3), rc.Metric("invalid"))
}

func TestDataQuality_Filter(t *testing.T) {
	rc, _ := newTestRC(t, "hni")
	s := build(t, rc, Deps{}, pipeline.Descriptor{Kind: KindDataQuality, Config: map[string]any{
		"filter": map[string]any{"field": "location", "op": "contains", "value": "Mumbai"},
	}})

	out, err := s.Execute(context.Background(), []model.Record{
		{model.FieldEmail: "a@x.com", model.FieldLocation: "Mumbai"},
		{model.FieldEmail: "b@x.com", model.FieldLocation: "Pune"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a@x.com", out[0].String(model.FieldEmail))
}

func TestDataQuality_BadFilterIsConfigError(t *testing.T) {
	rc, _ := newTestRC(t, "hni")
	_, err := NewRegistry(Deps{}).Build(pipeline.Descriptor{ID: "q", Kind: KindDataQuality, Config: map[string]any{
		"filter": map[string]any{"field": "location", "op": "like", "value": "x"},
	}}, rc)
	var ce *pipeline.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+14155550100", normalizePhone(" +1 (415) 555-0100 "))
	assert.Equal(t, "9820001111", normalizePhone("98200+01111"))
}
