package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/engine"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/steps"
	"github.com/sells-group/leadflow/internal/store"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newHandler(t *testing.T, defs []pipeline.Definition, reg *pipeline.Registry) (*Handler, *engine.Engine, *store.FileStore) {
	t.Helper()
	channels, err := channel.NewRegistry("")
	require.NoError(t, err)
	catalog, err := pipeline.NewCatalog(defs, "")
	require.NoError(t, err)
	st := store.NewFileStore(t.TempDir(), "")
	e := engine.New(channels, catalog, st, reg, pipeline.Settings{},
		engine.WithClock(func() time.Time { return fixedNow }))
	return New(context.Background(), e), e, st
}

func builtinHandler(t *testing.T) (*Handler, *store.FileStore) {
	t.Helper()
	reg := steps.NewRegistry(steps.Deps{Export: steps.ExportSettings{Dir: t.TempDir()}})
	h, _, st := newHandler(t, steps.BuiltinDefinitions(), reg)
	return h, st
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v), rr.Body.String())
}

func TestHealth(t *testing.T) {
	h, _ := builtinHandler(t)
	rr := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestChannels(t *testing.T) {
	h, _ := builtinHandler(t)

	rr := do(t, h, http.MethodGet, "/api/channels")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []ChannelSummary
	decode(t, rr, &list)
	require.Len(t, list, 8)
	byID := map[string]ChannelSummary{}
	for _, c := range list {
		byID[c.ID] = c
	}
	assert.Equal(t, "hni", byID["hni"].Pipeline)
	assert.Equal(t, "hni", byID["signals-hni"].Base)
	assert.True(t, byID["signals-hni"].Signals)
	assert.False(t, byID["hni"].Running)

	rr = do(t, h, http.MethodGet, "/api/channels/uhni")
	require.Equal(t, http.StatusOK, rr.Code)
	var p channel.Profile
	decode(t, rr, &p)
	assert.Equal(t, "uhni", p.ID)
	assert.True(t, p.Outreach.ExecutiveAssistant)

	rr = do(t, h, http.MethodGet, "/api/channels/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPipelines(t *testing.T) {
	h, _ := builtinHandler(t)
	rr := do(t, h, http.MethodGet, "/api/pipelines")
	require.Equal(t, http.StatusOK, rr.Code)
	var defs []pipeline.Definition
	decode(t, rr, &defs)
	require.Len(t, defs, 8)
	assert.Equal(t, "hni", defs[0].ID)
	assert.NotEmpty(t, defs[0].Steps)
}

func TestRunsAndRecords(t *testing.T) {
	h, st := builtinHandler(t)
	ctx := context.Background()

	require.NoError(t, st.SaveReports(ctx, []model.RunReport{
		{RunID: "old", Channel: "hni", CompletedAt: fixedNow.Add(-2 * time.Hour)},
		{RunID: "new", Channel: "uhni", CompletedAt: fixedNow},
		{RunID: "mid", Channel: "hni", CompletedAt: fixedNow.Add(-time.Hour)},
	}))
	rr := do(t, h, http.MethodGet, "/api/runs?limit=2")
	require.Equal(t, http.StatusOK, rr.Code)
	var reports []model.RunReport
	decode(t, rr, &reports)
	require.Len(t, reports, 2)
	assert.Equal(t, "new", reports[0].RunID)
	assert.Equal(t, "mid", reports[1].RunID)

	rr = do(t, h, http.MethodGet, "/api/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	require.NoError(t, st.SaveRecords(ctx, "hni", []model.Record{
		{model.FieldEmail: "a@x.com"}, {model.FieldEmail: "b@x.com"}, {model.FieldEmail: "c@x.com"},
	}))
	rr = do(t, h, http.MethodGet, "/api/channels/hni/records?limit=2")
	require.Equal(t, http.StatusOK, rr.Code)
	var recs RecordsResponse
	decode(t, rr, &recs)
	assert.Equal(t, 3, recs.Total)
	require.Len(t, recs.Records, 2)
	assert.Equal(t, "b@x.com", recs.Records[0].String(model.FieldEmail))

	rr = do(t, h, http.MethodGet, "/api/channels/uhni/records")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"channel":"uhni","total":0,"records":[]}`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/channels/nope/records")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStartRun_WaitReturnsResult(t *testing.T) {
	h, st := builtinHandler(t)
	rr := do(t, h, http.MethodPost, "/api/channels/partners/runs?wait=true")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res engine.Result
	decode(t, rr, &res)
	assert.Equal(t, "partners", res.Channel)
	assert.False(t, res.Live)
	assert.Positive(t, res.Records)

	reports, err := st.LoadReports(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, res.RunID, reports[0].RunID)
}

func TestStartRun_ConflictWhileRunning(t *testing.T) {
	release := make(chan struct{})
	reg := pipeline.NewRegistry()
	reg.Register("block", func(pipeline.Descriptor, *pipeline.RunContext) (pipeline.Step, error) {
		return pipeline.StepFunc(func(_ context.Context, batch []model.Record) ([]model.Record, error) {
			<-release
			return batch, nil
		}), nil
	})
	def := pipeline.Definition{ID: "hni", Channel: "hni", Steps: []pipeline.Descriptor{{ID: "b", Kind: "block"}}}
	h, e, _ := newHandler(t, []pipeline.Definition{def}, reg)

	rr := do(t, h, http.MethodPost, "/api/channels/hni/runs?live=true")
	require.Equal(t, http.StatusAccepted, rr.Code)
	var acc RunAccepted
	decode(t, rr, &acc)
	assert.Equal(t, "accepted", acc.Status)
	assert.True(t, acc.Live)
	assert.NotEmpty(t, acc.RunID)

	rr = do(t, h, http.MethodPost, "/api/channels/hni/runs")
	assert.Equal(t, http.StatusConflict, rr.Code)

	close(release)
	assert.Eventually(t, func() bool { return !e.Running("hni") }, time.Second, 5*time.Millisecond)
}

func TestStartRun_UnknownChannel(t *testing.T) {
	h, _ := builtinHandler(t)
	rr := do(t, h, http.MethodPost, "/api/channels/nope/runs")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := builtinHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/channels", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
