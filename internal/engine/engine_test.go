package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/steps"
	"github.com/sells-group/leadflow/internal/store"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, defs []pipeline.Definition, reg *pipeline.Registry) (*Engine, *store.FileStore) {
	t.Helper()
	channels, err := channel.NewRegistry("")
	require.NoError(t, err)
	catalog, err := pipeline.NewCatalog(defs, "")
	require.NoError(t, err)
	st := store.NewFileStore(t.TempDir(), "")
	return New(channels, catalog, st, reg, pipeline.Settings{SenderName: "Desk"},
		WithClock(func() time.Time { return fixedNow })), st
}

func TestRun_BuiltinChannel(t *testing.T) {
	reg := steps.NewRegistry(steps.Deps{Export: steps.ExportSettings{Dir: t.TempDir()}})
	e, st := newEngine(t, steps.BuiltinDefinitions(), reg)
	ctx := context.Background()

	res, err := e.Run(ctx, "hni", Options{RunID: "run-42"})
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)
	assert.Equal(t, "hni", res.Pipeline)
	assert.False(t, res.Live)
	assert.Positive(t, res.Records)
	assert.Equal(t, int64(res.Records), res.Metrics["stored"])
	assert.False(t, e.Running("hni"))

	reports, err := st.LoadReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "run-42", reports[0].RunID)
	assert.Equal(t, fixedNow, reports[0].StartedAt.UTC())
}

func TestRun_UnknownChannel(t *testing.T) {
	e, _ := newEngine(t, steps.BuiltinDefinitions(), steps.NewRegistry(steps.Deps{}))
	_, err := e.Run(context.Background(), "nope", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestRun_BusyChannel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	reg := pipeline.NewRegistry()
	reg.Register("block", func(pipeline.Descriptor, *pipeline.RunContext) (pipeline.Step, error) {
		return pipeline.StepFunc(func(ctx context.Context, batch []model.Record) ([]model.Record, error) {
			close(entered)
			<-release
			return batch, nil
		}), nil
	})
	def := pipeline.Definition{ID: "hni", Channel: "hni", Steps: []pipeline.Descriptor{{ID: "b", Kind: "block"}}}
	e, _ := newEngine(t, []pipeline.Definition{def}, reg)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), "hni", Options{})
		done <- err
	}()
	<-entered

	assert.True(t, e.Running("hni"))
	_, err := e.Run(context.Background(), "hni", Options{})
	assert.True(t, errors.Is(err, ErrBusy))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, e.Running("hni"))
}

func TestRunAll_ContinuesPastFailures(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register("ok", func(pipeline.Descriptor, *pipeline.RunContext) (pipeline.Step, error) {
		return pipeline.StepFunc(func(_ context.Context, batch []model.Record) ([]model.Record, error) {
			return append(batch, model.Record{model.FieldEmail: "a@x.com"}), nil
		}), nil
	})
	reg.Register("fail", func(pipeline.Descriptor, *pipeline.RunContext) (pipeline.Step, error) {
		return pipeline.StepFunc(func(context.Context, []model.Record) ([]model.Record, error) {
			return nil, errors.New("apify exploded")
		}), nil
	})
	defs := []pipeline.Definition{
		{ID: "hni", Channel: "hni", Steps: []pipeline.Descriptor{{ID: "s", Kind: "ok"}}},
		{ID: "uhni", Channel: "uhni", Steps: []pipeline.Descriptor{{ID: "s", Kind: "fail"}}},
		{ID: "partners", Channel: "partners", Steps: []pipeline.Descriptor{{ID: "s", Kind: "ok"}}},
	}
	e, _ := newEngine(t, defs, reg)

	results, err := e.RunAll(context.Background(), Options{RunID: "ignored"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apify exploded")
	require.Len(t, results, 2)
	assert.NotEqual(t, "ignored", results[0].RunID)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
	for _, r := range results {
		assert.Equal(t, 1, r.Records)
	}
}

func TestStart_ClaimsChannelBeforeReturning(t *testing.T) {
	release := make(chan struct{})
	reg := pipeline.NewRegistry()
	reg.Register("block", func(pipeline.Descriptor, *pipeline.RunContext) (pipeline.Step, error) {
		return pipeline.StepFunc(func(_ context.Context, batch []model.Record) ([]model.Record, error) {
			<-release
			return batch, nil
		}), nil
	})
	def := pipeline.Definition{ID: "uhni", Channel: "uhni", Steps: []pipeline.Descriptor{{ID: "b", Kind: "block"}}}
	e, _ := newEngine(t, []pipeline.Definition{def}, reg)

	id, err := e.Start(context.Background(), "uhni", Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, e.Running("uhni"))

	_, err = e.Start(context.Background(), "uhni", Options{})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	assert.Eventually(t, func() bool { return !e.Running("uhni") }, time.Second, 5*time.Millisecond)
}
