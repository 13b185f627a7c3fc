// Package engine runs channel pipelines against a shared store and keeps
// at most one run per channel in flight.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
)

// ErrBusy is returned when the channel already has a run in progress.
var ErrBusy = eris.New("engine: channel is already running")

// Options control a single run.
type Options struct {
	Live  bool
	RunID string
}

// Result summarizes a finished run.
type Result struct {
	RunID       string           `json:"runId"`
	Channel     string           `json:"channel"`
	Pipeline    string           `json:"pipeline"`
	Live        bool             `json:"live"`
	Records     int              `json:"records"`
	Metrics     map[string]int64 `json:"metrics"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
}

// Engine resolves a channel to its profile and pipeline and runs it.
type Engine struct {
	channels *channel.Registry
	catalog  *pipeline.Catalog
	store    store.RecordStore
	registry *pipeline.Registry
	settings pipeline.Settings
	now      func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock handed to run contexts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(channels *channel.Registry, catalog *pipeline.Catalog, st store.RecordStore, reg *pipeline.Registry, settings pipeline.Settings, opts ...Option) *Engine {
	e := &Engine{
		channels: channels,
		catalog:  catalog,
		store:    st,
		registry: reg,
		settings: settings,
		now:      time.Now,
		running:  make(map[string]bool),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Channels returns the active channel profiles.
func (e *Engine) Channels() *channel.Registry { return e.channels }

// Catalog returns the pipeline definitions.
func (e *Engine) Catalog() *pipeline.Catalog { return e.catalog }

// Store returns the record store runs write to.
func (e *Engine) Store() store.RecordStore { return e.store }

func (e *Engine) acquire(channelID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[channelID] {
		return false
	}
	e.running[channelID] = true
	return true
}

func (e *Engine) release(channelID string) {
	e.mu.Lock()
	delete(e.running, channelID)
	e.mu.Unlock()
}

// Running reports whether channelID has a run in progress.
func (e *Engine) Running(channelID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[channelID]
}

func (e *Engine) resolve(channelID string) (*channel.Profile, pipeline.Definition, error) {
	profile, err := e.channels.Get(channelID)
	if err != nil {
		return nil, pipeline.Definition{}, err
	}
	def, err := e.catalog.ForChannel(channelID)
	if err != nil {
		return nil, pipeline.Definition{}, err
	}
	return profile, def, nil
}

// Run executes the pipeline bound to channelID. It returns ErrBusy when the
// channel is already running.
func (e *Engine) Run(ctx context.Context, channelID string, opts Options) (*Result, error) {
	profile, def, err := e.resolve(channelID)
	if err != nil {
		return nil, err
	}
	if !e.acquire(channelID) {
		return nil, ErrBusy
	}
	defer e.release(channelID)
	return e.execute(ctx, profile, def, opts)
}

// Start launches the channel's pipeline in the background and returns its
// run id. The channel is claimed before Start returns, so a second Start
// for the same channel gets ErrBusy. ctx bounds the background run.
func (e *Engine) Start(ctx context.Context, channelID string, opts Options) (string, error) {
	profile, def, err := e.resolve(channelID)
	if err != nil {
		return "", err
	}
	if !e.acquire(channelID) {
		return "", ErrBusy
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	go func() {
		defer e.release(channelID)
		res, err := e.execute(ctx, profile, def, opts)
		if err != nil {
			zap.L().Error("engine: background run failed",
				zap.String("channel", channelID), zap.String("run_id", opts.RunID), zap.Error(err))
			return
		}
		zap.L().Info("engine: background run complete",
			zap.String("channel", channelID), zap.String("run_id", res.RunID), zap.Int("records", res.Records))
	}()
	return opts.RunID, nil
}

func (e *Engine) execute(ctx context.Context, profile *channel.Profile, def pipeline.Definition, opts Options) (*Result, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := e.now()
	rc := pipeline.NewRunContext(profile, e.store,
		pipeline.WithLive(opts.Live),
		pipeline.WithSettings(e.settings),
		pipeline.WithNow(e.now),
	)
	rc.SetMeta(pipeline.MetaRunID, runID)
	rc.SetMeta(pipeline.MetaStartedAt, started.UTC().Format(time.RFC3339))

	out, err := pipeline.NewRunner(e.registry).Run(ctx, def, rc)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: run %s", profile.ID)
	}
	return &Result{
		RunID:       runID,
		Channel:     profile.ID,
		Pipeline:    def.ID,
		Live:        opts.Live,
		Records:     len(out),
		Metrics:     rc.Metrics(),
		StartedAt:   started,
		CompletedAt: e.now(),
	}, nil
}

// RunAll runs every channel in registration order. A failed channel is
// logged and the rest still run; the joined errors are returned.
func (e *Engine) RunAll(ctx context.Context, opts Options) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, p := range e.channels.List() {
		if _, err := e.catalog.ForChannel(p.ID); err != nil {
			zap.L().Debug("engine: channel has no pipeline", zap.String("channel", p.ID))
			continue
		}
		o := opts
		o.RunID = ""
		res, err := e.Run(ctx, p.ID, o)
		if err != nil {
			zap.L().Error("engine: channel run failed", zap.String("channel", p.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
