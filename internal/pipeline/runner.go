package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
)

// State is a runner lifecycle state.
type State int

// Runner states. A run moves Idle → Initializing → Running → Flushing →
// Completed, or to Failed from any state after Idle.
const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateFlushing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Transition is reported to the OnTransition hook. Step is the index of the
// executing step while Running, else -1.
type Transition struct {
	From State
	To   State
	Step int
}

// Runner executes pipeline definitions.
type Runner struct {
	registry     *Registry
	onTransition func(Transition)

	mu    sync.Mutex
	state State
	step  int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// OnTransition installs a hook called on every state change.
func OnTransition(fn func(Transition)) RunnerOption {
	return func(r *Runner) { r.onTransition = fn }
}

// NewRunner creates a Runner that builds steps from reg.
func NewRunner(reg *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{registry: reg, step: -1}
	for _, o := range opts {
		o(r)
	}
	return r
}

// State returns the current state and the running step index.
func (r *Runner) State() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.step
}

func (r *Runner) transition(to State, step int) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.step = step
	r.mu.Unlock()
	if r.onTransition != nil {
		r.onTransition(Transition{From: from, To: to, Step: step})
	}
}

// Run executes def against rc and returns the final batch. Every step is
// constructed before any executes. On failure no later step runs, no
// artifacts are flushed and the returned batch is nil.
func (r *Runner) Run(ctx context.Context, def Definition, rc *RunContext) ([]model.Record, error) {
	log := zap.L().With(zap.String("pipeline", def.ID), zap.String("channel", rc.Channel.ID))
	start := time.Now()

	r.transition(StateInitializing, -1)
	if err := rc.Init(ctx); err != nil {
		r.transition(StateFailed, -1)
		log.Error("pipeline: init failed", zap.Error(err))
		return nil, err
	}

	steps := make([]Step, len(def.Steps))
	for i, desc := range def.Steps {
		s, err := r.registry.Build(desc, rc)
		if err != nil {
			r.transition(StateFailed, -1)
			log.Error("pipeline: build step failed",
				zap.String("step", desc.ID), zap.String("kind", desc.Kind), zap.Error(err))
			return nil, err
		}
		steps[i] = s
	}

	log.Info("pipeline: run started", zap.Int("steps", len(steps)), zap.Bool("live", rc.Live))

	var batch []model.Record
	for i, s := range steps {
		desc := def.Steps[i]
		r.transition(StateRunning, i)
		stepStart := time.Now()

		out, err := s.Execute(ctx, batch)
		if err != nil {
			r.transition(StateFailed, i)
			log.Error("pipeline: step failed",
				zap.String("step", desc.ID),
				zap.String("kind", desc.Kind),
				zap.Int64("duration_ms", time.Since(stepStart).Milliseconds()),
				zap.Error(err),
			)
			return nil, eris.Wrapf(err, "pipeline: step %s (%s)", desc.ID, desc.Kind)
		}
		log.Debug("pipeline: step complete",
			zap.String("step", desc.ID),
			zap.String("kind", desc.Kind),
			zap.Int("records", len(out)),
			zap.Int64("duration_ms", time.Since(stepStart).Milliseconds()),
		)
		batch = out
	}

	r.transition(StateFlushing, -1)
	if err := rc.FlushArtifacts(ctx); err != nil {
		r.transition(StateFailed, -1)
		log.Error("pipeline: flush failed", zap.Error(err))
		return nil, err
	}
	r.transition(StateCompleted, -1)

	log.Info("pipeline: run complete",
		zap.Int("records", len(batch)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return batch, nil
}
