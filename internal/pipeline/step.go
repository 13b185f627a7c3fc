package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
)

// Step transforms a whole batch. A returned error terminates the run.
type Step interface {
	Execute(ctx context.Context, batch []model.Record) ([]model.Record, error)
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, batch []model.Record) ([]model.Record, error)

// Execute calls f.
func (f StepFunc) Execute(ctx context.Context, batch []model.Record) ([]model.Record, error) {
	return f(ctx, batch)
}

// Descriptor declares one step of a pipeline definition.
type Descriptor struct {
	ID            string         `yaml:"id" json:"id"`
	Kind          string         `yaml:"kind" json:"kind"`
	Name          string         `yaml:"name" json:"name,omitempty"`
	Config        map[string]any `yaml:"config" json:"config,omitempty"`
	ForceSimulate bool           `yaml:"force_simulate" json:"force_simulate,omitempty"`
	ForceLive     bool           `yaml:"force_live" json:"force_live,omitempty"`
}

// Base carries what every step needs. Concrete steps embed it.
type Base struct {
	desc Descriptor
	rc   *RunContext
	log  *zap.Logger
}

// NewBase builds the Base for desc.
func NewBase(desc Descriptor, rc *RunContext) Base {
	return Base{
		desc: desc,
		rc:   rc,
		log: zap.L().With(
			zap.String("step", desc.ID),
			zap.String("kind", desc.Kind),
			zap.String("name", desc.Name),
		),
	}
}

// Logger returns a logger tagged with the step identity.
func (b Base) Logger() *zap.Logger { return b.log }

// Context returns the run context.
func (b Base) Context() *RunContext { return b.rc }

// Descriptor returns the step's declaration.
func (b Base) Descriptor() Descriptor { return b.desc }

// ShouldSimulate reports whether the step must avoid live side effects.
// force_simulate beats force_live, which beats the run's live flag.
func (b Base) ShouldSimulate() bool {
	if b.desc.ForceSimulate {
		return true
	}
	if b.desc.ForceLive {
		return false
	}
	return !b.rc.Live
}
