package pipeline

import (
	"fmt"
	"sort"
)

// Factory constructs a step from its descriptor.
type Factory func(desc Descriptor, rc *RunContext) (Step, error)

// Registry maps step kinds to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f under kind. Registering a kind twice panics.
func (r *Registry) Register(kind string, f Factory) {
	if _, dup := r.factories[kind]; dup {
		panic(fmt.Sprintf("pipeline: step kind %q registered twice", kind))
	}
	r.factories[kind] = f
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	_, ok := r.factories[kind]
	return ok
}

// Kinds lists the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs the step for desc. An unknown kind is a
// ConfigurationError.
func (r *Registry) Build(desc Descriptor, rc *RunContext) (Step, error) {
	f, ok := r.factories[desc.Kind]
	if !ok {
		return nil, &ConfigurationError{Step: desc.ID, Kind: desc.Kind, Reason: "no handler registered for kind"}
	}
	return f(desc, rc)
}
