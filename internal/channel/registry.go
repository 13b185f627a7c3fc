package channel

import (
	"sync"

	"github.com/rotisserie/eris"
)

// Registry holds the active profiles. It is safe for concurrent use so the
// API server can read while a watcher swaps overrides in.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]*Profile
}

// NewRegistry builds a registry from the built-in profiles plus any YAML
// overrides in dir (which may be empty).
func NewRegistry(dir string) (*Registry, error) {
	base, err := BuiltIn()
	if err != nil {
		return nil, err
	}
	r := &Registry{profiles: make(map[string]*Profile)}
	for _, p := range base {
		r.put(p)
	}
	if dir == "" {
		return r, nil
	}
	overrides, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range overrides {
		r.put(p)
	}
	return r, nil
}

func (r *Registry) put(p *Profile) {
	if _, ok := r.profiles[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.profiles[p.ID] = p
}

// Put adds or replaces a profile after validating it.
func (r *Registry) Put(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(p)
	return nil
}

// Get returns the profile with the given id.
func (r *Registry) Get(id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, eris.Errorf("channel: unknown channel %q", id)
	}
	return p, nil
}

// List returns profiles in registration order.
func (r *Registry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}
