package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Definition is an ordered list of steps bound to a channel.
type Definition struct {
	ID      string       `yaml:"id" json:"id"`
	Name    string       `yaml:"name" json:"name"`
	Channel string       `yaml:"channel" json:"channel"`
	Steps   []Descriptor `yaml:"steps" json:"steps"`
}

// Validate checks the definition's shape. Step kinds are checked against
// the registry when the runner builds the steps.
func (d Definition) Validate() error {
	if d.ID == "" {
		return eris.New("pipeline: definition id is required")
	}
	if d.Channel == "" {
		return eris.Errorf("pipeline: definition %s: channel is required", d.ID)
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.Kind == "" {
			return eris.Errorf("pipeline: definition %s: step %d has no kind", d.ID, i)
		}
		if s.ID == "" {
			return eris.Errorf("pipeline: definition %s: step %d has no id", d.ID, i)
		}
		if seen[s.ID] {
			return eris.Errorf("pipeline: definition %s: duplicate step id %q", d.ID, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// LoadDefinitionFile reads one YAML definition. The id defaults to the
// file name stem.
func LoadDefinitionFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, eris.Wrapf(err, "pipeline: read %s", path)
	}
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Definition{}, eris.Wrapf(err, "pipeline: parse %s", path)
	}
	if d.ID == "" {
		d.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// LoadDefinitionDir reads every .yaml/.yml file in dir in name order. A
// missing directory yields no definitions.
func LoadDefinitionDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read dir %s", dir)
	}
	var out []Definition
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		d, err := LoadDefinitionFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Catalog holds the available definitions keyed by id.
type Catalog struct {
	defs map[string]Definition
}

// NewCatalog builds a catalog from base definitions plus overrides loaded
// from dir. An override replaces the base definition with the same id.
func NewCatalog(base []Definition, dir string) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition, len(base))}
	for _, d := range base {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		c.defs[d.ID] = d
	}
	if dir == "" {
		return c, nil
	}
	overrides, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	for _, d := range overrides {
		c.defs[d.ID] = d
	}
	return c, nil
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (Definition, error) {
	d, ok := c.defs[id]
	if !ok {
		return Definition{}, eris.Errorf("pipeline: unknown pipeline %q", id)
	}
	return d, nil
}

// ForChannel returns the definition bound to channel. A definition whose
// id equals the channel id wins over others bound to it.
func (c *Catalog) ForChannel(channelID string) (Definition, error) {
	if d, ok := c.defs[channelID]; ok && d.Channel == channelID {
		return d, nil
	}
	ids := make([]string, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if c.defs[id].Channel == channelID {
			return c.defs[id], nil
		}
	}
	return Definition{}, eris.Errorf("pipeline: no pipeline for channel %q", channelID)
}

// List returns all definitions sorted by id.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
