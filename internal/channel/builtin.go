package channel

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var builtinYAML []byte

type profileFile struct {
	Profiles []*Profile `yaml:"profiles"`
}

// BuiltIn returns fresh copies of the compiled-in profiles in declaration
// order. Callers may mutate the result.
func BuiltIn() ([]*Profile, error) {
	return parseProfiles(builtinYAML)
}

func parseProfiles(data []byte) ([]*Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "channel: parse profiles")
	}
	for _, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Profiles, nil
}
