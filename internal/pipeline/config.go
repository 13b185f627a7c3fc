package pipeline

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by step configs that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// DecodeConfig decodes desc.Config into out, which should already hold the
// kind's defaults. Unknown fields and failed validation are
// ConfigurationErrors.
func DecodeConfig(desc Descriptor, out any) error {
	if len(desc.Config) > 0 {
		raw, err := yaml.Marshal(desc.Config)
		if err != nil {
			return &ConfigurationError{Step: desc.ID, Kind: desc.Kind, Reason: err.Error()}
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return &ConfigurationError{Step: desc.ID, Kind: desc.Kind, Reason: "invalid config: " + err.Error()}
		}
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return &ConfigurationError{Step: desc.ID, Kind: desc.Kind, Reason: err.Error()}
		}
	}
	return nil
}
