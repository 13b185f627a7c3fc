// Package pipeline runs ordered step sequences over a batch of lead records.
package pipeline

import "fmt"

// ConfigurationError is a fatal problem with a pipeline definition: an
// unknown step kind, an invalid step config, or a live-only step missing
// what it needs.
type ConfigurationError struct {
	Step   string
	Kind   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Step == "" && e.Kind == "" {
		return "pipeline: configuration: " + e.Reason
	}
	return fmt.Sprintf("pipeline: step %s (%s): %s", e.Step, e.Kind, e.Reason)
}

// ValidationError rejects a single record. Steps count it and drop the
// record; it never aborts a run.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
