// Package dummy provides a dummy backend for testing
package dummy

import (
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/promptdemo/backends/registry"
	"github.com/tmc/promptdemo/options"
)

func init() {
	registry.Register("dummy", Constructor)
}

// Constructor creates a new dummy backend.
// If cfg.DummyScript names a txtar archive, its steps are replayed in order.
func Constructor(cfg *options.Config, opts *options.InferenceProviderOptions) (llms.Model, error) {
	if cfg.DummyScript == "" {
		return New(), nil
	}
	steps, err := LoadScript(cfg.DummyScript)
	if err != nil {
		return nil, err
	}
	return New(steps...), nil
}
