// Package backends provides a unified interface to various LLM backends
package backends

import (
	"net/http"

	"github.com/tmc/langchaingo/httputil"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/promptdemo/backends/registry"
	"github.com/tmc/promptdemo/options"

	// Register all backends
	_ "github.com/tmc/promptdemo/backends/anthropic"
	_ "github.com/tmc/promptdemo/backends/dummy"
	_ "github.com/tmc/promptdemo/backends/googleai"
	_ "github.com/tmc/promptdemo/backends/ollama"
	_ "github.com/tmc/promptdemo/backends/openai"
)

type InferenceProviderOption = options.InferenceProviderOption

// InitializeModel initializes the model based on the given configuration.
// When cfg.Debug is set and no client is supplied, requests are traced with
// langchaingo's debug HTTP client. Configured fault injection wraps whichever
// client ends up being used.
func InitializeModel(cfg *options.Config, providerOpts ...options.InferenceProviderOption) (llms.Model, error) {
	if cfg.Debug {
		providerOpts = append([]options.InferenceProviderOption{registry.WithHTTPClient(httputil.DebugHTTPClient)}, providerOpts...)
	}
	if cfg.InjectLatency > 0 || cfg.FailureRate > 0 {
		providerOpts = append(providerOpts, WithFaultInjection(cfg.InjectLatency, cfg.FailureRate))
	}
	return registry.InitializeModel(cfg, providerOpts...)
}

// Names returns the registered backend names.
func Names() []string {
	return registry.Names()
}

// WithHTTPClient returns an option to set the HTTP client for the inference provider
func WithHTTPClient(client *http.Client) options.InferenceProviderOption {
	return registry.WithHTTPClient(client)
}
