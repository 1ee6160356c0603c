// Package anthropic provides the Anthropic backend implementation
package anthropic

import (
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/promptdemo/backends/registry"
	"github.com/tmc/promptdemo/options"
)

func init() {
	registry.Register("anthropic", Constructor)
}

// Constructor creates a new Anthropic backend
func Constructor(cfg *options.Config, opts *options.InferenceProviderOptions) (llms.Model, error) {
	apiKey := opts.EnvLookupFunc("ANTHROPIC_API_KEY")
	if cfg.AnthropicAPIKey != "" {
		apiKey = cfg.AnthropicAPIKey
	}

	anthropicOpts := []anthropic.Option{
		anthropic.WithToken(apiKey),
	}
	if cfg.Model != "" {
		anthropicOpts = append(anthropicOpts, anthropic.WithModel(cfg.Model))
	}
	if opts.HTTPClient != nil {
		anthropicOpts = append(anthropicOpts, anthropic.WithHTTPClient(opts.HTTPClient))
	}
	return anthropic.New(anthropicOpts...)
}
