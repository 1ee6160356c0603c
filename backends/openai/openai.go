// Package openai provides the OpenAI backend implementation.
// Any OpenAI-compatible inference API can be reached by configuring its base URL.
package openai

import (
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/promptdemo/backends/registry"
	"github.com/tmc/promptdemo/options"
)

func init() {
	registry.Register("openai", Constructor)
}

// Constructor creates a new OpenAI backend
func Constructor(cfg *options.Config, opts *options.InferenceProviderOptions) (llms.Model, error) {
	apiKey := opts.EnvLookupFunc("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey != "" {
		apiKey = cfg.OpenAIAPIKey
	}

	openaiOpts := []openai.Option{
		openai.WithToken(apiKey),
	}
	if cfg.Model != "" {
		openaiOpts = append(openaiOpts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	if opts.HTTPClient != nil {
		openaiOpts = append(openaiOpts, openai.WithHTTPClient(opts.HTTPClient))
	}

	return openai.New(openaiOpts...)
}
