// Package ollama provides the Ollama backend implementation
package ollama

import (
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/promptdemo/backends/registry"
	"github.com/tmc/promptdemo/options"
)

func init() {
	registry.Register("ollama", Constructor)
}

// Constructor creates a new Ollama backend.
// The OLLAMA_HOST environment variable selects the server.
func Constructor(cfg *options.Config, opts *options.InferenceProviderOptions) (llms.Model, error) {
	ollamaOpts := []ollama.Option{
		ollama.WithModel(cfg.Model),
	}
	if host := opts.EnvLookupFunc("OLLAMA_HOST"); host != "" {
		ollamaOpts = append(ollamaOpts, ollama.WithServerURL(host))
	}
	if opts.HTTPClient != nil {
		ollamaOpts = append(ollamaOpts, ollama.WithHTTPClient(opts.HTTPClient))
	}

	return ollama.New(ollamaOpts...)
}
