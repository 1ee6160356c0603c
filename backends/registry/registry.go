// Package registry provides a registry for model backends
package registry

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/promptdemo/options"
)

// BackendConstructor is a function that creates a new model instance
type BackendConstructor func(*options.Config, *options.InferenceProviderOptions) (llms.Model, error)

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

// Register registers a new backend constructor
func Register(name string, constructor BackendConstructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = constructor
}

// Get returns a backend constructor by name
func Get(name string) (BackendConstructor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	constructor, ok := registry[name]
	return constructor, ok
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithHTTPClient returns an option to set the HTTP client for the inference provider
func WithHTTPClient(client *http.Client) options.InferenceProviderOption {
	return func(opts *options.InferenceProviderOptions) {
		opts.HTTPClient = client
	}
}

// WithEnvLookupFunc returns an option to override how credentials are read from the environment
func WithEnvLookupFunc(fn func(string) string) options.InferenceProviderOption {
	return func(opts *options.InferenceProviderOptions) {
		opts.EnvLookupFunc = fn
	}
}

// InitializeModel initializes the model based on the given configuration
func InitializeModel(cfg *options.Config, providerOpts ...options.InferenceProviderOption) (llms.Model, error) {
	opts := &options.InferenceProviderOptions{EnvLookupFunc: options.Getenv}
	for _, option := range providerOpts {
		option(opts)
	}

	constructor, ok := Get(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
	return constructor(cfg, opts)
}
