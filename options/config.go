// Package options provides configuration management for promptdemo.
package options

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultBackend is the default backend to use if none is specified.
var DefaultBackend = "openai" // Configurable via PROMPTDEMO_BACKEND (or via configuration files).

// DefaultModels is a map of backend names to their default models.
var DefaultModels = map[string]string{
	"anthropic": "claude-3-7-sonnet-20250219",
	"openai":    "gpt-4o-mini",
	"ollama":    "llama3.2",
	"googleai":  "gemini-pro",
	"dummy":     "dummy",
}

// DefaultStyles are the image styles offered when the inference service does not list its own.
var DefaultStyles = []string{"vivid", "natural"}

// Config holds the configuration for promptdemo.
type Config struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`

	// BaseURL is the root of the OpenAI-compatible inference API, e.g. https://api.openai.com/v1.
	BaseURL string `yaml:"baseURL"`

	MaxTokens   int     `yaml:"maxTokens"`
	MaxRetries  int     `yaml:"maxRetries"`
	Temperature float64 `yaml:"temperature"`

	SystemPrompt string `yaml:"systemPrompt"`

	// CompletionTimeout bounds each completion call.
	CompletionTimeout time.Duration `yaml:"completionTimeout"`

	// Image generation.
	ImageModel string   `yaml:"imageModel"`
	ImageSize  string   `yaml:"imageSize"`
	Styles     []string `yaml:"styles"`

	// Listen is the address the web UI binds to.
	Listen string `yaml:"listen"`

	Debug bool `yaml:"debug"`

	// InjectLatency delays and FailureRate fails a share of backend HTTP
	// requests, for demonstrating how incomplete responses are reported.
	InjectLatency time.Duration `yaml:"injectLatency"`
	FailureRate   float64       `yaml:"failureRate"`

	// DummyScript is a txtar archive of scripted responses for the dummy backend.
	DummyScript string `yaml:"dummyScript"`

	OpenAIAPIKey    string `yaml:"openaiAPIKey"`
	AnthropicAPIKey string `yaml:"anthropicAPIKey"`
	GoogleAPIKey    string `yaml:"googleAPIKey"`
}

// APIKey returns the credential for the configured backend.
func (c *Config) APIKey() string {
	switch c.Backend {
	case "anthropic":
		return c.AnthropicAPIKey
	case "googleai":
		return c.GoogleAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// LoadConfig loads the configuration from various sources in the following order of precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// If a config file is not found, it falls back to using defaults and flags.
func LoadConfig(path string, stderr io.Writer, flagSet *pflag.FlagSet) (*Config, error) {
	if flagSet == nil {
		flagSet = pflag.CommandLine
	}
	if stderr == nil {
		stderr = io.Discard
	}
	cfg := &Config{}
	v := viper.New()

	SetupViper(v, path, flagSet)
	SetupFlagNormalization(flagSet)

	// Read config file first
	if err := HandleConfigFile(v, path, stderr, flagSet); err != nil {
		return nil, err
	}

	// Then bind flags (so they override config)
	if err := v.BindPFlags(flagSet); err != nil {
		return nil, fmt.Errorf("unable to bind flags: %w", err)
	}

	backend := v.GetString("backend")
	if debug, _ := flagSet.GetBool("debug"); debug {
		fmt.Fprintf(stderr, "promptdemo: backend is %q\n", backend)
	}

	// Only set default model if no explicit model is set
	hasModel := false
	if f := flagSet.Lookup("model"); f != nil && f.Changed {
		hasModel = true
	} else if IsEnvSet("PROMPTDEMO_MODEL") {
		hasModel = true
		v.Set("model", os.Getenv("PROMPTDEMO_MODEL"))
	} else if v.InConfig("model") {
		hasModel = true
	}
	if !hasModel {
		if defaultModel, ok := DefaultModels[backend]; ok {
			v.Set("model", defaultModel)
			if verbose, _ := flagSet.GetBool("verbose"); verbose {
				fmt.Fprintf(stderr, "promptdemo: using default model for %s backend: %s\n", backend, defaultModel)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	return cfg, nil
}

// IsEnvSet checks if an environment variable is set.
func IsEnvSet(key string) bool {
	_, exists := os.LookupEnv(key)
	return exists
}

// SetupViper configures viper with default values and settings.
func SetupViper(v *viper.Viper, path string, flagSet *pflag.FlagSet) {
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("baseURL", "https://api.openai.com/v1")
	v.SetDefault("maxTokens", 150)
	v.SetDefault("maxRetries", 10)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("completionTimeout", 60*time.Second)
	v.SetDefault("imageModel", "dall-e-3")
	v.SetDefault("imageSize", "1024x1024")
	v.SetDefault("styles", DefaultStyles)
	v.SetDefault("listen", ":8080")

	v.AddConfigPath("/etc/promptdemo/")
	v.AddConfigPath("$HOME/.promptdemo")
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PROMPTDEMO")
	v.AutomaticEnv()
	v.BindEnv("baseURL", "PROMPTDEMO_BASE_URL", "OPENAI_BASE_URL")
	v.BindEnv("openaiAPIKey", "OPENAI_API_KEY")
	v.BindEnv("anthropicAPIKey", "ANTHROPIC_API_KEY")
	v.BindEnv("googleAPIKey", "GOOGLE_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
	}
	if f := flagSet.Lookup("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	}
}

// SetupFlagNormalization configures flag normalization to handle dashes in flag names.
func SetupFlagNormalization(flagSet *pflag.FlagSet) {
	normalizeFunc := flagSet.GetNormalizeFunc()
	flagSet.SetNormalizeFunc(func(fs *pflag.FlagSet, name string) pflag.NormalizedName {
		result := normalizeFunc(fs, name)
		name = strings.ReplaceAll(string(result), "-", "")
		return pflag.NormalizedName(name)
	})
}

// HandleConfigFile handles loading the configuration file.
// A missing file is not an error.
func HandleConfigFile(v *viper.Viper, path string, stderr io.Writer, flagSet *pflag.FlagSet) error {
	verbose, _ := flagSet.GetBool("verbose")
	configFile := path
	if f := flagSet.Lookup("config"); f != nil && f.Changed {
		configFile = f.Value.String()
	}
	if configFile != "" {
		if verbose {
			fmt.Fprintf(stderr, "promptdemo: trying to read config file: %s\n", configFile)
		}
		if _, err := os.Stat(configFile); err != nil {
			if verbose {
				fmt.Fprintf(stderr, "promptdemo: config file %s not accessible: %v\n", configFile, err)
			}
			return nil
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if debug, _ := flagSet.GetBool("debug"); debug {
				fmt.Fprintln(stderr, "promptdemo: config file not found, using defaults")
			}
			return nil
		}
		return fmt.Errorf("unable to read config file: %w", err)
	}

	if verbose {
		fmt.Fprintf(stderr, "promptdemo: successfully read config from %s\n", v.ConfigFileUsed())
	}
	return nil
}
