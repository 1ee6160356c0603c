// Command promptdemo-web serves the promptdemo browser UI.
//
// The page lets the user pick a model and an image style, enter a prompt and
// either run it through the continuation loop or generate an image. Model and
// style lists and image generation use the OpenAI-compatible API at
// --base-url; completions use the configured backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/tmc/promptdemo/backends"
	"github.com/tmc/promptdemo/completion"
	"github.com/tmc/promptdemo/inference"
	"github.com/tmc/promptdemo/logging"
	"github.com/tmc/promptdemo/options"
	"github.com/tmc/promptdemo/web"
	"golang.org/x/term"
)

func main() {
	fs := newFlagSet(os.Args[0], pflag.ExitOnError)
	fs.Parse(os.Args[1:])
	configPath, _ := fs.GetString("config")
	verbose, _ := fs.GetBool("verbose")
	debug, _ := fs.GetBool("debug")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configPath, fs, verbose, debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFlagSet(name string, handling pflag.ErrorHandling) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, handling)
	fs.String("listen", ":8080", "Address to listen on")
	fs.StringP("backend", "b", options.DefaultBackend, "The backend to use")
	fs.StringP("model", "m", "", "The default model (default depends on the backend)")
	fs.String("base-url", "", "Base URL of an OpenAI-compatible API")
	fs.IntP("max-tokens", "t", 150, "Maximum tokens per completion call")
	fs.IntP("max-retries", "r", 10, "Maximum number of completion calls")
	fs.String("dummy-script", "", "txtar script replayed by the dummy backend")
	fs.String("config", "", "Path to the configuration file")
	fs.BoolP("verbose", "v", false, "Verbose output")
	fs.Bool("debug", false, "Debug output")

	// hidden flags
	fs.Duration("inject-latency", 0, "Delay every backend request by this much")
	fs.Float64("failure-rate", 0, "Fail this fraction of backend requests")
	fs.MarkHidden("inject-latency")
	fs.MarkHidden("failure-rate")
	return fs
}

func run(ctx context.Context, configPath string, fs *pflag.FlagSet, verbose, debug bool) error {
	cfg, err := options.LoadConfig(configPath, os.Stderr, fs)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(os.Stderr, verbose, debug, term.IsTerminal(int(os.Stderr.Fd())))
	defer logger.Sync()

	model, err := backends.InitializeModel(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	svc, err := completion.New(cfg, model, completion.WithLogger(logger.Named("completion")))
	if err != nil {
		return fmt.Errorf("failed to create completion service: %w", err)
	}

	var opts []web.Option
	opts = append(opts, web.WithLogger(logger.Named("web")))
	// The inference API is OpenAI-shaped; other backends serve the configured
	// model and styles only.
	if cfg.Backend == "openai" && cfg.BaseURL != "" {
		opts = append(opts, web.WithInference(inference.New(cfg.BaseURL, cfg.APIKey(),
			inference.WithTimeout(cfg.CompletionTimeout),
			inference.WithStyles(cfg.Styles),
			inference.WithLogger(logger.Named("inference")),
		)))
	}

	srv, err := web.New(svc, cfg, opts...)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, cfg.Listen)
}
