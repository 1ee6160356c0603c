// Command promptdemo sends a prompt to a chat model and keeps asking the
// model to continue for as long as its answer is cut off by the token limit.
//
// Usage:
//
//	promptdemo [flags] [prompt words...]
//
// Flags:
//
//	-b, --backend string               The backend to use (default "openai")
//	-m, --model string                 The model to use (default depends on the backend)
//	-i, --input stringArray            Direct string input (can be used multiple times)
//	-f, --file stringArray             Input file path. Use '-' for stdin (can be used multiple times)
//	-c, --continuous                   Run in continuous mode (interactive)
//	-s, --system-prompt string         System prompt to use
//	-t, --max-tokens int               Maximum tokens per completion call (default 150)
//	-r, --max-retries int              Maximum number of completion calls (default 10)
//	    --temperature float            Sampling temperature (default 0.7)
//	    --base-url string              Base URL of an OpenAI-compatible API
//	    --dummy-script string          txtar script replayed by the dummy backend
//	    --config string                Path to the configuration file
//	-v, --verbose                      Verbose output
//	    --debug                        Debug output
//	    --completion-timeout duration  Maximum time to wait for each completion call (default 1m0s)
//	-h, --help                         Display help information
//
// Input sources are combined in order: files, -i strings, then positional
// arguments. Piped stdin is used when no other input is given.
//
// When the model stops because it ran out of tokens, promptdemo appends the
// partial answer to the conversation, asks the model to continue, and prints
// the concatenated answer once the model finishes or the call limit is hit.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/tmc/promptdemo/backends"
	"github.com/tmc/promptdemo/completion"
	"github.com/tmc/promptdemo/continuation"
	"github.com/tmc/promptdemo/logging"
	"github.com/tmc/promptdemo/options"
	"golang.org/x/term"
)

func main() {
	opts, fs, err := initFlags(os.Args, os.Stdin)
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(context.Background(), opts, fs); err != nil {
		// Incomplete results have already been reported with the partial text.
		var terr *continuation.TransportError
		if !errors.As(err, &terr) && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func initFlags(args []string, stdin io.Reader) (options.RunOptions, *pflag.FlagSet, error) {
	opts := options.RunOptions{
		Stdin:  stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	name := "promptdemo"
	if len(args) > 0 {
		name = args[0]
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringP("backend", "b", options.DefaultBackend, "The backend to use ("+strings.Join(backends.Names(), ", ")+")")
	fs.StringP("model", "m", "", "The model to use (default depends on the backend)")
	fs.StringArrayVarP(&opts.InputStrings, "input", "i", nil, "Direct string input (can be used multiple times)")
	fs.StringArrayVarP(&opts.InputFiles, "file", "f", nil, "Input file path. Use '-' for stdin (can be used multiple times)")
	fs.BoolVarP(&opts.Continuous, "continuous", "c", false, "Run in continuous mode (interactive)")
	fs.StringP("system-prompt", "s", "", "System prompt to use")
	fs.IntP("max-tokens", "t", continuation.DefaultMaxTokensPerCall, "Maximum tokens per completion call")
	fs.IntP("max-retries", "r", continuation.DefaultMaxRetries, "Maximum number of completion calls")
	fs.Float64("temperature", 0.7, "Sampling temperature")
	fs.String("base-url", "", "Base URL of an OpenAI-compatible API")
	fs.String("dummy-script", "", "txtar script replayed by the dummy backend")
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to the configuration file")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")
	fs.BoolVar(&opts.DebugMode, "debug", false, "Debug output")
	fs.Duration("completion-timeout", 60*time.Second, "Maximum time to wait for each completion call")
	help := fs.BoolP("help", "h", false, "Display help information")

	// hidden flags
	fs.StringVar(&opts.ReadlineHistoryFile, "readline-history-file", "~/.promptdemo_history", "File to store readline history in")
	fs.BoolVar(&opts.ShowSpinner, "show-spinner", true, "Show spinner while waiting for completion")
	fs.Duration("inject-latency", 0, "Delay every backend request by this much")
	fs.Float64("failure-rate", 0, "Fail this fraction of backend requests")
	fs.MarkHidden("readline-history-file")
	fs.MarkHidden("show-spinner")
	fs.MarkHidden("inject-latency")
	fs.MarkHidden("failure-rate")

	fs.Usage = func() {
		fmt.Fprintln(opts.Stderr, "promptdemo asks a chat model to continue until its answer is complete")
		fmt.Fprintln(opts.Stderr)
		fmt.Fprintf(opts.Stderr, "Usage of %s:\n", name)
		fs.PrintDefaults()
		fmt.Fprintln(opts.Stderr, `
Examples:
	$ echo "explain plan 9 in one sentence" | promptdemo
	$ promptdemo -t 50 -i "write a long story about a lighthouse"
	$ promptdemo -c`)
	}
	fs.SetOutput(opts.Stderr)

	if len(args) > 0 {
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return opts, fs, err
	}
	if *help {
		fs.Usage()
		return opts, fs, pflag.ErrHelp
	}
	opts.PositionalArgs = fs.Args()

	if len(args) == 0 && isTerminal(stdin) {
		opts.PrintUsage = true
	}
	return opts, fs, nil
}

func run(ctx context.Context, opts options.RunOptions, fs *pflag.FlagSet) error {
	if opts.PrintUsage {
		fs.Usage()
		return nil
	}

	// In continuous mode Ctrl+C cancels the current submission instead.
	sigs := []os.Signal{syscall.SIGTERM}
	if !opts.Continuous {
		sigs = append(sigs, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(ctx, sigs...)
	defer stop()

	cfg, err := options.LoadConfig(opts.ConfigPath, opts.Stderr, fs)
	if err != nil {
		return err
	}
	opts.Config = cfg

	logger := logging.NewLogger(opts.Stderr, opts.Verbose, opts.DebugMode, isTerminal(opts.Stderr))
	defer logger.Sync()

	model, err := backends.InitializeModel(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	logger.Debugw("initialized model", "backend", cfg.Backend, "model", cfg.Model)

	s, err := completion.New(cfg, model,
		completion.WithStdout(opts.Stdout),
		completion.WithStderr(opts.Stderr),
		completion.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create completion service: %w", err)
	}
	return s.Run(ctx, opts)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
