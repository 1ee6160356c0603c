// Package completion wires a langchaingo model into the continuation loop and
// runs it for the command line and the web UI.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/promptdemo/continuation"
	"github.com/tmc/promptdemo/input"
	"github.com/tmc/promptdemo/interactive"
	"github.com/tmc/promptdemo/options"
	"go.uber.org/zap"
)

// ErrEmptyInput is returned by Run when no prompt text was provided.
var ErrEmptyInput = errors.New("no input provided")

// Service is the main entry point for the completion service.
type Service struct {
	cfg    *options.Config
	logger *zap.SugaredLogger

	model     llms.Model
	client    continuation.CompletionClient
	continuer *continuation.Continuer

	opts *Options
}

// Options is the configuration for the Service.
type Options struct {
	// Stdout is the writer for standard output. If nil, os.Stdout will be used.
	Stdout io.Writer
	// Stderr is the writer for standard error. If nil, os.Stderr will be used.
	Stderr io.Writer

	ShowSpinner bool

	// CompletionTimeout is the timeout for each completion call.
	CompletionTimeout time.Duration

	ReadlineHistoryFile string
}

type ServiceOption func(*Service)

// WithOptions is a ServiceOption that sets the whole options struct
func WithOptions(opts Options) ServiceOption {
	return func(s *Service) {
		s.opts = &opts
	}
}

// WithStdout sets the stdout writer
func WithStdout(w io.Writer) ServiceOption {
	return func(s *Service) {
		s.opts.Stdout = w
	}
}

// WithStderr sets the stderr writer
func WithStderr(w io.Writer) ServiceOption {
	return func(s *Service) {
		s.opts.Stderr = w
	}
}

// WithLogger sets the logger for the completion service.
func WithLogger(l *zap.SugaredLogger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithCompletionClient replaces the langchaingo-backed client.
func WithCompletionClient(c continuation.CompletionClient) ServiceOption {
	return func(s *Service) {
		s.client = c
	}
}

// NewOptions creates a new Options with defaults.
func NewOptions() Options {
	return Options{
		Stdout:              os.Stdout,
		Stderr:              os.Stderr,
		ShowSpinner:         true,
		ReadlineHistoryFile: "~/.promptdemo_history",
	}
}

// New creates a new Service with the given configuration.
func New(cfg *options.Config, model llms.Model, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if model == nil {
		return nil, errors.New("model cannot be nil")
	}

	defaultOpts := NewOptions()
	defaultOpts.CompletionTimeout = cfg.CompletionTimeout
	s := &Service{
		cfg:   cfg,
		model: model,
		opts:  &defaultOpts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.opts.Stdout == nil {
		s.opts.Stdout = os.Stdout
	}
	if s.opts.Stderr == nil {
		s.opts.Stderr = os.Stderr
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}

	if s.client == nil {
		s.client = NewClient(model,
			WithCallTimeout(s.opts.CompletionTimeout),
			WithTemperature(cfg.Temperature),
			WithSystemPrompt(cfg.SystemPrompt),
		)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = continuation.DefaultMaxRetries
	}
	s.continuer = continuation.New(s.client,
		continuation.WithMaxRetries(maxRetries),
		continuation.WithLogger(s.logger.Named("continuation")),
	)
	return s, nil
}

// Request is one user submission.
type Request struct {
	Prompt string `json:"prompt"`
	// Model defaults to the configured model.
	Model string `json:"model,omitempty"`
	// MaxTokens is the per-call budget; it defaults to the configured value.
	MaxTokens int `json:"maxTokens,omitempty"`
}

// Complete runs the continuation loop for req.
// The returned error is non-nil only for invalid requests; transport
// failures are reported in the Result.
func (s *Service) Complete(ctx context.Context, req Request) (continuation.Result, error) {
	if req.Model == "" {
		req.Model = s.cfg.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.cfg.MaxTokens
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = continuation.DefaultMaxTokensPerCall
	}

	start := time.Now()
	res, err := s.continuer.Run(ctx, req.Prompt, req.Model, req.MaxTokens)
	if err != nil {
		return res, err
	}
	log := s.logger.With(
		"model", req.Model,
		"calls", res.Calls,
		"finishReason", res.FinishReason,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	switch {
	case res.Failed():
		log.Warnw("completion incomplete", "error", res.Err, "chars", len(res.Text))
	case res.Truncated():
		log.Infow("completion capped at retry ceiling", "chars", len(res.Text))
	default:
		log.Infow("completion finished", "chars", len(res.Text))
	}
	return res, nil
}

// Run executes the command line flow described by runCfg.
func (s *Service) Run(ctx context.Context, runCfg options.RunOptions) error {
	if runCfg.Stdout != nil {
		s.opts.Stdout = runCfg.Stdout
	}
	if runCfg.Stderr != nil {
		s.opts.Stderr = runCfg.Stderr
	}
	s.opts.ShowSpinner = runCfg.ShowSpinner
	if runCfg.ReadlineHistoryFile != "" {
		s.opts.ReadlineHistoryFile = runCfg.ReadlineHistoryFile
	}

	if runCfg.Continuous {
		return s.runContinuous(ctx, runCfg)
	}
	return s.runOneShot(ctx, runCfg)
}

func (s *Service) readInput(ctx context.Context, runCfg options.RunOptions) (string, error) {
	p := input.NewProcessor(runCfg.InputFiles, runCfg.InputStrings, runCfg.PositionalArgs, runCfg.Stdin)
	r, err := p.Reader(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get inputs: %w", err)
	}
	b, err := io.ReadAll(r)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("failed to read inputs: %w", err)
	}
	return string(b), nil
}

func (s *Service) runOneShot(ctx context.Context, runCfg options.RunOptions) error {
	s.logger.Debug("running one-shot completion")
	prompt, err := s.readInput(ctx, runCfg)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyInput
	}

	res, err := s.complete(ctx, prompt)
	if err != nil {
		return err
	}
	if res.Failed() {
		return fmt.Errorf("completion incomplete: %w", res.Err)
	}
	return nil
}

func (s *Service) runContinuous(ctx context.Context, runCfg options.RunOptions) error {
	s.logger.Debug("running continuous completion")
	stdin, _ := runCfg.Stdin.(io.ReadCloser)
	return interactive.Run(ctx, interactive.Config{
		Prompt:      "> ",
		HistoryFile: expandTilde(s.opts.ReadlineHistoryFile),
		Stdin:       stdin,
		Stdout:      s.opts.Stdout,
		Stderr:      s.opts.Stderr,
		Logger:      s.logger.Named("interactive"),
		ProcessFn: func(ctx context.Context, line string) error {
			_, err := s.complete(ctx, line)
			return err
		},
	})
}

// complete runs one submission with a spinner and writes the outcome.
func (s *Service) complete(ctx context.Context, prompt string) (continuation.Result, error) {
	var stopSpinner func()
	if s.opts.ShowSpinner && isTerminal(s.opts.Stderr) {
		stopSpinner = spin(0, s.opts.Stderr)
	}
	res, err := s.Complete(ctx, Request{Prompt: prompt})
	if stopSpinner != nil {
		stopSpinner()
	}
	if err != nil {
		return res, err
	}

	if res.Text != "" {
		fmt.Fprint(s.opts.Stdout, res.Text)
		if !strings.HasSuffix(res.Text, "\n") {
			fmt.Fprintln(s.opts.Stdout)
		}
	}
	s.report(res)
	return res, nil
}

// report writes a notice for incomplete results to stderr.
func (s *Service) report(res continuation.Result) {
	switch {
	case res.Failed():
		if errors.Is(res.Err, context.Canceled) {
			fmt.Fprintln(s.opts.Stderr, noticeStyle.Render("[interrupted]"))
			return
		}
		fmt.Fprintln(s.opts.Stderr, errorStyle.Render(fmt.Sprintf("error: %v", res.Err)))
	case res.Truncated():
		fmt.Fprintln(s.opts.Stderr, noticeStyle.Render(fmt.Sprintf("[response still truncated after %d calls]", res.Calls)))
	}
}
