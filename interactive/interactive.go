// Package interactive runs a line-oriented prompt loop on a terminal.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Config defines parameters for an interactive session.
type Config struct {
	Prompt      string
	HistoryFile string // Path for loading/saving history
	// ProcessFn handles one submitted line. Its context is cancelled when the
	// user presses Ctrl+C while it runs.
	ProcessFn func(ctx context.Context, input string) error

	Stdin  io.ReadCloser
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.SugaredLogger
}

// Run reads lines until EOF, an interrupt at an idle prompt, or ctx is done.
// Each non-empty line is passed to cfg.ProcessFn.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.ProcessFn == nil {
		return errors.New("interactive: ProcessFn is required")
	}

	rlCfg := &readline.Config{
		Prompt:                 cfg.Prompt,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
		HistoryFile:            cfg.HistoryFile,
		HistoryLimit:           10000,
		HistorySearchFold:      true,
		DisableAutoSaveHistory: true,
		FuncIsTerminal: func() bool {
			f, ok := cfg.Stdout.(*os.File)
			return ok && term.IsTerminal(int(f.Fd()))
		},
	}
	if cfg.Stdin != nil {
		rlCfg.Stdin = cfg.Stdin
	}
	if cfg.Stdout != nil {
		rlCfg.Stdout = cfg.Stdout
	}
	if cfg.Stderr != nil {
		rlCfg.Stderr = cfg.Stderr
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	s := &session{rl: rl, cfg: cfg, log: log}
	return s.loop(ctx)
}

type session struct {
	rl  *readline.Instance
	cfg Config
	log *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the in-flight ProcessFn, if any
}

func (s *session) loop(ctx context.Context) error {
	// Unblock Readline when the caller goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.log.Infof("context cancelled (%v), closing readline", ctx.Err())
			s.rl.Close()
		case <-done:
		}
	}()

	for {
		line, err := s.rl.Readline()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if len(line) == 0 {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("readline: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.rl.SaveHistory(line); err != nil {
			s.log.Warnf("failed to save history: %v", err)
		}
		if err := s.process(ctx, line); err != nil {
			return err
		}
	}
}

// process runs ProcessFn while watching for Ctrl+C on the terminal.
func (s *session) process(ctx context.Context, line string) error {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	stopWatch := s.watchInterrupt()
	defer stopWatch()

	err := s.cfg.ProcessFn(pctx, line)

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()

	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		s.log.Debug("processing interrupted")
		return nil
	}
	return err
}

// Interrupt cancels the in-flight submission, if any.
func (s *session) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
