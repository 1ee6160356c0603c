package continuation

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries bounds the number of completion calls made by one run.
	DefaultMaxRetries = 10

	// DefaultMaxTokensPerCall is the per-call token budget used by callers
	// that do not configure one.
	DefaultMaxTokensPerCall = 150
)

// ContinuePrompt is the synthetic user message appended after a truncated completion.
const ContinuePrompt = "Continue from exactly where you stopped. Provide a brief summary of the remaining information. Do not repeat any previous content."

// Result is the outcome of one Run.
type Result struct {
	// Text is every chunk received, concatenated in call order.
	Text string `json:"text"`
	// Calls is the number of completion calls issued, including a failed one.
	Calls int `json:"calls"`
	// FinishReason is the finish reason of the last successful call.
	FinishReason FinishReason `json:"finishReason"`
	// Messages is the conversation as it stood when the run ended.
	Messages []Message `json:"-"`
	// Err is a *TransportError, or the context error if the run was
	// cancelled between calls. It is nil for complete and capped runs.
	Err error `json:"-"`
}

// Failed reports whether the run ended on a transport failure or cancellation.
func (r Result) Failed() bool { return r.Err != nil }

// Truncated reports whether the run hit the retry ceiling while the server
// still reported length truncation. Text may be an incomplete answer.
func (r Result) Truncated() bool {
	return r.Err == nil && r.FinishReason == FinishReasonLength
}

// TransportFailure returns the transport error that ended the run, if any.
func (r Result) TransportFailure() (*TransportError, bool) {
	var te *TransportError
	if errors.As(r.Err, &te) {
		return te, true
	}
	return nil, false
}

// Continuer drives the continuation loop against a CompletionClient.
// A Continuer holds no per-run state and is safe for concurrent use.
type Continuer struct {
	client         CompletionClient
	maxRetries     int
	continuePrompt string
	logger         *zap.SugaredLogger
}

// Option configures a Continuer.
type Option func(*Continuer)

// WithMaxRetries sets the maximum number of completion calls per run.
func WithMaxRetries(n int) Option {
	return func(c *Continuer) {
		c.maxRetries = n
	}
}

// WithContinuePrompt overrides the message appended after a truncated completion.
func WithContinuePrompt(prompt string) Option {
	return func(c *Continuer) {
		c.continuePrompt = prompt
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Continuer) {
		c.logger = l
	}
}

// New returns a Continuer that issues calls through client.
func New(client CompletionClient, opts ...Option) *Continuer {
	c := &Continuer{
		client:         client,
		maxRetries:     DefaultMaxRetries,
		continuePrompt: ContinuePrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	return c
}

// MaxRetries returns the configured call ceiling.
func (c *Continuer) MaxRetries() int { return c.maxRetries }

// runState is owned by a single Run invocation.
type runState struct {
	messages     []Message
	accumulated  strings.Builder
	retries      int
	finishReason FinishReason
}

func (st *runState) result(err error) Result {
	return Result{
		Text:         st.accumulated.String(),
		Calls:        st.retries,
		FinishReason: st.finishReason,
		Messages:     slices.Clone(st.messages),
		Err:          err,
	}
}

// Run produces the full response to prompt.
//
// Run returns an error only when its arguments are invalid. Transport
// failures and cancellation end the run early and are reported in
// Result.Err alongside whatever text was accumulated.
func (c *Continuer) Run(ctx context.Context, prompt, model string, maxTokensPerCall int) (Result, error) {
	switch {
	case prompt == "":
		return Result{}, ErrEmptyPrompt
	case model == "":
		return Result{}, ErrEmptyModel
	case maxTokensPerCall <= 0:
		return Result{}, ErrInvalidMaxTokens
	case c.maxRetries <= 0:
		return Result{}, ErrInvalidMaxRetries
	}

	st := &runState{
		messages:     []Message{{Role: RoleUser, Content: prompt}},
		finishReason: FinishReasonLength,
	}
	start := time.Now()
	log := c.logger.With("model", model, "maxTokens", maxTokensPerCall)

	for st.finishReason == FinishReasonLength && st.retries < c.maxRetries {
		if err := ctx.Err(); err != nil {
			log.Infow("continuation cancelled", "calls", st.retries, "error", err)
			return st.result(err), nil
		}

		res, err := c.client.Complete(ctx, model, slices.Clone(st.messages), maxTokensPerCall)
		if err != nil {
			st.retries++
			if ctxErr := ctx.Err(); ctxErr != nil {
				log.Infow("continuation cancelled", "calls", st.retries, "error", ctxErr)
				return st.result(ctxErr), nil
			}
			log.Warnw("completion call failed", "call", st.retries, "error", err)
			return st.result(&TransportError{Call: st.retries, Err: err}), nil
		}

		st.messages = append(st.messages, Message{Role: RoleAssistant, Content: res.Content})
		st.accumulated.WriteString(res.Content)
		st.finishReason = res.FinishReason
		if st.finishReason == FinishReasonLength {
			st.messages = append(st.messages, Message{Role: RoleUser, Content: c.continuePrompt})
		}
		st.retries++
		log.Debugw("completion call finished",
			"call", st.retries,
			"finishReason", st.finishReason,
			"chunkBytes", len(res.Content))
	}

	if st.finishReason == FinishReasonLength {
		log.Infow("retry ceiling reached", "calls", st.retries, "elapsed", time.Since(start))
	} else {
		log.Debugw("continuation done", "calls", st.retries, "elapsed", time.Since(start))
	}
	return st.result(nil), nil
}
