package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/promptdemo/continuation"
)

// ErrNoChoices is returned when a model response carries no choices.
var ErrNoChoices = errors.New("no response choices from model")

// Client issues single chat completions through a langchaingo model.
// It implements continuation.CompletionClient.
type Client struct {
	model        llms.Model
	timeout      time.Duration
	temperature  float64
	systemPrompt string
}

var _ continuation.CompletionClient = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout bounds each completion call. Zero disables the timeout.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithSystemPrompt prepends a system message to every call.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// NewClient returns a Client backed by model.
func NewClient(model llms.Model, opts ...ClientOption) *Client {
	c := &Client{model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete implements continuation.CompletionClient.
func (c *Client) Complete(ctx context.Context, model string, messages []continuation.Message, maxTokens int) (continuation.CompletionResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	callOpts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithMaxTokens(maxTokens),
	}
	if c.temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(c.temperature))
	}

	resp, err := c.model.GenerateContent(ctx, c.messageContent(messages), callOpts...)
	if err != nil {
		return continuation.CompletionResult{}, fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return continuation.CompletionResult{}, ErrNoChoices
	}
	choice := resp.Choices[0]
	return continuation.CompletionResult{
		Content:      choice.Content,
		FinishReason: NormalizeStopReason(choice.StopReason),
	}, nil
}

func (c *Client) messageContent(messages []continuation.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages)+1)
	if c.systemPrompt != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, c.systemPrompt))
	}
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == continuation.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// NormalizeStopReason maps provider stop reasons onto the canonical finish
// reasons. Unknown values are lower-cased and passed through.
func NormalizeStopReason(raw string) continuation.FinishReason {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch strings.NewReplacer("_", "", "-", "", " ", "").Replace(r) {
	case "length", "maxtokens", "finishreasonmaxtokens":
		return continuation.FinishReasonLength
	case "stop", "endturn", "stopsequence", "finishreasonstop":
		return continuation.FinishReasonStop
	}
	return continuation.FinishReason(r)
}
