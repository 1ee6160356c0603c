// Package continuation produces one complete logical response for a prompt by
// re-issuing chat completions while the server reports length truncation.
package continuation

import "context"

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation sent on each completion call.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FinishReason is the server-reported reason a completion stopped.
// Only FinishReasonLength triggers continuation; every other value ends a run.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
)

// CompletionResult is the output of a single completion call.
type CompletionResult struct {
	Content      string
	FinishReason FinishReason
}

// CompletionClient issues one chat completion.
//
// Implementations must not retain or modify messages after Complete returns.
// Any returned error is treated as a transport failure.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []Message, maxTokens int) (CompletionResult, error)
}

// CompletionClientFunc adapts a function to the CompletionClient interface.
type CompletionClientFunc func(ctx context.Context, model string, messages []Message, maxTokens int) (CompletionResult, error)

// Complete calls f.
func (f CompletionClientFunc) Complete(ctx context.Context, model string, messages []Message, maxTokens int) (CompletionResult, error) {
	return f(ctx, model, messages, maxTokens)
}
