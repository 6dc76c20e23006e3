package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Completer is a text completion backend. Implementations must be safe for
// concurrent use.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (string, error) {
	return f(ctx, prompt, systemPrompt, temperature, maxTokens)
}
