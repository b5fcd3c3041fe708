// Package ai talks to the language model vendors: question generation,
// interview analysis and speech-to-text.
package ai

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyCompletion is returned when a vendor answers with no content.
var ErrEmptyCompletion = errors.New("empty completion")

// Prompt is one system+user exchange.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer is a chat-style language model.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// cleanJSONResponse strips markdown code fences models like to wrap JSON in.
func cleanJSONResponse(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
