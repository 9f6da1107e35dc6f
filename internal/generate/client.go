// Package generate drafts contract text with a language model. Each contract
// section is requested separately and the answers are assembled in order.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vowpact/internal/config"
)

var (
	// ErrEmptyCompletion is returned when the provider answers with no text.
	ErrEmptyCompletion = errors.New("model returned an empty completion")
	// ErrInvalidRequest wraps Request validation failures.
	ErrInvalidRequest = errors.New("invalid generation request")
)

// LLMClient is the minimal completion surface the generator needs.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewClient returns the client selected by cfg.Provider.
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini":
		c, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "template", "":
		return NewTemplateClient(), nil
	}
	return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
}
