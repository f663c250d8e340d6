// Package genai talks to the language understanding/generation service.
package genai

import (
	"context"
	"errors"
	"fmt"

	"retail-chat-workers/internal/common/config"
)

var (
	ErrLLMTimeout     = errors.New("LLM_TIMEOUT")
	ErrLLMUnavailable = errors.New("LLM_UNAVAILABLE")
	ErrEmptyResponse  = errors.New("LLM_EMPTY_RESPONSE")
)

// Request is one prompt for the language service.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSON asks the service for a machine-parseable reply.
	JSON bool
}

// Client is implemented by every language service backend.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// New builds the backend selected by cfg.Provider.
func New(cfg config.GenAIConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGenAI, "":
		return NewHTTPClient(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported genai provider %q", cfg.Provider)
	}
}
