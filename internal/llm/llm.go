// Package llm adapts text-generation backends to the engine's Generator
// contract and assembles the prompts the engine sends them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the generation backend cannot serve a
// request, including when its circuit breaker is open.
var ErrUnavailable = errors.New("generation service unavailable")

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (string, error)
	Available(ctx context.Context) bool
}

// Options selects and configures a backend.
type Options struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// New returns the configured Generator wrapped in a circuit breaker, or nil
// when generation is disabled.
func New(opts Options, log *zap.Logger) (Generator, error) {
	var g Generator
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "none", "off":
		return nil, nil
	case "ollama":
		g = NewOllama(opts.BaseURL, opts.Model, opts.Timeout)
	case "openrouter":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openrouter requires OPENROUTER_API_KEY")
		}
		g = NewOpenRouter(opts.APIKey, opts.Model)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", opts.Provider)
	}
	return WithBreaker(g, opts.Provider, log), nil
}
