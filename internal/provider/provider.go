// Package provider abstracts text generation behind a single capability:
// send a prompt, get a short completion back. Vendors are interchangeable
// and selected by configuration; nothing outside this package references a
// vendor name.
package provider

import (
	"context"
	"fmt"

	"github.com/slipstreamco/slipcast/internal/config"
)

// Request is one completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is the one capability the narration and coaching layers depend on.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Error wraps any transport, auth, or format failure from a backend. Callers
// treat it as recoverable and fall back to templates.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds the configured provider. Returns (nil, nil) when no API key is
// set; callers then run on deterministic templates alone.
func New(cfg *config.Config) (Provider, error) {
	if cfg.Provider.APIKey == "" {
		return nil, nil
	}
	switch cfg.Provider.Type {
	case "openai":
		return newOpenAI(cfg.Provider), nil
	case "compat":
		return newCompat(cfg.Provider)
	case "agent":
		return newAgent(cfg.Provider)
	case "", "anthropic":
		return newAnthropic(cfg.Provider), nil
	}
	return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
}
