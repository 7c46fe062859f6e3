// Package llms defines the language model port used by agents and the
// Archon, an OpenAI-compatible chat provider, and a controller that adds
// retries and caching on top of any model.
package llms

import (
	"context"
	"errors"
	"time"
)

// Sampling defaults shared by every model implementation.
const (
	DefaultTemperature    = 1.0
	DefaultTopP           = 0.95
	DefaultTopK           = 64
	DefaultTimeoutSeconds = 60
	DefaultMaxTokens      = 5000
)

// ErrInvalidResponse is returned when a model cannot produce a valid choice
// within the attempt budget.
var ErrInvalidResponse = errors.New("invalid model response")

// SampleOptions tunes a single SampleText call.
type SampleOptions struct {
	MaxTokens   int
	Terminators []string
	Temperature float64
	TopP        float64
	TopK        int
	Timeout     time.Duration
	Seed        *int64
}

// DefaultSampleOptions returns the canonical sampling parameters.
func DefaultSampleOptions() SampleOptions {
	return SampleOptions{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		TopK:        DefaultTopK,
		Timeout:     DefaultTimeoutSeconds * time.Second,
	}
}

// LanguageModel is the port every model provider implements. SampleText
// returns only the completion, truncated before the first terminator.
// SampleChoice picks one of the given responses and returns its index, the
// response, and provider info such as attempt counts.
type LanguageModel interface {
	SampleText(ctx context.Context, prompt string, opts SampleOptions) (string, error)
	SampleChoice(ctx context.Context, prompt string, responses []string) (int, string, map[string]any, error)
	ModelName() string
}
