package llms

import (
	"context"
	"fmt"
	"sync"
)

// Controller wraps a LanguageModel with bounded retries and an optional
// response cache keyed by (prompt, max tokens, temperature).
type Controller struct {
	model         LanguageModel
	maxRetries    int
	enableCaching bool

	mu    sync.Mutex
	cache map[string]string
}

// NewController creates a controller; maxRetries defaults to 3.
func NewController(model LanguageModel, maxRetries int, enableCaching bool) (*Controller, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Controller{
		model:         model,
		maxRetries:    maxRetries,
		enableCaching: enableCaching,
		cache:         make(map[string]string),
	}, nil
}

// Generate samples text with retries, consulting the cache first when
// caching is enabled.
func (c *Controller) Generate(ctx context.Context, prompt string, opts SampleOptions) (string, error) {
	cacheKey := fmt.Sprintf("%s:%d:%g", prompt, opts.MaxTokens, opts.Temperature)
	if c.enableCaching {
		c.mu.Lock()
		cached, ok := c.cache[cacheKey]
		c.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		result, err := c.model.SampleText(ctx, prompt, opts)
		if err != nil {
			lastErr = err
			continue
		}
		if c.enableCaching {
			c.mu.Lock()
			c.cache[cacheKey] = result
			c.mu.Unlock()
		}
		return result, nil
	}
	return "", fmt.Errorf("generating text after %d attempts: %w", c.maxRetries, lastErr)
}

// Choose picks one of the options via the model's choice sampling.
func (c *Controller) Choose(ctx context.Context, prompt string, options []string) (int, string, error) {
	index, response, _, err := c.model.SampleChoice(ctx, prompt, options)
	return index, response, err
}

// Model exposes the wrapped model.
func (c *Controller) Model() LanguageModel {
	return c.model
}

// ClearCache drops every cached response.
func (c *Controller) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]string)
}
