package llms

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// StaticModel is an offline LanguageModel. It replies from a scripted queue,
// falling back to a fixed response when the queue is empty. It keeps
// simulations runnable without a model endpoint and makes tests
// deterministic.
type StaticModel struct {
	mu       sync.Mutex
	queue    []string
	fallback string
	prompts  []string
}

// NewStaticModel creates a static model with the given fallback response.
func NewStaticModel(fallback string) *StaticModel {
	if fallback == "" {
		fallback = "Hold position and observe."
	}
	return &StaticModel{fallback: fallback}
}

// Enqueue appends scripted responses consumed in order by SampleText.
func (m *StaticModel) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// Prompts returns every prompt the model has seen, in order.
func (m *StaticModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// SampleText pops the next scripted response, or the fallback, applying
// terminator truncation like a real provider.
func (m *StaticModel) SampleText(ctx context.Context, prompt string, opts SampleOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	content := m.fallback
	if len(m.queue) > 0 {
		content = m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	for _, terminator := range opts.Terminators {
		if idx := strings.Index(content, terminator); idx >= 0 {
			content = content[:idx]
		}
	}
	return content, nil
}

var staticChoicePattern = regexp.MustCompile(`\d+`)

// SampleChoice consumes the next scripted response as the choice number,
// defaulting to the first option.
func (m *StaticModel) SampleChoice(ctx context.Context, prompt string, responses []string) (int, string, map[string]any, error) {
	if len(responses) == 0 {
		return 0, "", nil, fmt.Errorf("%w: no responses provided to choose from", ErrInvalidResponse)
	}

	raw, err := m.SampleText(ctx, prompt, SampleOptions{})
	if err != nil {
		return 0, "", nil, err
	}

	index := 0
	if match := staticChoicePattern.FindString(raw); match != "" {
		if choice, err := strconv.Atoi(match); err == nil && choice >= 1 && choice <= len(responses) {
			index = choice - 1
		}
	}
	return index, responses[index], map[string]any{"raw_response": raw, "attempts": 1}, nil
}

// ModelName identifies the static model.
func (m *StaticModel) ModelName() string {
	return "static"
}

var _ LanguageModel = (*StaticModel)(nil)
