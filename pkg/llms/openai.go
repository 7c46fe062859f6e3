package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/geoscrai/universalis/pkg/logger"
)

// OpenAIConfig configures the OpenAI-compatible chat model. Any endpoint
// speaking the /chat/completions protocol works (OpenAI, OpenRouter, local
// gateways).
type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

// OpenAIModel implements LanguageModel over an OpenAI-compatible chat API.
type OpenAIModel struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxRetries  int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Seed        *int64        `json:"seed,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIModel validates the config and applies defaults.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &OpenAIModel{
		client:      &http.Client{},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       cfg.Model,
		temperature: temperature,
		maxRetries:  maxRetries,
	}, nil
}

// SampleText sends the prompt as a single user message and truncates the
// completion before the first matching terminator.
func (m *OpenAIModel) SampleText(ctx context.Context, prompt string, opts SampleOptions) (string, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = m.temperature
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeoutSeconds * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req := chatRequest{
		Model:       m.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Seed:        opts.Seed,
	}
	content, err := m.complete(ctx, req)
	if err != nil {
		return "", err
	}

	for _, terminator := range opts.Terminators {
		if idx := strings.Index(content, terminator); idx >= 0 {
			content = content[:idx]
		}
	}
	return content, nil
}

var firstIntPattern = regexp.MustCompile(`\d+`)

// SampleChoice presents the responses as a numbered list and asks the model
// for the number. The first integer in the reply is the choice; out-of-range
// or unparsable replies are retried up to three times before
// ErrInvalidResponse.
func (m *OpenAIModel) SampleChoice(ctx context.Context, prompt string, responses []string) (int, string, map[string]any, error) {
	if len(responses) == 0 {
		return 0, "", nil, fmt.Errorf("%w: no responses provided to choose from", ErrInvalidResponse)
	}

	var options strings.Builder
	for i, response := range responses {
		fmt.Fprintf(&options, "%d. %s\n", i+1, response)
	}
	selectionPrompt := fmt.Sprintf(
		"%s\n\nChoose ONE of the following options by responding with just the number:\n%s\nYour choice (number only):",
		prompt, options.String())

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req := chatRequest{
			Model:       m.model,
			Messages:    []chatMessage{{Role: "user", Content: selectionPrompt}},
			Temperature: m.temperature,
		}
		content, err := m.complete(ctx, req)
		if err != nil {
			logger.GetLogger().Warn("Choice attempt failed", "attempt", attempt, "error", err)
			continue
		}

		match := firstIntPattern.FindString(strings.TrimSpace(content))
		if match == "" {
			continue
		}
		choice, err := strconv.Atoi(match)
		if err != nil || choice < 1 || choice > len(responses) {
			continue
		}
		index := choice - 1
		return index, responses[index], map[string]any{
			"raw_response": strings.TrimSpace(content),
			"attempts":     attempt,
		}, nil
	}
	return 0, "", nil, fmt.Errorf("%w: no valid choice after %d attempts", ErrInvalidResponse, maxAttempts)
}

func (m *OpenAIModel) complete(ctx context.Context, req chatRequest) (string, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		content, err := m.completeOnce(ctx, reqBody)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if attempt < m.maxRetries-1 {
			backoff := time.Duration(attempt+1) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", lastErr
}

func (m *OpenAIModel) completeOnce(ctx context.Context, reqBody []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("chat API error: %s (type: %s)", chatResp.Error.Message, chatResp.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(body))
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// ModelName returns the configured model identifier.
func (m *OpenAIModel) ModelName() string {
	return m.model
}

var _ LanguageModel = (*OpenAIModel)(nil)
