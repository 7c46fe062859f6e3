package llms

import (
	"fmt"

	"github.com/geoscrai/universalis/pkg/registry"
)

// Config selects and configures a model provider.
type Config struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

// ModelRegistry holds named LanguageModel instances.
type ModelRegistry struct {
	*registry.Registry[LanguageModel]
}

// NewModelRegistry creates an empty model registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{Registry: registry.New[LanguageModel]()}
}

// RegisterFromConfig builds the model described by cfg and registers it
// under the given name.
func (r *ModelRegistry) RegisterFromConfig(name string, cfg Config) (LanguageModel, error) {
	model, err := NewModelFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.Register(name, model); err != nil {
		return nil, err
	}
	return model, nil
}

// NewModelFromConfig builds a LanguageModel from config. Supported
// providers: "openai" (any OpenAI-compatible chat endpoint, the default)
// and "static" (offline scripted model).
func NewModelFromConfig(cfg Config) (LanguageModel, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIModel(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
		})
	case "static":
		return NewStaticModel(""), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
