// Package config is the process-wide configuration tree: YAML files loaded
// through koanf, .env files through godotenv, and ${VAR} expansion inside
// values. Every section carries defaults and eager validation.
package config

import (
	"fmt"
	"time"

	"github.com/geoscrai/universalis/pkg/embedder"
	"github.com/geoscrai/universalis/pkg/llms"
	"github.com/geoscrai/universalis/pkg/vector"
)

// StateConfig configures the SQLite state store.
type StateConfig struct {
	// Path of the database file; empty means an in-memory store.
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"read_only"`
	// Spatial toggles terrain and path queries. On by default.
	Spatial *bool `yaml:"spatial,omitempty"`
}

// MemoryConfig configures the associative memory bank.
type MemoryConfig struct {
	// Path of the vector store persistence directory; empty keeps the
	// bank in memory only.
	Path      string `yaml:"path"`
	Table     string `yaml:"table"`
	Dimension int    `yaml:"dimension"`
}

// LLMConfig configures the language model and the embedding model.
type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	Temperature    float64 `yaml:"temperature"`
	MaxRetries     int     `yaml:"max_retries"`
	EmbeddingModel string  `yaml:"embedding_model"`
}

// SimulationConfig configures the engine clock and perception.
type SimulationConfig struct {
	ID               string  `yaml:"id"`
	TickIntervalMS   int     `yaml:"tick_interval_ms"`
	AutoRun          bool    `yaml:"auto_run"`
	PerceptionRadius float64 `yaml:"perception_radius"`
}

// Config is the root configuration tree.
type Config struct {
	State      StateConfig      `yaml:"state"`
	Memory     MemoryConfig     `yaml:"memory"`
	LLM        LLMConfig        `yaml:"llm"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// SetDefaults fills every unset field with its default.
func (c *Config) SetDefaults() {
	if c.State.Spatial == nil {
		enabled := true
		c.State.Spatial = &enabled
	}
	if c.Memory.Table == "" {
		c.Memory.Table = "memories"
	}
	if c.Memory.Dimension <= 0 {
		c.Memory.Dimension = 384
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.Simulation.ID == "" {
		c.Simulation.ID = "Alpha_Scenario"
	}
	if c.Simulation.TickIntervalMS <= 0 {
		c.Simulation.TickIntervalMS = 1000
	}
	if c.Simulation.PerceptionRadius <= 0 {
		c.Simulation.PerceptionRadius = 0.1
	}
}

// Validate checks the tree for values defaults cannot repair.
func (c *Config) Validate() error {
	if c.Simulation.ID == "" {
		return fmt.Errorf("simulation.id cannot be empty")
	}
	if c.Simulation.TickIntervalMS <= 0 {
		return fmt.Errorf("simulation.tick_interval_ms must be positive, got %d", c.Simulation.TickIntervalMS)
	}
	if c.Simulation.PerceptionRadius <= 0 {
		return fmt.Errorf("simulation.perception_radius must be positive, got %g", c.Simulation.PerceptionRadius)
	}
	if c.Memory.Dimension <= 0 {
		return fmt.Errorf("memory.dimension must be positive, got %d", c.Memory.Dimension)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %g", c.LLM.Temperature)
	}
	return nil
}

// TickInterval returns the configured tick interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Simulation.TickIntervalMS) * time.Millisecond
}

// SpatialEnabled reports whether terrain queries are enabled.
func (c *Config) SpatialEnabled() bool {
	return c.State.Spatial == nil || *c.State.Spatial
}

// LLMClientConfig maps the tree onto the llms package config.
func (c *Config) LLMClientConfig() llms.Config {
	return llms.Config{
		Provider:    c.LLM.Provider,
		BaseURL:     c.LLM.BaseURL,
		APIKey:      c.LLM.APIKey,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxRetries:  c.LLM.MaxRetries,
	}
}

// EmbedderConfig maps the tree onto the embedder package config.
func (c *Config) EmbedderConfig() embedder.OpenAIConfig {
	return embedder.OpenAIConfig{
		BaseURL:   c.LLM.BaseURL,
		APIKey:    c.LLM.APIKey,
		Model:     c.LLM.EmbeddingModel,
		Dimension: c.Memory.Dimension,
	}
}

// VectorConfig maps the tree onto the vector store config.
func (c *Config) VectorConfig() vector.ChromemConfig {
	return vector.ChromemConfig{PersistPath: c.Memory.Path}
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
