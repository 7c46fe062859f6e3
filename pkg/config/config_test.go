package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Alpha_Scenario", cfg.Simulation.ID)
	assert.Equal(t, 1000, cfg.Simulation.TickIntervalMS)
	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, 0.1, cfg.Simulation.PerceptionRadius)
	assert.False(t, cfg.Simulation.AutoRun)
	assert.Equal(t, "memories", cfg.Memory.Table)
	assert.Equal(t, 384, cfg.Memory.Dimension)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.True(t, cfg.SpatialEnabled())
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("UNIVERSALIS_API_KEY", "sk-test-123")
	path := filepath.Join(t.TempDir(), "universalis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
state:
  path: /var/lib/universalis/state.db
  read_only: true
  spatial: false
memory:
  path: /var/lib/universalis/memory
  dimension: 512
llm:
  base_url: ${UNIVERSALIS_BASE_URL:-http://localhost:11434/v1}
  model: llama3
  api_key: ${UNIVERSALIS_API_KEY}
  temperature: 0.2
  embedding_model: nomic-embed-text
simulation:
  id: Harbor_Exercise
  tick_interval_ms: 250
  auto_run: true
  perception_radius: 0.05
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/universalis/state.db", cfg.State.Path)
	assert.True(t, cfg.State.ReadOnly)
	assert.False(t, cfg.SpatialEnabled())
	assert.Equal(t, 512, cfg.Memory.Dimension)
	assert.Equal(t, "memories", cfg.Memory.Table, "defaults still applied")
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL, "env default used when unset")
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey, "env var expanded")
	assert.Equal(t, "Harbor_Exercise", cfg.Simulation.ID)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.True(t, cfg.Simulation.AutoRun)
	assert.Equal(t, 0.05, cfg.Simulation.PerceptionRadius)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Alpha_Scenario", cfg.Simulation.ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromMapValidation(t *testing.T) {
	_, err := LoadFromMap(map[string]any{
		"llm": map[string]any{"temperature": 5.0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.temperature")

	cfg, err := LoadFromMap(map[string]any{
		"simulation": map[string]any{"id": "Map_Sim", "tick_interval_ms": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, "Map_Sim", cfg.Simulation.ID)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval())
}

func TestClientConfigMapping(t *testing.T) {
	cfg := Default()
	cfg.LLM.BaseURL = "http://localhost:11434/v1"
	cfg.LLM.Model = "llama3"
	cfg.LLM.APIKey = "sk"
	cfg.LLM.EmbeddingModel = "nomic-embed-text"
	cfg.Memory.Path = "/tmp/mem"

	llmCfg := cfg.LLMClientConfig()
	assert.Equal(t, "llama3", llmCfg.Model)
	assert.Equal(t, 0.7, llmCfg.Temperature)

	embCfg := cfg.EmbedderConfig()
	assert.Equal(t, "nomic-embed-text", embCfg.Model)
	assert.Equal(t, 384, embCfg.Dimension)

	assert.Equal(t, "/tmp/mem", cfg.VectorConfig().PersistPath)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("UNIVERSALIS_ENV_PROBE=from_env_file\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("UNIVERSALIS_ENV_PROBE", "")
	os.Unsetenv("UNIVERSALIS_ENV_PROBE")

	require.NoError(t, LoadEnvFiles())
	assert.Equal(t, "from_env_file", os.Getenv("UNIVERSALIS_ENV_PROBE"))
}
