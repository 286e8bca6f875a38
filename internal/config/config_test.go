package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "Houston", cfg.Location.City)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "qwen2.5:7b", cfg.LLM.Model)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Planner.MaxIterations)
	assert.Equal(t, 5, cfg.Review.MaxConcurrent)
	assert.Equal(t, 5, cfg.Research.MaxConcurrent)
	assert.Equal(t, "none", cfg.Delivery.Method)
	assert.False(t, cfg.Research.Enabled)
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: openai
  model: gpt-4o
server:
  port: 9000
`)
	cfg, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Defaults should still be set for unspecified fields
	assert.Equal(t, "http://localhost:11434", cfg.LLM.OllamaURL)
	assert.Equal(t, "America/Chicago", cfg.Location.Timezone)
	assert.Equal(t, []string{"web", "wikipedia"}, cfg.Research.Backends)
}

func TestParseRejectsInvalidDelivery(t *testing.T) {
	_, err := parse([]byte("delivery:\n  method: pigeon\n"))
	assert.ErrorContains(t, err, "invalid delivery method")

	_, err = parse([]byte("delivery:\n  method: email\n"))
	assert.ErrorContains(t, err, "requires a recipient")
}

func TestParseRejectsBadTimezone(t *testing.T) {
	_, err := parse([]byte("location:\n  timezone: Mars/Olympus\n"))
	assert.ErrorContains(t, err, "invalid location.timezone")
}

func TestParseRejectsZeroIterations(t *testing.T) {
	_, err := parse([]byte("planner:\n  max_iterations: 0\n"))
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Sources.SerpAPI.Enabled)
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	assert.NotEmpty(t, cfg.GetDataDir())

	cfg.Output.DataDir = "/custom/path"
	assert.Equal(t, "/custom/path", cfg.GetDataDir())
}

func TestResolveSecrets(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err)

	env := map[string]string{
		"SERPAPI_KEY":       "serp",
		"OPENAI_API_KEY":    "oa",
		"TWILIO_AUTH_TOKEN": "tok",
	}
	secrets := cfg.ResolveSecrets(func(k string) string { return env[k] })

	assert.Equal(t, "serp", secrets.SerpAPIKey)
	assert.Equal(t, "oa", secrets.OpenAIKey)
	assert.Equal(t, "tok", secrets.TwilioToken)
	assert.Empty(t, secrets.TicketmasterKey)
}

func TestTimeLocation(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", cfg.TimeLocation().String())
}
