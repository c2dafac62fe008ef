package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:37780", cfg.ListenAddr())
	assert.Equal(t, 30*time.Second, cfg.Engine.Interval)
	assert.Equal(t, 5, cfg.Engine.PruneBatch)
	assert.InDelta(t, 1.05, cfg.Engine.ReinforceBoost, 1e-9)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synapse.yaml")
	yamlDoc := `
env: production
server:
  port: 9000
engine:
  interval: 10s
  inference_threshold: 0.2
  prune_batch: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("SYNAPSE_PORT", "9100")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 10*time.Second, cfg.Engine.Interval)
	assert.InDelta(t, 0.2, cfg.Engine.InferenceThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Engine.PruneBatch)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	// untouched keys keep their defaults
	assert.InDelta(t, 0.7, cfg.Engine.InferenceFactor, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Engine.Interval = 0 }},
		{"factor above one", func(c *Config) { c.Engine.InferenceFactor = 1.5 }},
		{"boost below one", func(c *Config) { c.Engine.ReinforceBoost = 0.9 }},
		{"base strength", func(c *Config) { c.Engine.BaseStrength = 0 }},
		{"provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"query limit", func(c *Config) { c.Engine.QueryLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
