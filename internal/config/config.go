package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all synapse configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Engine    EngineConfig    `yaml:"engine"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EmbeddingConfig struct {
	Provider string        `yaml:"provider"` // "openai", "ollama", "none"
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EngineConfig tunes the graph engine and its maintenance passes.
type EngineConfig struct {
	Interval time.Duration `yaml:"interval"`

	BaseStrength     float64 `yaml:"base_strength"`
	StrengthVariance float64 `yaml:"strength_variance"`

	InferenceFactor    float64 `yaml:"inference_factor"`
	InferenceThreshold float64 `yaml:"inference_threshold"`

	PrunePressure   float64 `yaml:"prune_pressure_threshold"`
	PruneBatch      int     `yaml:"prune_batch"`
	PruneStrength   float64 `yaml:"prune_strength"`
	PruneTraversals int     `yaml:"prune_traversals"`

	ReinforceTraversals int     `yaml:"reinforce_traversals"`
	ReinforceBoost      float64 `yaml:"reinforce_boost"`

	ClusterStrength float64 `yaml:"cluster_strength"`
	QueryLimit      int     `yaml:"query_limit"`

	LockTimeout   time.Duration `yaml:"lock_timeout"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			Provider: "none",
			Model:    "text-embedding-3-small",
			Timeout:  5 * time.Second,
		},
		Engine: DefaultEngine(),
	}
}

// DefaultEngine returns the engine tuning used when nothing is configured.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		Interval:            30 * time.Second,
		BaseStrength:        0.5,
		StrengthVariance:    0.1,
		InferenceFactor:     0.7,
		InferenceThreshold:  0.3,
		PrunePressure:       0.8,
		PruneBatch:          5,
		PruneStrength:       0.2,
		PruneTraversals:     2,
		ReinforceTraversals: 10,
		ReinforceBoost:      1.05,
		ClusterStrength:     0.5,
		QueryLimit:          10,
		LockTimeout:         5 * time.Second,
		FlushInterval:       100 * time.Millisecond,
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment,
// in that order of precedence. A .env file in the working directory is honored
// when present.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("SYNAPSE_ENV", cfg.Env)
	cfg.Server.Bind = getEnv("SYNAPSE_BIND", cfg.Server.Bind)
	cfg.Server.Port = getEnvInt("SYNAPSE_PORT", cfg.Server.Port)
	cfg.Database.Path = getEnv("SYNAPSE_DB", cfg.Database.Path)

	cfg.Embedding.Provider = getEnv("SYNAPSE_EMBED_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = getEnv("SYNAPSE_EMBED_MODEL", cfg.Embedding.Model)
	cfg.Embedding.BaseURL = getEnv("SYNAPSE_EMBED_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Timeout = getEnvDuration("SYNAPSE_EMBED_TIMEOUT", cfg.Embedding.Timeout)

	// OPENAI_API_KEY implies the openai provider unless one was chosen explicitly.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
		if cfg.Embedding.Provider == "none" {
			cfg.Embedding.Provider = "openai"
		}
	}

	cfg.Engine.Interval = getEnvDuration("SYNAPSE_INTERVAL", cfg.Engine.Interval)
	cfg.Engine.InferenceThreshold = getEnvFloat("SYNAPSE_INFERENCE_THRESHOLD", cfg.Engine.InferenceThreshold)
	cfg.Engine.PrunePressure = getEnvFloat("SYNAPSE_PRUNE_PRESSURE", cfg.Engine.PrunePressure)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	e := c.Engine
	if e.Interval <= 0 {
		errs = append(errs, errors.New("engine.interval must be positive"))
	}
	if e.LockTimeout <= 0 {
		errs = append(errs, errors.New("engine.lock_timeout must be positive"))
	}
	if e.PruneBatch < 0 {
		errs = append(errs, errors.New("engine.prune_batch must not be negative"))
	}
	if e.QueryLimit <= 0 {
		errs = append(errs, errors.New("engine.query_limit must be positive"))
	}
	if e.InferenceFactor < 0 || e.InferenceFactor > 1 {
		errs = append(errs, fmt.Errorf("engine.inference_factor %v outside [0,1]", e.InferenceFactor))
	}
	if e.BaseStrength < 0.1 || e.BaseStrength > 1 {
		errs = append(errs, fmt.Errorf("engine.base_strength %v outside [0.1,1]", e.BaseStrength))
	}
	if e.ReinforceBoost < 1 {
		errs = append(errs, fmt.Errorf("engine.reinforce_boost %v must be >= 1", e.ReinforceBoost))
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider: %q", c.Embedding.Provider))
	}
	return errors.Join(errs...)
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// IsProduction reports whether the production logger and defaults apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
