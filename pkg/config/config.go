// Package config loads and validates the YAML run configuration: the
// evolutionary hyperparameters, fitness weights, gene pools, and provider
// settings for one optimization run.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
	"github.com/XiaoConstantine/retrievolve/pkg/evaluation"
	"github.com/XiaoConstantine/retrievolve/pkg/evolution"
	"github.com/XiaoConstantine/retrievolve/pkg/genome"
)

// Config is the root run configuration.
type Config struct {
	// Evolutionary hyperparameters.
	Run evolution.Config `yaml:"run"`

	// Objective weights; must sum to 1.
	Weights evaluation.Weights `yaml:"weights"`

	// Legal gene value sets. Empty sections fall back to the defaults.
	Pools genome.Pools `yaml:"pools"`

	// Embedding provider settings.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Optional text generator for LLM-backed genes.
	Generator GeneratorConfig `yaml:"generator,omitempty"`

	// Fitness scale constants.
	Evaluation EvaluationConfig `yaml:"evaluation,omitempty"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	// Provider backend.
	Provider string `yaml:"provider" validate:"required,oneof=ollama openai demo"`

	// Base URL for HTTP providers; provider default when empty.
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	// Environment variable holding the API key for remote providers.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Vector size, used by the demo provider.
	Dimensions int `yaml:"dimensions" validate:"min=1"`

	// Request ceiling for remote providers; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`

	// Dollar cost per embedding call, fed into the cost objective.
	CostPerCall float64 `yaml:"cost_per_call" validate:"min=0"`

	// Embedding cache backend.
	Cache string `yaml:"cache" validate:"oneof=none memory sqlite"`

	// SQLite cache file path; required for the sqlite backend.
	CachePath string `yaml:"cache_path,omitempty"`
}

// GeneratorConfig wires an Anthropic model behind the LLM-backed query
// processors and rerankers. Disabled, those genes fall back to raw behavior.
type GeneratorConfig struct {
	Enabled bool `yaml:"enabled"`

	Model string `yaml:"model,omitempty"`

	// Environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	MaxTokens int64 `yaml:"max_tokens" validate:"min=0"`

	// Dollar cost per generation call.
	CostPerCall float64 `yaml:"cost_per_call" validate:"min=0"`
}

// EvaluationConfig holds the fitness scale constants.
type EvaluationConfig struct {
	// Metric cutoff K.
	MetricK int `yaml:"metric_k" validate:"min=1"`

	// Latency at which the speed subscore halves.
	LatencyScale time.Duration `yaml:"latency_scale" validate:"min=0"`

	// Cost at which the cost subscore halves.
	CostScale float64 `yaml:"cost_scale" validate:"min=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR FATAL"`

	// Optional log file appended alongside console output.
	File string `yaml:"file,omitempty"`
}

// Default returns a runnable configuration with local-provider defaults.
func Default() Config {
	return Config{
		Run:     evolution.DefaultConfig(),
		Weights: evaluation.Weights{Correctness: 0.7, Speed: 0.2, Cost: 0.1},
		Pools:   genome.DefaultPools(),
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Dimensions: 384,
			Cache:      "memory",
		},
		Generator: GeneratorConfig{
			MaxTokens: 512,
		},
		Evaluation: EvaluationConfig{
			MetricK:      evaluation.DefaultMetricK,
			LatencyScale: evaluation.DefaultLatencyScale,
			CostScale:    evaluation.DefaultCostScale,
		},
		Logging: LoggingConfig{Level: "INFO"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, errors.InvalidConfiguration, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.InvalidConfiguration, "failed to parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation plus the cross-field checks the tags
// cannot express. Any failure aborts the run before evaluation starts.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, errors.InvalidConfiguration, "invalid configuration")
	}
	if err := c.Run.Validate(); err != nil {
		return err
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Pools.Validate(); err != nil {
		return err
	}
	if c.Embedding.Cache == "sqlite" && c.Embedding.CachePath == "" {
		return errors.New(errors.InvalidConfiguration, "sqlite cache requires cache_path")
	}
	if c.Generator.Enabled && c.Generator.Model == "" {
		return errors.New(errors.InvalidConfiguration, "enabled generator requires a model")
	}
	return nil
}
