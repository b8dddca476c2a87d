package config

import (
	"time"

	"github.com/jackzampolin/threadtag/internal/annotate"
	"github.com/jackzampolin/threadtag/internal/pipeline"
)

// Config holds threadtag configuration.
// Stored at: ./config.yaml or ~/.threadtag/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" json:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" json:"defaults" yaml:"defaults"`
	Input        InputCfg                  `mapstructure:"input" json:"input" yaml:"input"`
}

// LLMProviderCfg configures an LLM provider.
// Model and APIKey support ${ENV_VAR} and ${ENV_VAR:-default} references.
type LLMProviderCfg struct {
	Type           string `mapstructure:"type" json:"type" yaml:"type"` // "gemini", "openai", "openrouter"
	Model          string `mapstructure:"model" json:"model" yaml:"model"`
	APIKey         string `mapstructure:"api_key" json:"api_key" yaml:"api_key"`
	BaseURL        string `mapstructure:"base_url" json:"base_url,omitempty" yaml:"base_url,omitempty"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled        bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies run defaults.
type DefaultsCfg struct {
	LLMProvider     string  `mapstructure:"llm_provider" json:"llm_provider" yaml:"llm_provider"`
	MaxWorkers      int     `mapstructure:"max_workers" json:"max_workers" yaml:"max_workers"`
	MaxAttempts     int     `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	BackoffSeconds  float64 `mapstructure:"backoff_seconds" json:"backoff_seconds" yaml:"backoff_seconds"`
	Temperature     float64 `mapstructure:"temperature" json:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens" json:"max_output_tokens" yaml:"max_output_tokens"`
	CheckIDs        bool    `mapstructure:"check_ids" json:"check_ids" yaml:"check_ids"`
}

// InputCfg describes the input file.
type InputCfg struct {
	ConversationColumn string `mapstructure:"conversation_column" json:"conversation_column" yaml:"conversation_column"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"gemini": {
				Type:           "gemini",
				Model:          "${GEMINI_MODEL:-gemini-1.5-pro}",
				APIKey:         "${GOOGLE_API_KEY}",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openai": {
				Type:           "openai",
				Model:          "gpt-4o-mini",
				APIKey:         "${OPENAI_API_KEY}",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openrouter": {
				Type:           "openrouter",
				Model:          "google/gemini-2.5-flash",
				APIKey:         "${OPENROUTER_API_KEY}",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider:     "gemini",
			MaxWorkers:      1,
			MaxAttempts:     annotate.DefaultPolicy.MaxAttempts,
			BackoffSeconds:  annotate.DefaultPolicy.BackoffBase.Seconds(),
			Temperature:     annotate.DefaultTemperature,
			MaxOutputTokens: annotate.DefaultMaxOutputTokens,
		},
		Input: InputCfg{
			ConversationColumn: pipeline.DefaultColumn,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// RetryPolicy returns the configured annotation retry policy.
func (c *Config) RetryPolicy() annotate.RetryPolicy {
	return annotate.RetryPolicy{
		MaxAttempts: c.Defaults.MaxAttempts,
		BackoffBase: time.Duration(c.Defaults.BackoffSeconds * float64(time.Second)),
	}
}
