package providers

import (
	"context"
	"os"
)

// TestConfig holds provider configurations loaded from environment variables.
// Live tests skip providers whose keys are absent.
type TestConfig struct {
	GoogleAPIKey     string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
}

// LoadTestConfig loads provider API keys from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
	}
}

// HasAnyLLM returns true if any LLM provider is configured.
func (c TestConfig) HasAnyLLM() bool {
	return c.GoogleAPIKey != "" || c.OpenAIAPIKey != "" || c.OpenRouterAPIKey != ""
}

// ToRegistryConfig converts test config to a RegistryConfig for the provider registry.
// Only includes providers that have API keys configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		LLMProviders: make(map[string]LLMProviderConfig),
	}

	if c.GoogleAPIKey != "" {
		cfg.LLMProviders[GeminiName] = LLMProviderConfig{
			Type:    GeminiName,
			APIKey:  c.GoogleAPIKey,
			Model:   os.Getenv("GEMINI_MODEL"),
			Enabled: true,
		}
	}
	if c.OpenAIAPIKey != "" {
		cfg.LLMProviders[OpenAIName] = LLMProviderConfig{
			Type:    OpenAIName,
			APIKey:  c.OpenAIAPIKey,
			Enabled: true,
		}
	}
	if c.OpenRouterAPIKey != "" {
		cfg.LLMProviders[OpenRouterName] = LLMProviderConfig{
			Type:    OpenRouterName,
			APIKey:  c.OpenRouterAPIKey,
			Enabled: true,
		}
	}

	return cfg
}

// NewRegistry builds a registry of every provider with a key.
func (c TestConfig) NewRegistry(ctx context.Context) (*Registry, error) {
	return NewRegistryFromConfig(ctx, c.ToRegistryConfig())
}
