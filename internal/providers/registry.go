package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry holds references to LLM clients by name and provides
// thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	llmClients map[string]LLMClient
	logger     *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients: make(map[string]LLMClient),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	if r.logger != nil {
		r.logger.Debug("registered LLM client", "name", name, "model", client.Model())
	}
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig matches config.LLMProviderCfg with resolved API key.
type LLMProviderConfig struct {
	Type    string // "gemini", "openai", "openrouter"
	Model   string
	APIKey  string // Resolved API key
	BaseURL string
	Timeout time.Duration
	Enabled bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with an API key are registered; an unknown type is an error.
func NewRegistryFromConfig(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	r := NewRegistry()
	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		client, err := createLLMClient(ctx, provCfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		r.RegisterLLM(name, client)
	}
	return r, nil
}

// createLLMClient creates an LLM client based on provider type.
func createLLMClient(ctx context.Context, cfg LLMProviderConfig) (LLMClient, error) {
	switch cfg.Type {
	case GeminiName:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
		})
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
		}), nil
	case OpenRouterName:
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
