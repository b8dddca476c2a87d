package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/threadtag/internal/providers"
)

// Error is a fatal startup configuration problem.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Manager handles loading configuration.
type Manager struct {
	mu     sync.RWMutex
	v      *viper.Viper
	config *Config
}

// NewManager creates a new config manager and loads initial config.
// cfgFile may be empty, in which case ./config.yaml and searchDirs are tried.
func NewManager(cfgFile string, searchDirs ...string) (*Manager, error) {
	cm := &Manager{v: viper.New()}

	if err := cm.initViper(cfgFile, searchDirs); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string, searchDirs []string) error {
	v := cm.v
	defaults := DefaultConfig()

	for name, p := range defaults.LLMProviders {
		prefix := "llm_providers." + name + "."
		v.SetDefault(prefix+"type", p.Type)
		v.SetDefault(prefix+"model", p.Model)
		v.SetDefault(prefix+"api_key", p.APIKey)
		v.SetDefault(prefix+"timeout_seconds", p.TimeoutSeconds)
		v.SetDefault(prefix+"enabled", p.Enabled)
	}
	v.SetDefault("defaults.llm_provider", defaults.Defaults.LLMProvider)
	v.SetDefault("defaults.max_workers", defaults.Defaults.MaxWorkers)
	v.SetDefault("defaults.max_attempts", defaults.Defaults.MaxAttempts)
	v.SetDefault("defaults.backoff_seconds", defaults.Defaults.BackoffSeconds)
	v.SetDefault("defaults.temperature", defaults.Defaults.Temperature)
	v.SetDefault("defaults.max_output_tokens", defaults.Defaults.MaxOutputTokens)
	v.SetDefault("defaults.check_ids", defaults.Defaults.CheckIDs)
	v.SetDefault("input.conversation_column", defaults.Input.ConversationColumn)

	// Environment variables with THREADTAG_ prefix, e.g. THREADTAG_DEFAULTS_MAX_WORKERS
	v.SetEnvPrefix("THREADTAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func (cm *Manager) ConfigFileUsed() string {
	return cm.v.ConfigFileUsed()
}

var envRefPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// ResolveEnvVars expands ${ENV_VAR} and ${ENV_VAR:-fallback} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		m := envRefPattern.FindStringSubmatch(match)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys and models.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:    llm.Type,
			Model:   ResolveEnvVars(llm.Model),
			APIKey:  ResolveEnvVars(llm.APIKey),
			BaseURL: llm.BaseURL,
			Timeout: time.Duration(llm.TimeoutSeconds) * time.Second,
			Enabled: llm.Enabled,
		}
	}

	return cfg
}

// Validate checks that the named provider can be used for a run.
// An empty name selects defaults.llm_provider.
func (c *Config) Validate(provider string) error {
	if provider == "" {
		provider = c.Defaults.LLMProvider
	}
	p, ok := c.GetLLMProvider(provider)
	if !ok {
		return &Error{Key: "llm_providers." + provider, Reason: "provider is not configured"}
	}
	if !p.Enabled {
		return &Error{Key: "llm_providers." + provider + ".enabled", Reason: "provider is disabled"}
	}
	if ResolveEnvVars(p.APIKey) == "" {
		return &Error{Key: "llm_providers." + provider + ".api_key", Reason: fmt.Sprintf("no API key (set %s)", strings.Trim(p.APIKey, "${}"))}
	}
	if c.Defaults.MaxAttempts < 1 {
		return &Error{Key: "defaults.max_attempts", Reason: "must be at least 1"}
	}
	if c.Defaults.BackoffSeconds < 0 {
		return &Error{Key: "defaults.backoff_seconds", Reason: "must not be negative"}
	}
	return nil
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# threadtag configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GOOGLE_API_KEY=xxx OPENAI_API_KEY=xxx OPENROUTER_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
