package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/threadtag/internal/annotate"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Defaults.LLMProvider != "gemini" {
		t.Errorf("expected gemini default provider, got %s", cfg.Defaults.LLMProvider)
	}
	gemini, ok := cfg.GetLLMProvider("gemini")
	if !ok {
		t.Fatal("expected gemini provider")
	}
	if gemini.APIKey != "${GOOGLE_API_KEY}" {
		t.Errorf("expected GOOGLE_API_KEY placeholder, got %s", gemini.APIKey)
	}
	if got := cfg.RetryPolicy(); got != annotate.DefaultPolicy {
		t.Errorf("expected default policy, got %+v", got)
	}
	if cfg.Input.ConversationColumn != "conversation" {
		t.Errorf("expected conversation column, got %s", cfg.Input.ConversationColumn)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("uses fallback for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345:-gemini-1.5-pro}")
		if result != "gemini-1.5-pro" {
			t.Errorf("expected fallback, got %s", result)
		}
	})

	t.Run("prefers env var over fallback", func(t *testing.T) {
		t.Setenv("TEST_MODEL", "gemini-2.0-flash")

		result := ResolveEnvVars("${TEST_MODEL:-gemini-1.5-pro}")
		if result != "gemini-2.0-flash" {
			t.Errorf("expected gemini-2.0-flash, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
llm_providers:
  local:
    type: openai
    model: llama3
    api_key: direct-key
    base_url: http://localhost:11434/v1
    timeout_seconds: 30
    enabled: true
defaults:
  llm_provider: local
  max_workers: 4
  backoff_seconds: 0.5
input:
  conversation_column: thread_json
`
		if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}

		cfg := mgr.Get()
		want := LLMProviderCfg{
			Type:           "openai",
			Model:          "llama3",
			APIKey:         "direct-key",
			BaseURL:        "http://localhost:11434/v1",
			TimeoutSeconds: 30,
			Enabled:        true,
		}
		if diff := cmp.Diff(want, cfg.LLMProviders["local"]); diff != "" {
			t.Errorf("provider mismatch (-want +got):\n%s", diff)
		}
		if _, ok := cfg.LLMProviders["gemini"]; !ok {
			t.Error("expected built-in gemini provider to survive")
		}
		if cfg.Defaults.MaxWorkers != 4 {
			t.Errorf("expected 4 workers, got %d", cfg.Defaults.MaxWorkers)
		}
		if cfg.Defaults.MaxAttempts != 3 {
			t.Errorf("expected default 3 attempts, got %d", cfg.Defaults.MaxAttempts)
		}
		if got := cfg.RetryPolicy().BackoffBase; got != 500*time.Millisecond {
			t.Errorf("expected 500ms backoff, got %v", got)
		}
		if cfg.Input.ConversationColumn != "thread_json" {
			t.Errorf("expected thread_json column, got %s", cfg.Input.ConversationColumn)
		}
		if mgr.ConfigFileUsed() != configFile {
			t.Errorf("expected %s, got %s", configFile, mgr.ConfigFileUsed())
		}
	})

	t.Run("uses defaults when no config file", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Defaults.LLMProvider != "gemini" {
			t.Errorf("expected gemini, got %s", cfg.Defaults.LLMProvider)
		}
		if len(cfg.LLMProviders) != 3 {
			t.Errorf("expected 3 providers, got %d", len(cfg.LLMProviders))
		}
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("THREADTAG_DEFAULTS_MAX_ATTEMPTS", "5")

		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}
		if got := mgr.Get().Defaults.MaxAttempts; got != 5 {
			t.Errorf("expected 5 attempts, got %d", got)
		}
	})

	t.Run("malformed config file is an error", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("defaults: [unclosed"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := NewManager(configFile); err == nil {
			t.Error("expected error for malformed config")
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_GOOGLE_KEY", "g-key")
	t.Setenv("TEST_GEMINI_MODEL", "")

	cfg := &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"gemini": {
				Type:           "gemini",
				Model:          "${TEST_GEMINI_MODEL:-gemini-1.5-pro}",
				APIKey:         "${TEST_GOOGLE_KEY}",
				TimeoutSeconds: 60,
				Enabled:        true,
			},
		},
	}

	got := cfg.ToProviderRegistryConfig().LLMProviders["gemini"]
	if got.APIKey != "g-key" {
		t.Errorf("expected resolved key, got %s", got.APIKey)
	}
	if got.Model != "gemini-1.5-pro" {
		t.Errorf("expected fallback model, got %s", got.Model)
	}
	if got.Timeout != time.Minute {
		t.Errorf("expected 1m timeout, got %v", got.Timeout)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("TEST_PRESENT_KEY", "k")
	t.Setenv("TEST_ABSENT_KEY", "")

	base := func() *Config {
		cfg := DefaultConfig()
		cfg.LLMProviders = map[string]LLMProviderCfg{
			"good":     {Type: "gemini", APIKey: "${TEST_PRESENT_KEY}", Enabled: true},
			"nokey":    {Type: "gemini", APIKey: "${TEST_ABSENT_KEY}", Enabled: true},
			"disabled": {Type: "gemini", APIKey: "${TEST_PRESENT_KEY}"},
		}
		cfg.Defaults.LLMProvider = "good"
		return cfg
	}

	tests := []struct {
		name     string
		provider string
		mutate   func(*Config)
		wantKey  string
	}{
		{name: "default provider ok", provider: ""},
		{name: "explicit provider ok", provider: "good"},
		{name: "missing api key", provider: "nokey", wantKey: "llm_providers.nokey.api_key"},
		{name: "disabled provider", provider: "disabled", wantKey: "llm_providers.disabled.enabled"},
		{name: "unknown provider", provider: "nope", wantKey: "llm_providers.nope"},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Defaults.MaxAttempts = 0 },
			wantKey: "defaults.max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.provider)
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("expected key %s, got %s", tt.wantKey, cfgErr.Key)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "# threadtag configuration") {
		t.Error("expected header comment")
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager on written default failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), mgr.Get()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
