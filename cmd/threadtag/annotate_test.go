package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/threadtag/internal/annotate"
	"github.com/jackzampolin/threadtag/internal/config"
	"github.com/jackzampolin/threadtag/internal/home"
)

const zaraThread = `{"conversation":[{"id":"1","author":"Zara","message":"hi","replies":[]}]}`

func chatCompletion(content string) string {
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(content)
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"test-model",` +
		`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + quoted + `"}}],` +
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
}

func newChatServer(t *testing.T, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletion(content)))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLMProviders = map[string]config.LLMProviderCfg{
		"local": {
			Type:           "openai",
			Model:          "test-model",
			APIKey:         "test-key",
			BaseURL:        baseURL,
			TimeoutSeconds: 5,
			Enabled:        true,
		},
	}
	cfg.Defaults.LLMProvider = "local"
	cfg.Defaults.BackoffSeconds = 0
	return cfg
}

func writeInput(t *testing.T, dir string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, "conversations.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	w := csv.NewWriter(f)
	w.Write([]string{"conversation"})
	for _, r := range rows {
		w.Write([]string{r})
	}
	w.Flush()
	if err := f.Close(); err != nil {
		t.Fatalf("close input: %v", err)
	}
	return path
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return records
}

func TestRunAnnotate(t *testing.T) {
	annotation := `[{"id":"1","author":"Zara","keywords":["greeting"]}]`
	server, calls := newChatServer(t, "Sure!\n```json\n"+annotation+"\n```")

	dir := t.TempDir()
	cfg := testConfig(server.URL)
	h, _ := home.New(filepath.Join(dir, "home"))

	s := settingsFromConfig(cfg)
	s.input = writeInput(t, dir, zaraThread, "   ")
	s.output = filepath.Join(dir, "agent1_data.csv")
	s.trace = filepath.Join(dir, "trace", "calls.jsonl")

	summary, err := runAnnotate(context.Background(), cfg, h, s, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("runAnnotate: %v", err)
	}

	if summary.Total != 2 || summary.Succeeded != 1 || summary.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 model call, got %d", got)
	}

	want := [][]string{
		{"input", "output"},
		{zaraThread, annotation},
		{"", "ERROR: empty conversation cell"},
	}
	if diff := cmp.Diff(want, readOutput(t, s.output)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	f, err := os.Open(s.trace)
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	if lines != 1 {
		t.Errorf("expected 1 trace line, got %d", lines)
	}
}

func TestRunAnnotateExhaustsAttempts(t *testing.T) {
	server, calls := newChatServer(t, "I cannot help with that.")

	dir := t.TempDir()
	cfg := testConfig(server.URL)
	h, _ := home.New(filepath.Join(dir, "home"))

	s := settingsFromConfig(cfg)
	s.input = writeInput(t, dir, zaraThread)
	s.output = filepath.Join(dir, "out.csv")
	s.policy = annotate.RetryPolicy{MaxAttempts: 3}

	summary, err := runAnnotate(context.Background(), cfg, h, s, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("runAnnotate: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("expected 1 failed row, got %+v", summary)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 model calls, got %d", got)
	}

	records := readOutput(t, s.output)
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
	if !strings.HasPrefix(records[1][1], "ERROR after 3 attempts:") {
		t.Errorf("unexpected output cell: %q", records[1][1])
	}
}

func TestRunAnnotateConfigError(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig("http://127.0.0.1:0")
	local := cfg.LLMProviders["local"]
	local.APIKey = "${THREADTAG_TEST_UNSET_KEY}"
	cfg.LLMProviders["local"] = local
	h, _ := home.New(filepath.Join(dir, "home"))

	s := settingsFromConfig(cfg)
	s.input = filepath.Join(dir, "missing.csv")
	s.output = filepath.Join(dir, "out.csv")

	_, err := runAnnotate(context.Background(), cfg, h, s, slog.New(slog.DiscardHandler))
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if _, statErr := os.Stat(s.output); !os.IsNotExist(statErr) {
		t.Error("output must not be created when configuration is invalid")
	}
}

func TestRunAnnotateMissingInput(t *testing.T) {
	server, _ := newChatServer(t, "[]")
	dir := t.TempDir()
	cfg := testConfig(server.URL)
	h, _ := home.New(filepath.Join(dir, "home"))

	s := settingsFromConfig(cfg)
	s.input = filepath.Join(dir, "missing.csv")
	s.output = filepath.Join(dir, "out.csv")

	if _, err := runAnnotate(context.Background(), cfg, h, s, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("expected error for missing input")
	}
	if _, statErr := os.Stat(s.output); !os.IsNotExist(statErr) {
		t.Error("output must not be created when input is missing")
	}
}

func TestRunAnnotateModelOverride(t *testing.T) {
	var model atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		model.Store(body.Model)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletion(`[{"id":"1","author":"Zara","keywords":[]}]`)))
	}))
	defer server.Close()

	dir := t.TempDir()
	cfg := testConfig(server.URL)
	h, _ := home.New(filepath.Join(dir, "home"))

	s := settingsFromConfig(cfg)
	s.input = writeInput(t, dir, zaraThread)
	s.output = filepath.Join(dir, "out.csv")
	s.model = "override-model"

	if _, err := runAnnotate(context.Background(), cfg, h, s, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("runAnnotate: %v", err)
	}
	if got, _ := model.Load().(string); got != "override-model" {
		t.Errorf("expected override-model in request, got %q", got)
	}
}
