package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/daviddao/mailagent/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("LLAMA3_8B", "")
	t.Setenv("MODEL_DEEPSEEK1", "")
	t.Setenv("CONFIG_DIR", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gmail.Query != DefaultQuery {
		t.Errorf("gmail.query = %q, want %q", cfg.Gmail.Query, DefaultQuery)
	}
	if cfg.Gmail.MaxResults != DefaultMaxResults {
		t.Errorf("gmail.max_results = %d, want %d", cfg.Gmail.MaxResults, DefaultMaxResults)
	}
	if cfg.LLM.Temperature != DefaultTemperature {
		t.Errorf("llm.temperature = %v, want %v", cfg.LLM.Temperature, DefaultTemperature)
	}
	if cfg.LLM.MaxTokens != 0 {
		t.Errorf("llm.max_tokens = %d, want 0 (provider default)", cfg.LLM.MaxTokens)
	}
	if cfg.Retrieval.TopK != DefaultTopK {
		t.Errorf("retrieval.top_k = %d, want %d", cfg.Retrieval.TopK, DefaultTopK)
	}
	if cfg.Embedding.BaseURL != DefaultLLMBaseURL {
		t.Errorf("embedding.base_url = %q, want chat base url", cfg.Embedding.BaseURL)
	}
	if cfg.Dedup.Backend != "json" {
		t.Errorf("dedup.backend = %q, want json", cfg.Dedup.Backend)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("LLAMA3_8B", "")
	t.Setenv("MODEL_DEEPSEEK1", "deepseek-r1")
	t.Setenv("CONFIG_DIR", "/tmp/agent-config")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "gsk-test" {
		t.Errorf("llm.api_key = %q, want gsk-test", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "deepseek-r1" {
		t.Errorf("llm.model = %q, want deepseek-r1", cfg.LLM.Model)
	}
	if cfg.Embedding.APIKey != "gsk-test" {
		t.Errorf("embedding.api_key = %q, want fallback to llm key", cfg.Embedding.APIKey)
	}
	if got := cfg.Path(TokenFile); got != filepath.Join("/tmp/agent-config", TokenFile) {
		t.Errorf("Path(token) = %q", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_DIR", "")
	path := filepath.Join(dir, "custom.toml")
	content := `
[gmail]
query = "label:work"
max_results = 25

[retrieval]
top_k = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gmail.Query != "label:work" {
		t.Errorf("gmail.query = %q, want label:work", cfg.Gmail.Query)
	}
	if cfg.Gmail.MaxResults != 25 {
		t.Errorf("gmail.max_results = %d, want 25", cfg.Gmail.MaxResults)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("retrieval.top_k = %d, want 3", cfg.Retrieval.TopK)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("does-not-exist.toml"); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidateForChat(t *testing.T) {
	err := ValidateForChat(Config{LLM: LLMConfig{Model: "m"}})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
	err = ValidateForChat(Config{LLM: LLMConfig{APIKey: "k"}})
	if !errors.Is(err, ErrMissingModel) {
		t.Errorf("err = %v, want ErrMissingModel", err)
	}
	if err := ValidateForChat(Config{LLM: LLMConfig{APIKey: "k", Model: "m"}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateForSearch(t *testing.T) {
	if err := ValidateForSearch(Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
	if err := ValidateForSearch(Config{Search: SearchConfig{APIKey: "k"}}); err == nil {
		t.Error("expected error for missing engine id")
	}
}

func TestReadJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{ConfigDir: dir}

	var v map[string]any
	if err := cfg.ReadJSON("missing.json", &v); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}

	os.WriteFile(filepath.Join(dir, "empty.json"), []byte("  \n"), 0o644)
	if err := cfg.ReadJSON("empty.json", &v); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("empty file err = %v, want ErrEmptyFile", err)
	}

	os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{nope"), 0o644)
	if err := cfg.ReadJSON("bad.json", &v); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("bad file err = %v, want ErrInvalidJSON", err)
	}

	os.WriteFile(filepath.Join(dir, "ok.json"), []byte(`{"a": 1}`), 0o644)
	if err := cfg.ReadJSON("ok.json", &v); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if v["a"] != float64(1) {
		t.Errorf("a = %v, want 1", v["a"])
	}
}

func TestLoadRulesAndSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{ConfigDir: dir}

	rules, err := cfg.LoadRules()
	if err != nil {
		t.Fatalf("LoadRules (missing): %v", err)
	}
	if rules != nil {
		t.Errorf("rules = %v, want nil", rules)
	}

	content := `[
  {"role": "system", "content": "Be brief."},
  {"role": "user", "content": "ignored"},
  {"role": "system", "content": "Cite dates."}
]`
	os.WriteFile(filepath.Join(dir, RulesFile), []byte(content), 0o644)

	rules, err = cfg.LoadRules()
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("len(rules) = %d, want 3", len(rules))
	}

	got := SystemPrompt(rules)
	want := "Be brief.\n\nCite dates."
	if got != want {
		t.Errorf("SystemPrompt = %q, want %q", got, want)
	}
	if SystemPrompt([]types.Rule{{Role: "user", Content: "x"}}) != "" {
		t.Error("expected empty system prompt without system rules")
	}
}
