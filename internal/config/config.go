// Package config loads mailagent settings from .env, a TOML file and the
// environment, and reads the JSON files kept in the config directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for mailagent.
type Config struct {
	ConfigDir string          `mapstructure:"config_dir"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Search    SearchConfig    `mapstructure:"search"`
}

// GmailConfig holds mail provider settings.
type GmailConfig struct {
	Credentials string `mapstructure:"credentials"`
	Query       string `mapstructure:"query"`
	MaxResults  int64  `mapstructure:"max_results"`
}

// LLMConfig holds chat model settings for an OpenAI-compatible API.
type LLMConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	MaxTokenLimit int `mapstructure:"max_token_limit"`
}

// RetrievalConfig holds RAG settings.
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// DedupConfig selects where ingested email IDs are tracked.
type DedupConfig struct {
	Backend  string `mapstructure:"backend"`
	File     string `mapstructure:"file"`
	RedisURL string `mapstructure:"redis_url"`
	RedisKey string `mapstructure:"redis_key"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	APIKey    string `mapstructure:"api_key"`
	EngineID  string `mapstructure:"engine_id"`
	OutputDir string `mapstructure:"output_dir"`
	Pages     int    `mapstructure:"pages"`
}

// Default values shared with the CLI help text.
const (
	DefaultQuery         = "from:*@columbia.edu -subject:Spam"
	DefaultMaxResults    = 10
	DefaultLLMBaseURL    = "https://api.groq.com/openai/v1"
	DefaultEmbedModel    = "all-MiniLM-L6-v2"
	DefaultTemperature   = 0.8
	DefaultMaxTokenLimit = 2000
	DefaultTopK          = 5
)

// File names inside the config directory.
const (
	TokenFile      = "token.json"
	RefsFile       = "emails_id_threading.json"
	DedupFile      = "email_saved.json"
	RulesFile      = "rules_agents.json"
	SearchCSVFile  = "search_results.csv"
	configBaseName = "mailagent"
)

var (
	// ErrMissingAPIKey is returned when a required API key is not configured.
	ErrMissingAPIKey = errors.New("api key is not configured")
	// ErrMissingModel is returned when no chat model is configured.
	ErrMissingModel = errors.New("model is not configured")
)

// Load reads configuration from .env (if present), cfgFile (or the default
// search path), environment variables and defaults.
func Load(cfgFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("config_dir", "config")
	v.SetDefault("gmail.credentials", "client_secret*.json")
	v.SetDefault("gmail.query", DefaultQuery)
	v.SetDefault("gmail.max_results", DefaultMaxResults)
	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.temperature", DefaultTemperature)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("embedding.model", DefaultEmbedModel)
	v.SetDefault("memory.max_token_limit", DefaultMaxTokenLimit)
	v.SetDefault("retrieval.top_k", DefaultTopK)
	v.SetDefault("dedup.backend", "json")
	v.SetDefault("dedup.file", DedupFile)
	v.SetDefault("dedup.redis_key", "mailagent:ingested")
	v.SetDefault("search.output_dir", ".")
	v.SetDefault("search.pages", 3)

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configBaseName)
		v.AddConfigPath("$HOME/.config/mailagent")
		v.AddConfigPath(".")
	}

	v.BindEnv("config_dir", "CONFIG_DIR")
	v.BindEnv("gmail.credentials", "CREDENTIAL")
	v.BindEnv("llm.api_key", "GROQ_API_KEY")
	v.BindEnv("llm.base_url", "LLM_BASE_URL")
	v.BindEnv("llm.model", "LLAMA3_8B", "MODEL_DEEPSEEK1")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("embedding.model", "EMBEDDING_MODEL_NAME")
	v.BindEnv("dedup.backend", "DEDUP_BACKEND")
	v.BindEnv("dedup.redis_url", "REDIS_URL")
	v.BindEnv("search.api_key", "GOOGLE_API_KEY")
	v.BindEnv("search.engine_id", "SEARCH_ENGINE_ID")
	v.BindEnv("search.output_dir", "WEB_DIR")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	// The embedding endpoint defaults to the chat provider's.
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return cfg, nil
}

// ValidateForChat checks that the LLM settings are usable.
func ValidateForChat(cfg Config) error {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return fmt.Errorf("llm.api_key: %w (set GROQ_API_KEY)", ErrMissingAPIKey)
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		return fmt.Errorf("llm.model: %w (set LLAMA3_8B or MODEL_DEEPSEEK1)", ErrMissingModel)
	}
	return nil
}

// ValidateForSearch checks that the web search settings are usable.
func ValidateForSearch(cfg Config) error {
	if strings.TrimSpace(cfg.Search.APIKey) == "" {
		return fmt.Errorf("search.api_key: %w (set GOOGLE_API_KEY)", ErrMissingAPIKey)
	}
	if strings.TrimSpace(cfg.Search.EngineID) == "" {
		return fmt.Errorf("search.engine_id is required (set SEARCH_ENGINE_ID)")
	}
	return nil
}

// Path returns the path of name inside the config directory.
func (c Config) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.ConfigDir, name)
}
