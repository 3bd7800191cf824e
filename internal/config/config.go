// Package config provides layered configuration for coderag.
// Configuration is loaded with a layered precedence: defaults → .env file →
// YAML file → env vars. Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CODERAG_CONFIG environment variable
//  3. ~/.coderag/config.yaml
//  4. ./coderag.yaml
//
// If no file is found the system runs entirely from env vars. Once the
// environment is settled, [FromEnv] reads it a single time into a
// [Settings] value that is passed to every constructor.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Store configures the chunk store the indexer writes to.
	Store StoreConfig `yaml:"store"`

	// Model configures the answer model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the query embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval tunes the semantic and keyword strategies.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Answer tunes prompt assembly.
	Answer AnswerConfig `yaml:"answer"`

	// Retry tunes the answer model retry policy.
	Retry RetryConfig `yaml:"retry"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Repo describes the indexed repository checkout.
	Repo RepoConfig `yaml:"repo"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures conversation history persistence.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// StoreConfig holds chunk store settings.
type StoreConfig struct {
	// Backend selects the store: postgres, qdrant, sqlite.
	Backend string `yaml:"backend"`
	// DatabaseURL is the Postgres connection string. Prefer env var CODERAG_DATABASE_URL.
	DatabaseURL string `yaml:"database_url"`
	// Table is the chunk table name.
	Table string `yaml:"table"`
	// SQLitePath is the SQLite chunk database path.
	SQLitePath string `yaml:"sqlite_path"`
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
	// WaitAttempts is the number of polls made by `coderag wait`.
	WaitAttempts int `yaml:"wait_attempts"`
	// WaitInterval is the delay between polls, e.g. "1s".
	WaitInterval string `yaml:"wait_interval"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// ModelConfig holds answer model settings.
type ModelConfig struct {
	// Provider selects the backend: gemini, ollama, openai, azure, ark.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint or model ID.
	Model string `yaml:"model"`
	// BaseURL overrides the Ark API base URL.
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size the index was built with.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version for embeddings.
	APIVersion string `yaml:"api_version"`
	// CacheSize is the query embedding LRU size; negative disables it.
	CacheSize int `yaml:"cache_size"`
}

// RetrievalConfig tunes hybrid retrieval.
type RetrievalConfig struct {
	// SemanticTopK is the number of semantic results.
	SemanticTopK int `yaml:"semantic_top_k"`
	// KeywordLimit is the number of keyword results.
	KeywordLimit int `yaml:"keyword_limit"`
	// MinTermLength drops query terms of this many runes or fewer.
	MinTermLength int `yaml:"min_term_length"`
	// KeywordScore is the fixed score given to keyword results.
	KeywordScore float32 `yaml:"keyword_score"`
}

// AnswerConfig tunes prompt assembly.
type AnswerConfig struct {
	// HistoryWindow is the number of trailing turns in a prompt.
	HistoryWindow int `yaml:"history_window"`
	// ReadmeLimit is the number of README characters sent for a summary.
	ReadmeLimit int `yaml:"readme_limit"`
	// MaxContextTokens trims history to fit an estimated token budget.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// RetryConfig tunes the answer model retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay is the first backoff, e.g. "2s".
	BaseDelay string `yaml:"base_delay"`
	// MaxJitter bounds the random delay added to each backoff, e.g. "1s".
	MaxJitter string `yaml:"max_jitter"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CODERAG_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained per-IP request rate (requests/second).
	RateLimit float32 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
}

// RepoConfig describes the indexed repository.
type RepoConfig struct {
	// Dir is the local checkout the indexer read from.
	Dir string `yaml:"dir"`
	// URL is the hosted repository URL used for source links.
	URL string `yaml:"url"`
	// Branch is the branch used for source links.
	Branch string `yaml:"branch"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"STORE_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"CODERAG_DATABASE_URL", func(c *Config) string { return c.Store.DatabaseURL }},
	{"CODERAG_TABLE", func(c *Config) string { return c.Store.Table }},
	{"CODERAG_SQLITE_PATH", func(c *Config) string { return c.Store.SQLitePath }},
	{"WAIT_ATTEMPTS", func(c *Config) string { return intStr(c.Store.WaitAttempts) }},
	{"WAIT_INTERVAL", func(c *Config) string { return durationStr(c.Store.WaitInterval) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Store.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_API_VERSION", func(c *Config) string { return c.Embedding.APIVersion }},
	{"EMBEDDING_CACHE_SIZE", func(c *Config) string { return intStr(c.Embedding.CacheSize) }},
	{"RETRIEVAL_SEMANTIC_TOP_K", func(c *Config) string { return intStr(c.Retrieval.SemanticTopK) }},
	{"RETRIEVAL_KEYWORD_LIMIT", func(c *Config) string { return intStr(c.Retrieval.KeywordLimit) }},
	{"RETRIEVAL_MIN_TERM_LENGTH", func(c *Config) string { return intStr(c.Retrieval.MinTermLength) }},
	{"RETRIEVAL_KEYWORD_SCORE", func(c *Config) string { return float32Str(c.Retrieval.KeywordScore) }},
	{"ANSWER_HISTORY_WINDOW", func(c *Config) string { return intStr(c.Answer.HistoryWindow) }},
	{"ANSWER_README_LIMIT", func(c *Config) string { return intStr(c.Answer.ReadmeLimit) }},
	{"ANSWER_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Answer.MaxContextTokens) }},
	{"RETRY_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.Retry.MaxAttempts) }},
	{"RETRY_BASE_DELAY", func(c *Config) string { return durationStr(c.Retry.BaseDelay) }},
	{"RETRY_MAX_JITTER", func(c *Config) string { return durationStr(c.Retry.MaxJitter) }},
	{"CODERAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"CODERAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CODERAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"CODERAG_RATE_LIMIT", func(c *Config) string { return float32Str(c.Server.RateLimit) }},
	{"CODERAG_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"CODERAG_REPO_DIR", func(c *Config) string { return c.Repo.Dir }},
	{"CODERAG_REPO_URL", func(c *Config) string { return c.Repo.URL }},
	{"CODERAG_REPO_BRANCH", func(c *Config) string { return c.Repo.Branch }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"CODERAG_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CODERAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".coderag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("coderag.yaml"); err == nil {
		return "coderag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// durationStr keeps the YAML duration text only if it parses.
func durationStr(s string) string {
	if _, err := time.ParseDuration(s); err != nil {
		return ""
	}
	return s
}
