// Package embedder provides implementations of the rag.Embedder interface for
// converting query text into dense vectors in the same space the indexer used
// for chunks. Ollama is called over its REST API; OpenAI and Azure OpenAI go
// through the go-openai client.
package embedder

import (
	"fmt"

	"github.com/54b3r/coderag-go/internal/rag"
)

// Backend names accepted in Config.Provider.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
)

const (
	// DefaultOllamaModel is the Ollama build of all-MiniLM-L6-v2, the model
	// the indexer embeds chunks with.
	DefaultOllamaModel = "all-minilm"

	// DefaultOpenAIModel is used when Provider is openai and no model is set.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultDimensions is the output size of all-MiniLM-L6-v2.
	DefaultDimensions = 384

	// DefaultCacheSize is the number of query embeddings kept in memory.
	DefaultCacheSize = 512
)

// Config selects and configures the query embedder.
type Config struct {
	// Provider is one of ollama, openai, azure (default: ollama).
	Provider string
	// Model is the embedding model or Azure deployment name.
	Model string
	// Endpoint is the backend base URL. For ollama it defaults to
	// http://localhost:11434.
	Endpoint string
	// APIKey authenticates against openai and azure.
	APIKey string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions is the expected vector size (default: 384). OpenAI models
	// that support truncation are asked for exactly this many.
	Dimensions int
	// CacheSize is the LRU size for query embeddings. Zero selects
	// DefaultCacheSize; a negative value disables the cache.
	CacheSize int
}

// New constructs the configured rag.Embedder, wrapped in an LRU cache unless
// disabled. It validates cfg first so misconfiguration fails at startup.
func New(cfg *Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var inner rag.Embedder
	switch cfg.provider() {
	case BackendOllama:
		host := cfg.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = DefaultOllamaModel
		}
		inner = NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})
	case BackendOpenAI, BackendAzure:
		model := cfg.Model
		if model == "" {
			model = DefaultOpenAIModel
		}
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      model,
			Dimensions: cfg.dimensions(),
			Azure:      cfg.provider() == BackendAzure,
			APIVersion: cfg.APIVersion,
		})
	}

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	cached, err := NewCached(inner, size)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// provider returns the effective backend name.
func (c *Config) provider() string {
	if c.Provider == "" {
		return BackendOllama
	}
	return c.Provider
}

// dimensions returns the effective vector size.
func (c *Config) dimensions() int {
	if c.Dimensions <= 0 {
		return DefaultDimensions
	}
	return c.Dimensions
}

// Validate checks that cfg names a known backend with its required settings.
func (c *Config) Validate() error {
	switch c.provider() {
	case BackendOllama:
		return nil
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires EMBEDDING_API_KEY or OPENAI_API_KEY")
		}
		return nil
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires EMBEDDING_API_KEY or AZURE_OPENAI_API_KEY")
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires EMBEDDING_ENDPOINT or AZURE_OPENAI_ENDPOINT")
		}
		if c.Model == "" {
			return fmt.Errorf("embedder: azure requires EMBEDDING_MODEL (the deployment name)")
		}
		return nil
	default:
		return fmt.Errorf("embedder: unknown backend %q; valid values: ollama, openai, azure", c.Provider)
	}
}
