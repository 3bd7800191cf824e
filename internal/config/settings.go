package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/embedder"
	"github.com/54b3r/coderag-go/internal/provider"
	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/retry"
)

// Store backends selectable with STORE_BACKEND.
const (
	StorePostgres = "postgres"
	StoreQdrant   = "qdrant"
	StoreSQLite   = "sqlite"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 8080
	DefaultSQLitePath = "code_vectors.db"
	// HistoryDisabled turns off conversation persistence when used as the
	// history database path.
	HistoryDisabled = "disabled"
)

// Settings is the fully resolved runtime configuration. It is read once at
// startup by FromEnv and handed to constructors; nothing below the command
// layer reads the environment.
type Settings struct {
	// StoreBackend is one of postgres, qdrant, sqlite.
	StoreBackend string
	// Postgres configures the pgvector chunk table.
	Postgres rag.PostgresConfig
	// Qdrant configures the Qdrant collection.
	Qdrant rag.QdrantConfig
	// SQLitePath is the local chunk database file.
	SQLitePath string
	// Wait controls `coderag wait` polling.
	Wait rag.WaitConfig

	// Embedding configures the query embedder.
	Embedding embedder.Config
	// Provider configures the answer model.
	Provider provider.Config

	// SemanticTopK is the number of semantic results per query.
	SemanticTopK int
	// Keyword tunes keyword retrieval.
	Keyword rag.KeywordConfig

	// HistoryWindow, ReadmeLimit and MaxContextTokens tune prompt assembly.
	HistoryWindow    int
	ReadmeLimit      int
	MaxContextTokens int

	// RetryAttempts, RetryBaseDelay and RetryMaxJitter tune the model retry
	// policy.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxJitter time.Duration

	// Server holds HTTP listener settings.
	Server ServerSettings
	// Repo describes the indexed repository.
	Repo RepoSettings

	// LogLevel and LogFormat configure the logger.
	LogLevel  string
	LogFormat string

	// HistoryDB is the conversation store path, or HistoryDisabled.
	HistoryDB string

	// Tracing holds Langfuse credentials. Tracing is off unless both keys
	// are set.
	Tracing TracingSettings
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Host      string
	Port      int
	APIKey    string
	RateLimit float64
	RateBurst int
}

// RepoSettings describes the repository the index was built from.
type RepoSettings struct {
	// Dir is the local checkout used for overviews.
	Dir string
	// URL is the hosted repository URL used for source links.
	URL string
	// Branch is the branch used for source links.
	Branch string
}

// TracingSettings holds Langfuse credentials.
type TracingSettings struct {
	PublicKey string
	SecretKey string
	Host      string
}

// Enabled reports whether both Langfuse keys are present.
func (t TracingSettings) Enabled() bool {
	return t.PublicKey != "" && t.SecretKey != ""
}

// HistoryEnabled reports whether conversations are persisted.
func (s *Settings) HistoryEnabled() bool {
	return s.HistoryDB != HistoryDisabled
}

// AnswerConfig returns the orchestrator configuration, with quota errors from
// the answer model as the retry signal.
func (s *Settings) AnswerConfig() answer.Config {
	return answer.Config{
		HistoryWindow:    s.HistoryWindow,
		ReadmeLimit:      s.ReadmeLimit,
		MaxContextTokens: s.MaxContextTokens,
		Retry:            retry.NewPolicy(s.RetryAttempts, s.RetryBaseDelay, s.RetryMaxJitter, provider.IsQuotaError),
	}
}

// Validate checks the settings that every command depends on. Backend
// specific checks run in the respective constructors.
func (s *Settings) Validate() error {
	switch s.StoreBackend {
	case StorePostgres:
		if s.Postgres.DatabaseURL == "" {
			return fmt.Errorf("config: postgres store requires CODERAG_DATABASE_URL")
		}
	case StoreQdrant, StoreSQLite:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q; valid values: postgres, qdrant, sqlite", s.StoreBackend)
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("config: CODERAG_PORT %d out of range", s.Server.Port)
	}
	return nil
}

// FromEnv reads Settings from the process environment.
func FromEnv() (*Settings, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads Settings through lookup, so tests can supply a map
// instead of mutating the process environment.
func FromLookup(lookup func(string) (string, bool)) (*Settings, error) {
	r := &reader{lookup: lookup}

	s := &Settings{
		StoreBackend: strings.ToLower(r.str("STORE_BACKEND", StorePostgres)),
		Postgres: rag.PostgresConfig{
			DatabaseURL: r.first("CODERAG_DATABASE_URL", "COCOINDEX_DATABASE_URL"),
			Table:       r.str("CODERAG_TABLE", rag.DefaultTable),
		},
		Qdrant: rag.QdrantConfig{
			Host:       r.str("QDRANT_HOST", "localhost"),
			Port:       r.int("QDRANT_PORT", 6334),
			Collection: r.str("QDRANT_COLLECTION", rag.DefaultTable),
			APIKey:     r.str("QDRANT_API_KEY", ""),
			UseTLS:     r.bool("QDRANT_TLS", false),
		},
		SQLitePath: r.str("CODERAG_SQLITE_PATH", DefaultSQLitePath),
		Wait: rag.WaitConfig{
			Attempts: r.int("WAIT_ATTEMPTS", 30),
			Interval: r.duration("WAIT_INTERVAL", time.Second),
		},

		SemanticTopK: r.int("RETRIEVAL_SEMANTIC_TOP_K", rag.DefaultSemanticTopK),
		Keyword: rag.KeywordConfig{
			Limit:         r.int("RETRIEVAL_KEYWORD_LIMIT", rag.DefaultKeywordLimit),
			MinTermLength: r.int("RETRIEVAL_MIN_TERM_LENGTH", rag.DefaultMinTermLength),
			Score:         r.float64("RETRIEVAL_KEYWORD_SCORE", rag.DefaultKeywordScore),
		},

		HistoryWindow:    r.int("ANSWER_HISTORY_WINDOW", answer.DefaultHistoryWindow),
		ReadmeLimit:      r.int("ANSWER_README_LIMIT", answer.DefaultReadmeLimit),
		MaxContextTokens: r.int("ANSWER_MAX_CONTEXT_TOKENS", 0),

		RetryAttempts:  r.int("RETRY_MAX_ATTEMPTS", retry.DefaultMaxAttempts),
		RetryBaseDelay: r.duration("RETRY_BASE_DELAY", retry.DefaultBaseDelay),
		RetryMaxJitter: r.duration("RETRY_MAX_JITTER", retry.DefaultMaxJitter),

		Server: ServerSettings{
			Host:      r.str("CODERAG_HOST", DefaultHost),
			Port:      r.int("CODERAG_PORT", DefaultPort),
			APIKey:    r.str("CODERAG_API_KEY", ""),
			RateLimit: r.float64("CODERAG_RATE_LIMIT", 0),
			RateBurst: r.int("CODERAG_RATE_BURST", 0),
		},
		Repo: RepoSettings{
			Dir:    r.str("CODERAG_REPO_DIR", "."),
			URL:    r.str("CODERAG_REPO_URL", ""),
			Branch: r.str("CODERAG_REPO_BRANCH", "main"),
		},

		LogLevel:  r.str("LOG_LEVEL", "info"),
		LogFormat: r.str("LOG_FORMAT", "json"),
		HistoryDB: r.str("CODERAG_HISTORY_DB", ""),

		Tracing: TracingSettings{
			PublicKey: r.str("LANGFUSE_PUBLIC_KEY", ""),
			SecretKey: r.str("LANGFUSE_SECRET_KEY", ""),
			Host:      r.str("LANGFUSE_HOST", ""),
		},
	}

	s.Provider = provider.Config{
		Backend: provider.Backend(strings.ToLower(r.str("MODEL_PROVIDER", string(provider.BackendGemini)))),
		Gemini: provider.ProviderGemini{
			APIKey: r.str("GOOGLE_API_KEY", ""),
			Model:  r.str("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Ollama: provider.ProviderOllama{
			Host:  r.str("OLLAMA_HOST", ""),
			Model: r.str("OLLAMA_MODEL", ""),
		},
		OpenAI: provider.ProviderOpenAI{
			APIKey: r.str("OPENAI_API_KEY", ""),
			Model:  r.str("OPENAI_MODEL", ""),
		},
		AzureOpenAI: provider.ProviderAzureOpenAI{
			APIKey:     r.str("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   r.str("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: r.str("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: r.str("AZURE_OPENAI_API_VERSION", ""),
		},
		Ark: provider.ProviderArk{
			APIKey:  r.str("ARK_API_KEY", ""),
			Model:   r.str("ARK_MODEL", ""),
			BaseURL: r.str("ARK_BASE_URL", ""),
		},
		Tuning: provider.SharedTuning{
			MaxTokens:   r.int("MODEL_MAX_TOKENS", 0),
			Temperature: r.float32("MODEL_TEMPERATURE", 0),
		},
	}

	embProvider := strings.ToLower(r.str("EMBEDDING_PROVIDER", embedder.BackendOllama))
	s.Embedding = embedder.Config{
		Provider:   embProvider,
		Model:      r.str("EMBEDDING_MODEL", ""),
		Dimensions: r.int("EMBEDDING_DIMENSIONS", embedder.DefaultDimensions),
		APIVersion: r.first("EMBEDDING_API_VERSION", "AZURE_OPENAI_API_VERSION"),
		CacheSize:  r.int("EMBEDDING_CACHE_SIZE", 0),
	}
	switch embProvider {
	case embedder.BackendAzure:
		s.Embedding.APIKey = r.first("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		s.Embedding.Endpoint = r.first("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	case embedder.BackendOpenAI:
		s.Embedding.APIKey = r.first("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		s.Embedding.Endpoint = r.str("EMBEDDING_ENDPOINT", "")
	default:
		s.Embedding.APIKey = r.str("EMBEDDING_API_KEY", "")
		s.Embedding.Endpoint = r.first("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
	}

	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

// reader resolves typed values from a lookup function. The first parse
// failure is kept and reported by FromLookup.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

// raw returns the trimmed value of key and whether it is set and non-empty.
func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

// first returns the value of the first key that is set.
func (r *reader) first(keys ...string) string {
	for _, k := range keys {
		if v, ok := r.raw(k); ok {
			return v
		}
	}
	return ""
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) float64(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *reader) float32(key string, def float32) float32 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := cast.ToFloat32E(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *reader) bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go duration strings ("1500ms") and bare integers, which
// cast reads as nanoseconds; bare integers are treated as seconds instead.
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	if n, err := cast.ToIntE(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("config: invalid %s=%q: %w", key, value, err)
	}
}
