package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/repo"
	"github.com/54b3r/coderag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed ChatTimeout so retried answers can still be delivered.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one question-answer cycle including retries
	// (default: 2m).
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Linker turns cited filenames into links to the hosted repository.
	Linker citation.Linker
	// RepoDir is the checkout summarized by GET /api/overview. Empty
	// disables the endpoint.
	RepoDir string
	// OverviewCacheSize is the number of overviews kept in memory (default: 8).
	OverviewCacheSize int
}

// Answerer answers questions and summarizes repositories.
// *answer.Orchestrator satisfies it; tests inject a fake.
type Answerer interface {
	Answer(ctx context.Context, query string, history []answer.Turn) answer.Answer
	Summarize(ctx context.Context, readme, tree string) string
}

// History is the subset of store.ConversationStore used by the handlers.
type History interface {
	Append(ctx context.Context, sessionID string, turns ...answer.Turn) error
	Recent(ctx context.Context, sessionID string, n int) ([]store.Message, error)
	Clear(ctx context.Context, sessionID string) (int64, error)
}

// Server is the HTTP server that exposes the code question-answering API.
type Server struct {
	// answerer runs question-answer cycles and repository summaries.
	answerer Answerer
	// retriever serves raw context for POST /api/search.
	retriever answer.Retriever
	// history persists conversations. Nil disables sessions.
	history History
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// overviews caches GET /api/overview responses keyed by repository dir.
	overviews *lru.Cache[string, overviewResponse]
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's natural language question.
	Message string `json:"message"`
	// SessionID continues an existing conversation. Empty starts a new one.
	SessionID string `json:"session_id"`
	// FollowUp, when set, replaces Message with the canned query carrying
	// this label.
	FollowUp string `json:"follow_up"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	// SessionID identifies the conversation for follow-up requests.
	SessionID string `json:"session_id"`
	// Answer is the reply text; it is always displayable.
	Answer string `json:"answer"`
	// Outcome classifies how the cycle ended.
	Outcome answer.Outcome `json:"outcome"`
	// Citations lists the source files the answer was grounded in.
	Citations []citation.Citation `json:"citations"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the text to retrieve context for.
	Query string `json:"query"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Query echoes the request.
	Query string `json:"query"`
	// Context is the serialized retrieval bundle.
	Context string `json:"context"`
	// Results is the number of entries in the bundle.
	Results int `json:"results"`
	// Snippets are the parsed bundle entries in order.
	Snippets []rag.Snippet `json:"snippets"`
	// Citations groups the snippets by file.
	Citations []citation.Citation `json:"citations"`
}

// overviewResponse is the JSON response for GET /api/overview.
type overviewResponse struct {
	// RepoURL is the hosted repository, if known.
	RepoURL string `json:"repo_url,omitempty"`
	// TotalFiles counts the files in the checkout.
	TotalFiles int `json:"total_files"`
	// TopExtensions lists the most common file extensions.
	TopExtensions []repo.ExtensionCount `json:"top_extensions"`
	// Tree is the shallow file tree.
	Tree string `json:"tree"`
	// Summary is the model-written HTML overview.
	Summary string `json:"summary"`
}

// sessionResponse is the JSON response for GET /api/sessions/{id}.
type sessionResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []store.Message `json:"messages"`
}

// clearResponse is the JSON response for DELETE /api/sessions/{id}.
type clearResponse struct {
	SessionID string `json:"session_id"`
	Deleted   int64  `json:"deleted"`
}
