package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/config"
	"github.com/54b3r/coderag-go/internal/embedder"
	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/provider"
	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/server"
	"github.com/54b3r/coderag-go/internal/store"
)

// pipeline holds the retrieval dependencies shared by every query command.
type pipeline struct {
	store     rag.ChunkStore
	embedder  rag.Embedder
	retriever *rag.HybridRetriever
	metrics   *answer.Metrics
}

// buildPipeline opens the chunk store and wires the hybrid retriever. reg
// receives the answer metrics; pass a private registry outside `serve`.
// The caller must call close when done.
func buildPipeline(s *config.Settings, log *slog.Logger, reg prometheus.Registerer) (*pipeline, error) {
	st, err := buildStore(s)
	if err != nil {
		return nil, err
	}

	emb, err := buildEmbedder(s, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	metrics := answer.NewMetrics(reg)

	semantic, err := rag.NewSemanticRetriever(emb, st, s.SemanticTopK)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	keyword, err := rag.NewKeywordRetriever(st, s.Keyword)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	hybrid, err := rag.NewHybridRetriever(semantic, keyword, metrics)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipeline{store: st, embedder: emb, retriever: hybrid, metrics: metrics}, nil
}

// close releases the chunk store.
func (p *pipeline) close() {
	_ = p.store.Close()
}

// orchestrator builds the answer model and wraps it, with the retriever, in
// an answer.Orchestrator.
func (p *pipeline) orchestrator(ctx context.Context, s *config.Settings) (*answer.Orchestrator, error) {
	chatModel, err := provider.New(ctx, &s.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	synth, err := provider.NewChatSynthesizer(chatModel, s.Provider.ModelName())
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("provider initialised",
		slog.String("provider", string(s.Provider.Backend)),
		slog.String("model", s.Provider.ModelName()),
	)
	return answer.NewOrchestrator(p.retriever, synth, s.AnswerConfig(), p.metrics)
}

// buildStore opens the chunk store selected by STORE_BACKEND.
func buildStore(s *config.Settings) (rag.ChunkStore, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.StoreBackend {
	case config.StoreQdrant:
		st, err := rag.NewQdrantStore(&s.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("failed to open qdrant store: %w", err)
		}
		return st, nil
	case config.StoreSQLite:
		st, err := rag.OpenSQLiteStore(s.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	default:
		st, err := rag.NewPostgresStore(&s.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	}
}

// buildEmbedder constructs the query embedder and logs any configuration
// that looks mismatched with the indexer.
func buildEmbedder(s *config.Settings, log *slog.Logger) (rag.Embedder, error) {
	embedder.LogWarnings(&s.Embedding, log)
	emb, err := embedder.New(&s.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	return emb, nil
}

// buildHistory opens the conversation store. It returns a nil store when
// history is disabled or cannot be opened; conversations then live only as
// long as the process. The returned close func is always safe to call.
func buildHistory(s *config.Settings, log *slog.Logger) (store.ConversationStore, func()) {
	noop := func() {}
	if !s.HistoryEnabled() {
		log.Info("history: disabled via CODERAG_HISTORY_DB=disabled")
		return nil, noop
	}

	dbPath := s.HistoryDB
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
		dbPath = p
	}

	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// pinger is implemented by every dependency that can probe itself.
type pinger interface {
	Ping(ctx context.Context) error
}

// buildPingers returns the readiness probes for the wired dependencies, in
// the order they are reported.
func buildPingers(s *config.Settings, p *pipeline, history store.ConversationStore) []server.Pinger {
	pingers := []server.Pinger{
		server.NewPinger(s.StoreBackend, p.store.Ping),
		server.NewIndexPinger(p.store),
	}
	if ep, ok := unwrapEmbedder(p.embedder).(pinger); ok {
		pingers = append(pingers, server.NewPinger("embedder", ep.Ping))
	}
	if hp, ok := history.(pinger); ok {
		pingers = append(pingers, server.NewPinger("history", hp.Ping))
	}
	return pingers
}

// unwrapEmbedder returns the backend behind the query-embedding cache.
func unwrapEmbedder(e rag.Embedder) rag.Embedder {
	if c, ok := e.(*embedder.Cached); ok {
		return c.Inner()
	}
	return e
}

// linker returns the citation linker for the configured repository.
func linker(s *config.Settings) citation.Linker {
	return citation.Linker{
		RepoURL: citation.NormalizeGitHubURL(s.Repo.URL),
		Branch:  s.Repo.Branch,
	}
}

// printAnswer writes an answer followed by its cited files.
func printAnswer(w io.Writer, res answer.Answer, lk citation.Linker) {
	fmt.Fprintln(w, res.Text)
	cites := citation.Group(res.Context, lk)
	if len(cites) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, c := range cites {
		if c.URL != "" {
			fmt.Fprintf(w, "  - %s (%s) %s\n", c.Filename, c.Label, c.URL)
			continue
		}
		fmt.Fprintf(w, "  - %s (%s)\n", c.Filename, c.Label)
	}
}
