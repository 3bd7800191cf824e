package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes shared by the handler tests
// ---------------------------------------------------------------------------

// fakeAnswerer implements Answerer and records what it was asked.
type fakeAnswerer struct {
	mu sync.Mutex
	// reply is returned by Answer.
	reply answer.Answer
	// summary is returned by Summarize.
	summary string

	queries   []string
	histories [][]answer.Turn
	summaries int
	readme    string
}

func (f *fakeAnswerer) Answer(_ context.Context, query string, history []answer.Turn) answer.Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.histories = append(f.histories, append([]answer.Turn(nil), history...))
	return f.reply
}

func (f *fakeAnswerer) Summarize(_ context.Context, readme, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	f.readme = readme
	return f.summary
}

func (f *fakeAnswerer) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *fakeAnswerer) lastHistory() []answer.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histories[len(f.histories)-1]
}

// fakeRetriever returns a fixed bundle.
type fakeRetriever struct {
	bundle rag.Bundle
}

func (f *fakeRetriever) Retrieve(context.Context, string) rag.Bundle { return f.bundle }

// testBundle holds one semantic and one keyword snippet from different files.
func testBundle() rag.Bundle {
	return rag.Merge(
		[]rag.Result{{Filename: "cmd/main.go", Text: "func main() {}", Score: 0.8, Source: rag.SourceSemantic}},
		[]rag.Result{{Filename: "internal/db.go", Text: "func Open() {}", Score: 0.9, Source: rag.SourceKeyword}},
	)
}

// testServer bundles a Server with its fakes and isolated registry.
type testServer struct {
	*Server
	answerer  *fakeAnswerer
	retriever *fakeRetriever
	reg       *prometheus.Registry
}

// newTestServer builds a Server over fakes, an in-memory conversation store
// and a fresh registry. mutate may adjust the config before construction.
func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	return newTestServerWith(t, hist, mutate...)
}

// newTestServerWith is newTestServer with an explicit (possibly nil) history.
func newTestServerWith(t *testing.T, hist History, mutate ...func(*Config)) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	cfg := &Config{
		Logger:          slog.New(slog.DiscardHandler),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
		Linker:          citation.Linker{RepoURL: "https://github.com/acme/widgets"},
	}
	for _, m := range mutate {
		m(cfg)
	}

	bundle := testBundle()
	a := &fakeAnswerer{
		reply: answer.Answer{
			Text:    "main starts the program.",
			Context: bundle.Text(),
			Outcome: answer.OutcomeAnswered,
		},
		summary: "<h3>Widgets</h3>",
	}
	r := &fakeRetriever{bundle: bundle}

	s, err := New(a, r, hist, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return &testServer{Server: s, answerer: a, retriever: r, reg: reg}
}

// do sends a request through the full middleware chain.
func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

// decode unmarshals the recorder body into v.
func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON: %v (body: %s)", err, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Construction and routing
// ---------------------------------------------------------------------------

func TestNew_NilDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeRetriever{}, nil, nil); err == nil {
		t.Error("expected error for nil answerer")
	}
	if _, err := New(&fakeAnswerer{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil retriever")
	}
}

func TestServer_FollowUps(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/followups", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got []answer.FollowUp
	decode(t, w, &got)
	if len(got) != 3 {
		t.Fatalf("expected 3 follow-ups, got %d", len(got))
	}
	if got[0].Label != "Explain Concepts" {
		t.Errorf("first follow-up: got %q", got[0].Label)
	}
}

func TestServer_AuthProtectsAPIButNotProbes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(c *Config) { c.APIKey = "secret" })

	if w := ts.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "hi"}); w.Code != http.StatusUnauthorized {
		t.Errorf("chat without token: expected 401, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/followups", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("followups without token: expected 401, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/health", nil); w.Code != http.StatusOK {
		t.Errorf("health without token: expected 200, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "hi"}, "Authorization", "Bearer secret"); w.Code != http.StatusOK {
		t.Errorf("chat with token: expected 200, got %d", w.Code)
	}
}

func TestServer_RateLimitsChat(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	if w := ts.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "hi"}); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "hi"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", w.Code)
	}
	// Probes are never rate limited.
	if w := ts.do(t, http.MethodGet, "/api/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}
}

func TestServer_RequestIDEchoed(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/health", nil, requestIDHeader, "abc-123")
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("expected client request id to be echoed, got %q", got)
	}

	w = ts.do(t, http.MethodGet, "/api/health", nil)
	if got := w.Header().Get(requestIDHeader); len(got) != 16 {
		t.Errorf("expected generated 16-char request id, got %q", got)
	}
}
