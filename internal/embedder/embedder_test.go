package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "all-minilm" {
			t.Errorf("model: got %q, want all-minilm", req.Model)
		}
		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{0.1, 0.2})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "all-minilm"})
	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected shape: %v", vecs)
	}
}

func TestOllamaEmbedder_ErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: `model "all-minilm" not found`})
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "all-minilm"})
	_, err := emb.Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected model-not-found error, got %v", err)
	}
}

func TestOllamaEmbedder_Ping(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" {
			_, _ = w.Write([]byte(`{"version":"0.5.0"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL})
	if err := emb.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if emb.Name() == "" {
		t.Error("Name() must not be empty")
	}
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization: got %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["dimensions"] != float64(384) {
			t.Errorf("dimensions: got %v, want 384", body["dimensions"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[2,2]},
			{"object":"embedding","index":0,"embedding":[1,1]}
		],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/v1",
		APIKey:     "sk-test",
		Model:      "text-embedding-3-small",
		Dimensions: 384,
	})
	vecs, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("embeddings not placed by index: %v", vecs)
	}
}

// countingEmbedder counts how many texts it was asked to embed.
type countingEmbedder struct {
	calls atomic.Int32
	texts atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestCached_EmbedsOnlyMisses(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	c, err := NewCached(inner, 8)
	if err != nil {
		t.Fatalf("NewCached() error: %v", err)
	}
	ctx := context.Background()

	if _, err := c.Embed(ctx, []string{"a", "bb"}); err != nil {
		t.Fatal(err)
	}
	vecs, err := c.Embed(ctx, []string{"bb", "ccc", "a"})
	if err != nil {
		t.Fatal(err)
	}

	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls: got %d, want 2", got)
	}
	if got := inner.texts.Load(); got != 3 {
		t.Errorf("inner texts embedded: got %d, want 3", got)
	}
	want := []float32{2, 3, 1}
	for i, v := range vecs {
		if v[0] != want[i] {
			t.Errorf("vecs[%d]: got %v, want %v", i, v[0], want[i])
		}
	}
	if c.Len() != 3 {
		t.Errorf("cache len: got %d, want 3", c.Len())
	}
}

func TestCached_ErrorNotCached(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{err: errors.New("boom")}
	c, _ := NewCached(inner, 8)

	if _, err := c.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error")
	}
	if c.Len() != 0 {
		t.Errorf("failed embeddings must not be cached")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "default is ollama", cfg: Config{}},
		{name: "openai/valid", cfg: Config{Provider: BackendOpenAI, APIKey: "k"}},
		{name: "openai/missing key", cfg: Config{Provider: BackendOpenAI}, wantErr: "OPENAI_API_KEY"},
		{name: "azure/valid", cfg: Config{Provider: BackendAzure, APIKey: "k", Endpoint: "https://x", Model: "emb"}},
		{name: "azure/missing endpoint", cfg: Config{Provider: BackendAzure, APIKey: "k", Model: "emb"}, wantErr: "AZURE_OPENAI_ENDPOINT"},
		{name: "azure/missing deployment", cfg: Config{Provider: BackendAzure, APIKey: "k", Endpoint: "https://x"}, wantErr: "deployment"},
		{name: "unknown", cfg: Config{Provider: "bedrock"}, wantErr: "unknown backend"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestNew_CacheToggle(t *testing.T) {
	t.Parallel()

	emb, err := New(&Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	c, ok := emb.(*Cached)
	if !ok {
		t.Fatalf("expected *Cached by default, got %T", emb)
	}
	if _, ok := c.Inner().(*OllamaEmbedder); !ok {
		t.Errorf("expected cache to wrap *OllamaEmbedder, got %T", c.Inner())
	}

	emb, err = New(&Config{CacheSize: -1})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := emb.(*OllamaEmbedder); !ok {
		t.Errorf("expected *OllamaEmbedder with cache disabled, got %T", emb)
	}
}

func TestWarnings(t *testing.T) {
	t.Parallel()

	if w := Warnings(&Config{}); len(w) != 0 {
		t.Errorf("default config should not warn, got %v", w)
	}
	if w := Warnings(&Config{Model: "llama3"}); len(w) != 1 {
		t.Errorf("chat model should warn once, got %v", w)
	}
	if w := Warnings(&Config{Dimensions: 768}); len(w) != 1 {
		t.Errorf("dimension mismatch should warn once, got %v", w)
	}
	if w := Warnings(&Config{Provider: BackendOpenAI, APIKey: "k"}); len(w) != 1 {
		t.Errorf("implicit openai model should warn once, got %v", w)
	}
}
