package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// handleChat handles POST /api/chat. It runs one question-answer cycle in
// the request's session, persists both turns and returns the answer with its
// citations. Clients that send "Accept: text/event-stream" receive the same
// payload as SSE events instead of a JSON body.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	query := strings.TrimSpace(req.Message)
	if req.FollowUp != "" {
		q, ok := answer.FollowUpQuery(req.FollowUp)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown follow-up %q", req.FollowUp), http.StatusBadRequest)
			return
		}
		query = q
	}
	if query == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sessionID, err := resolveSession(req.SessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log = log.With(slog.String("session_id", sessionID))

	stream := wantsStream(r)
	if stream {
		s.metrics.chatActiveStreams.Inc()
		defer s.metrics.chatActiveStreams.Dec()
	}

	ctx, cancel := context.WithTimeout(logging.WithLogger(r.Context(), log), s.cfg.ChatTimeout)
	defer cancel()

	history := s.loadHistory(ctx, sessionID)
	res := s.answerer.Answer(ctx, query, history)
	s.saveTurns(r.Context(), sessionID, query, res.Text)

	resp := chatResponse{
		SessionID: sessionID,
		Answer:    res.Text,
		Outcome:   res.Outcome,
		Citations: citations(res.Context, s.cfg.Linker),
	}
	s.metrics.observeChat(res.Outcome, time.Since(start))
	log.Info("chat: answered",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("history_turns", len(history)),
		slog.Int("citations", len(resp.Citations)),
	)

	if stream {
		s.streamChat(w, r, resp)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// streamChat delivers resp as an "answer" event with the reply text, a
// "meta" event with the session, outcome and citations, and a final "done".
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, resp chatResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	sw := &sseWriter{w: w, flusher: flusher}

	meta, err := json.Marshal(struct {
		SessionID string              `json:"session_id"`
		Outcome   answer.Outcome      `json:"outcome"`
		Citations []citation.Citation `json:"citations"`
	}{resp.SessionID, resp.Outcome, resp.Citations})
	if err != nil {
		_ = sw.event("error", []byte(err.Error()))
		return
	}

	if err := sw.event("answer", []byte(resp.Answer)); err != nil {
		logging.FromContext(r.Context()).Warn("chat: stream write failed", slog.Any("error", err))
		return
	}
	_ = sw.event("meta", meta)
	_ = sw.event("done", []byte("[DONE]"))
}

// handleSearch handles POST /api/search. It returns the hybrid retrieval
// context for a query without calling the answer model.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	bundle := s.retriever.Retrieve(r.Context(), query)
	text := bundle.Text()
	snippets := rag.Parse(text)
	if snippets == nil {
		snippets = []rag.Snippet{}
	}

	writeJSON(w, r, http.StatusOK, searchResponse{
		Query:     query,
		Context:   text,
		Results:   bundle.Len(),
		Snippets:  snippets,
		Citations: citations(text, s.cfg.Linker),
	})
}

// handleSession handles GET /api/sessions/{id} and returns the whole thread.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	msgs, err := s.history.Recent(r.Context(), id, 0)
	if err != nil {
		logging.FromContext(r.Context()).Error("session: load failed", slog.Any("error", err))
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, r, http.StatusOK, sessionResponse{SessionID: id, Messages: msgs})
}

// handleSessionClear handles DELETE /api/sessions/{id}.
func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	n, err := s.history.Clear(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("session: clear failed", slog.Any("error", err))
		http.Error(w, "failed to clear session", http.StatusInternalServerError)
		return
	}
	logging.FromContext(r.Context()).Info("session: cleared",
		slog.String("session_id", id),
		slog.Int64("deleted", n),
	)
	writeJSON(w, r, http.StatusOK, clearResponse{SessionID: id, Deleted: n})
}

// sessionFromPath validates the {id} path value and that history is
// enabled, writing the error response itself when not.
func (s *Server) sessionFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.history == nil {
		http.Error(w, "conversation history is disabled", http.StatusNotFound)
		return "", false
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// loadHistory returns the stored thread for the session. Failures are
// logged and treated as an empty history so the question is still answered.
func (s *Server) loadHistory(ctx context.Context, sessionID string) []answer.Turn {
	if s.history == nil {
		return nil
	}
	msgs, err := s.history.Recent(ctx, sessionID, 0)
	if err != nil {
		logging.FromContext(ctx).Warn("chat: history load failed", slog.Any("error", err))
		return nil
	}
	return store.Turns(msgs)
}

// saveTurns appends the question and the displayed reply to the session.
func (s *Server) saveTurns(ctx context.Context, sessionID, query, reply string) {
	if s.history == nil {
		return
	}
	err := s.history.Append(ctx, sessionID,
		answer.Turn{Role: answer.RoleUser, Content: query},
		answer.Turn{Role: answer.RoleAssistant, Content: reply},
	)
	if err != nil {
		logging.FromContext(ctx).Warn("chat: history save failed", slog.Any("error", err))
	}
}

// resolveSession returns id, or a new session id when id is empty.
func resolveSession(id string) (string, error) {
	if id == "" {
		return uuid.NewString(), nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid session_id %q", id)
	}
	return id, nil
}

// wantsStream reports whether the client asked for Server-Sent Events.
func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// citations groups a serialized context by file, never returning nil so the
// JSON field is always an array.
func citations(raw string, linker citation.Linker) []citation.Citation {
	c := citation.Group(raw, linker)
	if c == nil {
		return []citation.Citation{}
	}
	return c
}
