package commands

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/store"
)

// scriptedAnswerer echoes questions and records the history it was given.
type scriptedAnswerer struct {
	histories [][]answer.Turn
	queries   []string
}

func (s *scriptedAnswerer) Answer(_ context.Context, query string, history []answer.Turn) answer.Answer {
	s.queries = append(s.queries, query)
	s.histories = append(s.histories, append([]answer.Turn(nil), history...))
	bundle := rag.Merge([]rag.Result{{Filename: "main.go", Text: "package main", Source: rag.SourceSemantic}}, nil)
	return answer.Answer{Text: "answer to " + query, Context: bundle.Text(), Outcome: answer.OutcomeAnswered}
}

func newTestREPL(input string, history store.ConversationStore) (*repl, *scriptedAnswerer, *bytes.Buffer) {
	a := &scriptedAnswerer{}
	out := &bytes.Buffer{}
	return &repl{
		answerer:  a,
		history:   history,
		sessionID: "11111111-1111-1111-1111-111111111111",
		linker:    citation.Linker{RepoURL: "https://github.com/acme/widgets"},
		in:        strings.NewReader(input),
		out:       out,
		log:       slog.New(slog.DiscardHandler),
	}, a, out
}

func TestREPL_InMemoryHistory(t *testing.T) {
	t.Parallel()

	r, a, out := newTestREPL("first\nsecond\n/quit\nnever asked\n", nil)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(a.queries) != 2 {
		t.Fatalf("expected 2 questions, got %v", a.queries)
	}
	if len(a.histories[0]) != 0 {
		t.Errorf("first question: expected no history, got %d turns", len(a.histories[0]))
	}
	if len(a.histories[1]) != 2 || a.histories[1][1].Content != "answer to first" {
		t.Errorf("second question: unexpected history %+v", a.histories[1])
	}
	body := out.String()
	if !strings.Contains(body, "Sources:") || !strings.Contains(body, "https://github.com/acme/widgets/blob/main/main.go") {
		t.Errorf("expected cited sources in output, got:\n%s", body)
	}
}

func TestREPL_PersistentHistoryAndClear(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	r, a, out := newTestREPL("hello\n/clear\nagain\n", hist)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(out.String(), "cleared 2 turns") {
		t.Errorf("expected clear confirmation, got:\n%s", out.String())
	}
	if len(a.histories[1]) != 0 {
		t.Errorf("after /clear: expected no history, got %d turns", len(a.histories[1]))
	}

	msgs, err := hist.Recent(context.Background(), r.sessionID, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "again" {
		t.Errorf("expected only the last exchange to be stored, got %+v", msgs)
	}
}

func TestREPL_FollowUps(t *testing.T) {
	t.Parallel()

	r, a, out := newTestREPL("/f Security Check\n/f Nope\n/bogus\n", nil)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want, _ := answer.FollowUpQuery("Security Check")
	if len(a.queries) != 1 || a.queries[0] != want {
		t.Errorf("expected the canned security query, got %v", a.queries)
	}
	body := out.String()
	if !strings.Contains(body, `unknown follow-up "Nope"`) {
		t.Errorf("expected unknown follow-up message, got:\n%s", body)
	}
	if !strings.Contains(body, `unknown command "/bogus"`) {
		t.Errorf("expected unknown command message, got:\n%s", body)
	}
}

func TestPrintAnswer_NoContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printAnswer(&buf, answer.Answer{Text: answer.NoContextMessage, Outcome: answer.OutcomeNoContext}, citation.Linker{})
	if strings.Contains(buf.String(), "Sources:") {
		t.Errorf("expected no sources section, got:\n%s", buf.String())
	}
}
