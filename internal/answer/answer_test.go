package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/retry"
)

var (
	errQuota = errors.New("429 RESOURCE_EXHAUSTED: quota exceeded")
	errAuth  = errors.New("401 API key not valid")
)

func isQuota(err error) bool { return errors.Is(err, errQuota) }

// stubRetriever returns a fixed bundle and counts calls.
type stubRetriever struct {
	bundle rag.Bundle
	calls  int
}

func (s *stubRetriever) Retrieve(context.Context, string) rag.Bundle {
	s.calls++
	return s.bundle
}

// scriptedSynth fails with errs in order, then returns reply. It records
// every prompt it receives.
type scriptedSynth struct {
	mu      sync.Mutex
	errs    []error
	reply   string
	prompts []string
}

func (s *scriptedSynth) Synthesize(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if n := len(s.prompts); n <= len(s.errs) {
		return "", s.errs[n-1]
	}
	return s.reply, nil
}

func (s *scriptedSynth) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// instantPolicy is the default retry policy with sleeps recorded instead of
// performed and zero jitter.
func instantPolicy(slept *[]time.Duration) retry.Policy {
	return retry.NewPolicy(0, 0, retry.DefaultMaxJitter, isQuota).
		WithSleep(func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		}).
		WithJitter(func(time.Duration) time.Duration { return 0 })
}

func oneSnippet() rag.Bundle {
	return rag.Merge([]rag.Result{
		{Filename: "main.go", Text: "func main() { run() }", Score: 0.8, Source: rag.SourceSemantic},
	}, nil)
}

func newTestOrchestrator(t *testing.T, r Retriever, s Synthesizer, slept *[]time.Duration) (*Orchestrator, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	o, err := NewOrchestrator(r, s, Config{Retry: instantPolicy(slept)}, m)
	require.NoError(t, err)
	return o, m
}

func TestAnswer_EmptyStoreShortCircuits(t *testing.T) {
	t.Parallel()

	synth := &scriptedSynth{reply: "should not be used"}
	o, m := newTestOrchestrator(t, &stubRetriever{}, synth, nil)

	got := o.Answer(context.Background(), "what does main do?", nil)

	assert.Equal(t, NoContextMessage, got.Text)
	assert.Empty(t, got.Context)
	assert.Equal(t, OutcomeNoContext, got.Outcome)
	assert.Zero(t, synth.calls(), "no model call when nothing was retrieved")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.answersTotal.WithLabelValues(string(OutcomeNoContext))))
}

func TestAnswer_ReturnsReplyAndContext(t *testing.T) {
	t.Parallel()

	bundle := oneSnippet()
	synth := &scriptedSynth{reply: "main calls run (main.go)."}
	o, m := newTestOrchestrator(t, &stubRetriever{bundle: bundle}, synth, nil)

	got := o.Answer(context.Background(), "what does main do?", nil)

	assert.Equal(t, OutcomeAnswered, got.Outcome)
	assert.Equal(t, "main calls run (main.go).", got.Text)
	assert.Equal(t, bundle.Text(), got.Context)

	require.Equal(t, 1, synth.calls())
	prompt := synth.prompts[0]
	assert.Contains(t, prompt, "CONTEXT:\n"+bundle.Text())
	assert.Contains(t, prompt, "QUESTION: what does main do?")
	assert.Contains(t, prompt, `"I don't know based on the current code."`)
	assert.NotContains(t, prompt, "PREVIOUS CONVERSATION:", "no history section without history")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.synthesisAttempts.WithLabelValues("ok")))
}

func TestAnswer_UsesOnlyLastSixTurns(t *testing.T) {
	t.Parallel()

	history := make([]Turn, 10)
	for i := range history {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history[i] = Turn{Role: role, Content: fmt.Sprintf("turn-%02d", i)}
	}
	snapshot := append([]Turn(nil), history...)

	synth := &scriptedSynth{reply: "ok"}
	o, _ := newTestOrchestrator(t, &stubRetriever{bundle: oneSnippet()}, synth, nil)
	o.Answer(context.Background(), "and then?", history)

	require.Equal(t, 1, synth.calls())
	prompt := synth.prompts[0]
	for i := 0; i < 4; i++ {
		assert.NotContains(t, prompt, fmt.Sprintf("turn-%02d", i))
	}
	assert.Contains(t, prompt, "PREVIOUS CONVERSATION:\nUser: turn-04\nAssistant: turn-05\n")
	assert.Contains(t, prompt, "Assistant: turn-09\n")
	assert.Equal(t, snapshot, history, "stored history must not be modified")
}

func TestAnswer_QuotaRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	synth := &scriptedSynth{errs: []error{errQuota, errQuota, errQuota, errQuota}, reply: "finally"}
	o, m := newTestOrchestrator(t, &stubRetriever{bundle: oneSnippet()}, synth, &slept)

	got := o.Answer(context.Background(), "explain retries", nil)

	assert.Equal(t, OutcomeAnswered, got.Outcome)
	assert.Equal(t, "finally", got.Text)
	assert.Equal(t, 5, synth.calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, slept)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.synthesisAttempts.WithLabelValues("quota")))
}

func TestAnswer_QuotaExhausted(t *testing.T) {
	t.Parallel()

	errs := []error{errQuota, errQuota, errQuota, errQuota, errQuota}
	synth := &scriptedSynth{errs: errs}
	bundle := oneSnippet()
	o, _ := newTestOrchestrator(t, &stubRetriever{bundle: bundle}, synth, nil)

	got := o.Answer(context.Background(), "explain retries", nil)

	assert.Equal(t, OutcomeQuotaExhausted, got.Outcome)
	assert.True(t, strings.HasPrefix(got.Text, "Error: the model quota was exceeded after 5 attempts"), got.Text)
	assert.Contains(t, got.Text, "RESOURCE_EXHAUSTED")
	assert.Equal(t, bundle.Text(), got.Context, "snippets are still returned on failure")
	assert.Equal(t, 5, synth.calls())
}

func TestAnswer_NonQuotaErrorNotRetried(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	synth := &scriptedSynth{errs: []error{errAuth}}
	o, m := newTestOrchestrator(t, &stubRetriever{bundle: oneSnippet()}, synth, &slept)

	got := o.Answer(context.Background(), "explain auth", nil)

	assert.Equal(t, OutcomeFailed, got.Outcome)
	assert.Equal(t, "Error generating answer: "+errAuth.Error(), got.Text)
	assert.Equal(t, 1, synth.calls())
	assert.Empty(t, slept)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.answersTotal.WithLabelValues(string(OutcomeFailed))))
}

func TestAnswer_TokenBudgetDropsOldestTurns(t *testing.T) {
	t.Parallel()

	history := []Turn{
		{Role: RoleUser, Content: "old " + strings.Repeat("x", 4000)},
		{Role: RoleAssistant, Content: "recent"},
	}
	synth := &scriptedSynth{reply: "ok"}
	bundle := oneSnippet()
	fixed := len(BuildPrompt("q", bundle.Text(), nil)) / 4

	o, err := NewOrchestrator(&stubRetriever{bundle: bundle}, synth, Config{
		MaxContextTokens: fixed + 50,
		Retry:            instantPolicy(nil),
	}, nil)
	require.NoError(t, err)

	o.Answer(context.Background(), "q", history)

	require.Equal(t, 1, synth.calls())
	assert.NotContains(t, synth.prompts[0], "User: old")
	assert.Contains(t, synth.prompts[0], "Assistant: recent")
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	synth := &scriptedSynth{reply: "<h3>demo</h3>"}
	o, _ := newTestOrchestrator(t, &stubRetriever{}, synth, nil)

	readme := strings.Repeat("a", 6000) + "TAIL"
	got := o.Summarize(context.Background(), readme, "├── main.go")

	assert.Equal(t, "<h3>demo</h3>", got)
	require.Equal(t, 1, synth.calls())
	prompt := synth.prompts[0]
	assert.Contains(t, prompt, strings.Repeat("a", 5000)+" (truncated)")
	assert.NotContains(t, prompt, "TAIL")
	assert.Contains(t, prompt, "FILE STRUCTURE TOP LEVELS:\n├── main.go")
	assert.Contains(t, prompt, "Do NOT use code blocks")
}

func TestSummarize_Failure(t *testing.T) {
	t.Parallel()

	synth := &scriptedSynth{errs: []error{errAuth}}
	o, _ := newTestOrchestrator(t, &stubRetriever{}, synth, nil)

	got := o.Summarize(context.Background(), "# demo", "")
	assert.Equal(t, "Could not generate summary: "+errAuth.Error(), got)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewOrchestrator(nil, &scriptedSynth{}, Config{}, nil)
	assert.Error(t, err)
	_, err = NewOrchestrator(&stubRetriever{}, nil, Config{}, nil)
	assert.Error(t, err)

	o, err := NewOrchestrator(&stubRetriever{}, &scriptedSynth{}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryWindow, o.cfg.HistoryWindow)
	assert.Equal(t, DefaultReadmeLimit, o.cfg.ReadmeLimit)
	assert.Equal(t, retry.DefaultMaxAttempts, o.cfg.Retry.MaxAttempts)
}

func TestRoleLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "User", RoleUser.Label())
	assert.Equal(t, "Assistant", RoleAssistant.Label())
	assert.Equal(t, "Assistant", Role("model").Label())
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "héllo", truncateRunes("héllo", 50))
	assert.Equal(t, "héllo", truncateRunes("héllo", 0))
}

func TestFollowUpQuery(t *testing.T) {
	t.Parallel()

	q, ok := FollowUpQuery("Generate Test")
	assert.True(t, ok)
	assert.Equal(t, "Write a unit test for the code discussed above.", q)

	_, ok = FollowUpQuery("Refactor")
	assert.False(t, ok)
	assert.Len(t, FollowUps, 3)
}

func TestMetrics_ObserveRetrieval(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveRetrieval(rag.SourceSemantic, 4, nil)
	m.ObserveRetrieval(rag.SourceKeyword, 0, errors.New("down"))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.retrievalResults.WithLabelValues("semantic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievalErrors.WithLabelValues("keyword")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveRetrieval(rag.SourceSemantic, 1, nil) })
}
