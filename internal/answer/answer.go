// Package answer turns a question and the recent conversation into a
// grounded answer. It runs hybrid retrieval, short-circuits when nothing
// relevant was found, assembles the prompt and calls the answer model under
// a retry policy. Every failure is folded into the answer text so that a
// conversation is never interrupted by an error.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/coderag-go/internal/budget"
	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/rag"
	"github.com/54b3r/coderag-go/internal/retry"
)

const (
	// DefaultHistoryWindow is the number of trailing turns included in the
	// prompt: three user/assistant pairs.
	DefaultHistoryWindow = 6
	// DefaultReadmeLimit is the number of README runes sent for a summary.
	DefaultReadmeLimit = 5000
	// SummaryErrorPrefix starts the text Summarize returns when the model
	// call failed.
	SummaryErrorPrefix = "Could not generate summary: "
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the person asking.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the answer model.
	RoleAssistant Role = "assistant"
)

// Label returns the prefix used for the turn in the prompt. Anything that is
// not a user turn is presented as the assistant.
func (r Role) Label() string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Outcome classifies how an Answer call ended.
type Outcome string

const (
	// OutcomeAnswered means the model produced the answer text.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNoContext means retrieval found nothing and no model call was made.
	OutcomeNoContext Outcome = "no_context"
	// OutcomeQuotaExhausted means every attempt hit a quota or rate limit.
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	// OutcomeFailed means the model call failed with a non-retryable error.
	OutcomeFailed Outcome = "failed"
)

// Answer is the result of one question-answer cycle.
type Answer struct {
	// Text is always displayable: the model's reply, the no-context message,
	// or an error message.
	Text string `json:"answer"`
	// Context is the serialized retrieval context the answer was grounded
	// in. Empty when nothing was retrieved.
	Context string `json:"context"`
	// Outcome classifies how the cycle ended.
	Outcome Outcome `json:"outcome"`
}

// Retriever produces the merged context bundle for a query. It must not
// fail; strategy errors are absorbed into fewer results.
type Retriever interface {
	Retrieve(ctx context.Context, query string) rag.Bundle
}

// Synthesizer generates text for a prompt. Quota and rate-limit failures
// must be distinguishable by the retry policy's predicate.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// Config tunes the orchestrator. Zero values select the defaults.
type Config struct {
	// HistoryWindow is the number of trailing turns sent to the model.
	HistoryWindow int
	// ReadmeLimit is the number of README runes sent for a summary.
	ReadmeLimit int
	// MaxContextTokens, when positive, drops the oldest windowed turns until
	// the estimated prompt fits. Zero keeps the whole window.
	MaxContextTokens int
	// Retry governs synthesizer calls. Its Retryable predicate decides which
	// errors count as quota signals.
	Retry retry.Policy
}

// Orchestrator answers questions and summarizes repositories.
type Orchestrator struct {
	retriever Retriever
	synth     Synthesizer
	cfg       Config
	metrics   *Metrics
}

// NewOrchestrator constructs an Orchestrator. metrics may be nil.
func NewOrchestrator(retriever Retriever, synth Synthesizer, cfg Config, metrics *Metrics) (*Orchestrator, error) {
	if retriever == nil {
		return nil, fmt.Errorf("answer: retriever must not be nil")
	}
	if synth == nil {
		return nil, fmt.Errorf("answer: synthesizer must not be nil")
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.ReadmeLimit <= 0 {
		cfg.ReadmeLimit = DefaultReadmeLimit
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.NewPolicy(0, 0, retry.DefaultMaxJitter, cfg.Retry.Retryable)
	}
	return &Orchestrator{retriever: retriever, synth: synth, cfg: cfg, metrics: metrics}, nil
}

// Answer runs one question-answer cycle. history is the full stored
// conversation; only its last HistoryWindow turns reach the prompt and the
// caller's slice is never modified.
func (o *Orchestrator) Answer(ctx context.Context, query string, history []Turn) Answer {
	log := logging.FromContext(ctx)

	bundle := o.retriever.Retrieve(ctx, query)
	serialized := bundle.Text()
	if strings.TrimSpace(serialized) == "" {
		log.Info("answer: no relevant context, skipping model call")
		o.metrics.observeOutcome(OutcomeNoContext)
		return Answer{Text: NoContextMessage, Outcome: OutcomeNoContext}
	}

	window := budget.Window(history, o.cfg.HistoryWindow)
	fixed := budget.Estimate(BuildPrompt(query, serialized, nil))
	window = budget.TrimOldest(window, turnTokens, fixed, o.cfg.MaxContextTokens)
	prompt := BuildPrompt(query, serialized, window)

	log.Debug("answer: prompt assembled",
		slog.Int("snippets", bundle.Len()),
		slog.Int("history_turns", len(window)),
		slog.Int("estimated_tokens", budget.Estimate(prompt)),
	)

	text, err := o.synthesize(ctx, prompt)
	if err != nil {
		outcome, msg := classify(err)
		log.Warn("answer: generation failed",
			slog.String("outcome", string(outcome)),
			slog.Any("error", err),
		)
		o.metrics.observeOutcome(outcome)
		return Answer{Text: msg, Context: serialized, Outcome: outcome}
	}

	o.metrics.observeOutcome(OutcomeAnswered)
	return Answer{Text: text, Context: serialized, Outcome: OutcomeAnswered}
}

// Summarize asks the model for an HTML overview of a repository from its
// README and a shallow file tree. It never fails; errors are returned as the
// summary text.
func (o *Orchestrator) Summarize(ctx context.Context, readme, tree string) string {
	prompt := BuildSummaryPrompt(truncateRunes(readme, o.cfg.ReadmeLimit), tree)
	text, err := o.synthesize(ctx, prompt)
	if err != nil {
		logging.FromContext(ctx).Warn("answer: summary failed", slog.Any("error", err))
		return SummaryErrorPrefix + err.Error()
	}
	return text
}

// synthesize calls the model under the retry policy, recording each attempt.
func (o *Orchestrator) synthesize(ctx context.Context, prompt string) (string, error) {
	return retry.Do(ctx, o.cfg.Retry, func(ctx context.Context) (string, error) {
		start := time.Now()
		text, err := o.synth.Synthesize(ctx, prompt)
		o.metrics.observeAttempt(o.attemptResult(err), time.Since(start).Seconds())
		return text, err
	})
}

// attemptResult maps a synthesizer error to the attempts metric label.
func (o *Orchestrator) attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case o.cfg.Retry.Retryable != nil && o.cfg.Retry.Retryable(err):
		return "quota"
	default:
		return "error"
	}
}

// classify turns a synthesis error into an outcome and the reply text shown
// in its place.
func classify(err error) (Outcome, string) {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return OutcomeQuotaExhausted, fmt.Sprintf(
			"Error: the model quota was exceeded after %d attempts: %v", exhausted.Attempts, exhausted.Err)
	}
	return OutcomeFailed, fmt.Sprintf("Error generating answer: %v", err)
}

// turnTokens estimates the prompt cost of one history line.
func turnTokens(t Turn) int {
	return budget.Estimate(t.Role.Label()) + budget.Estimate(t.Content) + 1
}
