package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/store"
)

// chatHelp lists the REPL commands.
const chatHelp = `Commands:
  /followups        list the canned follow-up actions
  /f <label>        run a follow-up action, e.g. /f Generate Test
  /clear            forget this session's history
  /session          print the session id
  /quit             leave`

// NewChatCmd constructs the `coderag chat` command, an interactive session
// whose turns are kept as conversation history.
func NewChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive question-answering session",
		Long: `Start an interactive session. Each answer sees the last few turns of the
conversation, so follow-up questions can refer to earlier answers.

With history enabled (CODERAG_HISTORY_DB), the session survives restarts:
pass --session to resume it.

Examples:
  coderag chat
  coderag chat --session 3f0c1e9a-6f41-4ac4-9d35-0d6f8f0b6f7e`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if sessionID == "" {
				sessionID = uuid.NewString()
			} else if _, err := uuid.Parse(sessionID); err != nil {
				return fmt.Errorf("chat: invalid --session: %w", err)
			}

			p, err := buildPipeline(settings, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer p.close()

			orch, err := p.orchestrator(ctx, settings)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			history, closeHistory := buildHistory(settings, log)
			defer closeHistory()

			r := &repl{
				answerer:  orch,
				history:   history,
				sessionID: sessionID,
				linker:    linker(settings),
				in:        os.Stdin,
				out:       os.Stdout,
				log:       log,
			}
			return r.run(ctx)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session id")

	return cmd
}

// chatAnswerer is the part of answer.Orchestrator the REPL needs.
type chatAnswerer interface {
	Answer(ctx context.Context, query string, history []answer.Turn) answer.Answer
}

// repl runs the interactive chat loop. With a nil history store, turns are
// kept in memory for the life of the process.
type repl struct {
	answerer  chatAnswerer
	history   store.ConversationStore
	sessionID string
	linker    citation.Linker
	in        io.Reader
	out       io.Writer
	log       *slog.Logger

	// turns is the in-memory thread used when history is nil.
	turns []answer.Turn
}

// run reads questions until EOF, /quit or ctx ends.
func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "coderag chat (session %s). Type /help for commands.\n", r.sessionID)

	sc := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "\n> ")
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			fmt.Fprintln(r.out, chatHelp)
		case line == "/session":
			fmt.Fprintln(r.out, r.sessionID)
		case line == "/followups":
			for _, f := range answer.FollowUps {
				fmt.Fprintf(r.out, "  %s\n", f.Label)
			}
		case line == "/clear":
			r.clear(ctx)
		case strings.HasPrefix(line, "/f "):
			label := strings.TrimSpace(strings.TrimPrefix(line, "/f "))
			q, ok := answer.FollowUpQuery(label)
			if !ok {
				fmt.Fprintf(r.out, "unknown follow-up %q; see /followups\n", label)
				continue
			}
			r.ask(ctx, q)
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(r.out, "unknown command %q; see /help\n", line)
		default:
			r.ask(ctx, line)
		}
	}
}

// ask answers one question and records both turns.
func (r *repl) ask(ctx context.Context, question string) {
	prior := r.load(ctx)
	res := r.answerer.Answer(ctx, question, prior)
	fmt.Fprintln(r.out)
	printAnswer(r.out, res, r.linker)

	turns := []answer.Turn{
		{Role: answer.RoleUser, Content: question},
		{Role: answer.RoleAssistant, Content: res.Text},
	}
	if r.history == nil {
		r.turns = append(r.turns, turns...)
		return
	}
	if err := r.history.Append(ctx, r.sessionID, turns...); err != nil {
		r.log.Warn("chat: failed to save turns", slog.Any("error", err))
	}
}

// load returns the session's thread, oldest first.
func (r *repl) load(ctx context.Context) []answer.Turn {
	if r.history == nil {
		return r.turns
	}
	msgs, err := r.history.Recent(ctx, r.sessionID, 0)
	if err != nil {
		r.log.Warn("chat: failed to load history", slog.Any("error", err))
		return nil
	}
	return store.Turns(msgs)
}

// clear forgets the session's thread.
func (r *repl) clear(ctx context.Context) {
	if r.history == nil {
		n := len(r.turns)
		r.turns = nil
		fmt.Fprintf(r.out, "cleared %d turns\n", n)
		return
	}
	n, err := r.history.Clear(ctx, r.sessionID)
	if err != nil {
		fmt.Fprintf(r.out, "failed to clear history: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "cleared %d turns\n", n)
}
