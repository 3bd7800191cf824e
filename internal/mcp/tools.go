package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/repo"
	"github.com/54b3r/coderag-go/internal/store"
)

// readOnly marks tools that never modify the index or the repository.
var readOnly = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodebaseTool() mcp.Tool {
	return mcp.NewTool("search_codebase",
		mcp.WithDescription("Search the indexed repository with hybrid semantic and keyword retrieval. Returns matching code snippets, each headed by its file and match type."),
		mcp.WithToolAnnotation(readOnly),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language question or identifiers to look for"),
		),
	)
}

func askCodebaseTool() mcp.Tool {
	return mcp.NewTool("ask_codebase",
		mcp.WithDescription("Answer a question about the indexed repository, grounded in retrieved code, and list the cited files."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("session_id",
			mcp.Description("Optional conversation id; earlier turns of the session are used as context"),
		),
	)
}

func summarizeRepositoryTool() mcp.Tool {
	return mcp.NewTool("summarize_repository",
		mcp.WithDescription("Summarize the repository from its README and top-level file structure."),
		mcp.WithToolAnnotation(readOnly),
	)
}

// handleSearch handles the search_codebase tool.
func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	text := s.retriever.Retrieve(ctx, query).Text()
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultText(fmt.Sprintf("No relevant code found for query: %q", query)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// handleAsk handles the ask_codebase tool.
func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(req.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	log := logging.FromContext(ctx)

	var history []answer.Turn
	if s.history != nil && sessionID != "" {
		msgs, err := s.history.Recent(ctx, sessionID, 0)
		if err != nil {
			log.Warn("mcp: history load failed", slog.Any("error", err))
		}
		history = store.Turns(msgs)
	}

	res := s.answerer.Answer(ctx, question, history)

	if s.history != nil && sessionID != "" {
		err := s.history.Append(ctx, sessionID,
			answer.Turn{Role: answer.RoleUser, Content: question},
			answer.Turn{Role: answer.RoleAssistant, Content: res.Text},
		)
		if err != nil {
			log.Warn("mcp: history save failed", slog.Any("error", err))
		}
	}

	out := formatAnswer(res, citation.Group(res.Context, s.cfg.Linker))
	if res.Outcome == answer.OutcomeQuotaExhausted || res.Outcome == answer.OutcomeFailed {
		return mcp.NewToolResultError(out), nil
	}
	return mcp.NewToolResultText(out), nil
}

// handleSummarize handles the summarize_repository tool.
func (s *Server) handleSummarize(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	details, err := repo.Scan(s.cfg.RepoDir, repo.Options{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}
	readme, err := repo.ReadREADME(s.cfg.RepoDir)
	if err != nil {
		logging.FromContext(ctx).Warn("mcp: README unreadable", slog.Any("error", err))
	}
	if strings.TrimSpace(readme) == "" {
		readme = "No README found."
	}

	summary := s.answerer.Summarize(ctx, readme, details.Tree)
	if strings.HasPrefix(summary, answer.SummaryErrorPrefix) {
		return mcp.NewToolResultError(summary), nil
	}

	var b strings.Builder
	b.WriteString(summary)
	fmt.Fprintf(&b, "\n\nFiles: %d\n", details.TotalFiles)
	for _, e := range details.TopExtensions(5) {
		fmt.Fprintf(&b, "- %s: %d\n", e.Extension, e.Files)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// formatAnswer renders the reply followed by a Sources list.
func formatAnswer(res answer.Answer, cites []citation.Citation) string {
	if len(cites) == 0 {
		return res.Text
	}
	var b strings.Builder
	b.WriteString(res.Text)
	b.WriteString("\n\nSources:\n")
	for _, c := range cites {
		fmt.Fprintf(&b, "- %s (%s)", c.Filename, c.Label)
		if c.URL != "" {
			fmt.Fprintf(&b, " %s", c.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}
