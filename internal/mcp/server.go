// Package mcp exposes code question-answering as Model Context Protocol
// tools over stdio, so editors and agents can query the indexed repository.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/citation"
	"github.com/54b3r/coderag-go/internal/store"
)

// ServerName is the MCP server name reported to clients.
const ServerName = "coderag"

// Answerer answers questions and summarizes repositories.
type Answerer interface {
	Answer(ctx context.Context, query string, history []answer.Turn) answer.Answer
	Summarize(ctx context.Context, readme, tree string) string
}

// History persists conversations for ask_codebase calls that pass a session.
type History interface {
	Append(ctx context.Context, sessionID string, turns ...answer.Turn) error
	Recent(ctx context.Context, sessionID string, n int) ([]store.Message, error)
}

// Config tunes the MCP server.
type Config struct {
	// Version is reported to clients.
	Version string
	// Linker turns cited filenames into repository links.
	Linker citation.Linker
	// RepoDir is the checkout summarized by summarize_repository. Empty
	// disables the tool.
	RepoDir string
}

// Server wraps the MCP server with the question-answering dependencies.
type Server struct {
	mcp       *server.MCPServer
	answerer  Answerer
	retriever answer.Retriever
	history   History
	cfg       Config
}

// NewServer creates an MCP server and registers its tools. history may be
// nil, in which case session_id arguments are ignored.
func NewServer(a Answerer, retriever answer.Retriever, history History, cfg Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("mcp: answerer must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("mcp: retriever must not be nil")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, cfg.Version, server.WithToolCapabilities(false)),
		answerer:  a,
		retriever: retriever,
		history:   history,
		cfg:       cfg,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the server on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodebaseTool(), s.handleSearch)
	s.mcp.AddTool(askCodebaseTool(), s.handleAsk)
	if s.cfg.RepoDir != "" {
		s.mcp.AddTool(summarizeRepositoryTool(), s.handleSummarize)
	}
}
