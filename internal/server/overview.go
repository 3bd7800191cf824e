package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/coderag-go/internal/answer"
	"github.com/54b3r/coderag-go/internal/logging"
	"github.com/54b3r/coderag-go/internal/repo"
)

// noReadme is sent to the model when the checkout has no README.
const noReadme = "No README found."

// topExtensions is the number of extensions reported by the overview.
const topExtensions = 5

// handleOverview handles GET /api/overview. It scans the configured
// checkout, asks the model for a summary and caches the result per
// directory. Pass ?refresh=true to rebuild a cached overview.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	dir := s.cfg.RepoDir
	if dir == "" {
		http.Error(w, "no repository directory configured", http.StatusNotFound)
		return
	}
	log := logging.FromContext(r.Context())

	if r.URL.Query().Get("refresh") != "true" {
		if cached, ok := s.overviews.Get(dir); ok {
			log.Debug("overview: cache hit", slog.String("dir", dir))
			writeJSON(w, r, http.StatusOK, cached)
			return
		}
	}

	details, err := repo.Scan(dir, repo.Options{})
	if err != nil {
		log.Error("overview: scan failed", slog.String("dir", dir), slog.Any("error", err))
		http.Error(w, "failed to scan repository", http.StatusInternalServerError)
		return
	}

	readme, err := repo.ReadREADME(dir)
	if err != nil {
		log.Warn("overview: README unreadable", slog.Any("error", err))
	}
	if strings.TrimSpace(readme) == "" {
		readme = noReadme
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	summary := s.answerer.Summarize(ctx, readme, details.Tree)

	resp := overviewResponse{
		RepoURL:       s.cfg.Linker.RepoURL,
		TotalFiles:    details.TotalFiles,
		TopExtensions: details.TopExtensions(topExtensions),
		Tree:          details.Tree,
		Summary:       summary,
	}
	if !strings.HasPrefix(summary, answer.SummaryErrorPrefix) {
		s.overviews.Add(dir, resp)
	}
	writeJSON(w, r, http.StatusOK, resp)
}
