// Package citation turns the serialized retrieval context returned with an
// answer into per-file source cards: snippets grouped by file, a provenance
// label, a code-fence language and an optional link into the hosted
// repository.
package citation

import (
	"path"
	"strings"

	"github.com/54b3r/coderag-go/internal/rag"
)

// Separator joins snippets from the same file.
const Separator = "\n\n# ... (more context) ...\n\n"

// DefaultBranch is used for links when no branch is known.
const DefaultBranch = "main"

// Citation is one source file referenced by an answer.
type Citation struct {
	// Filename is the file path as it appears in the context headers.
	Filename string `json:"filename"`
	// Label is "Semantic" if any snippet of the file came from semantic
	// search, otherwise "Keyword".
	Label string `json:"label"`
	// Content is every snippet of the file joined with Separator.
	Content string `json:"content"`
	// Snippets is the number of snippets merged into Content.
	Snippets int `json:"snippets"`
	// Language is the code-fence language for Content.
	Language string `json:"language"`
	// URL links to the file in the hosted repository. Empty without a repo URL.
	URL string `json:"url,omitempty"`
}

// Linker builds links to files in a hosted repository.
type Linker struct {
	// RepoURL is the repository root, already normalized.
	RepoURL string
	// Branch is the branch to link against. Empty means DefaultBranch.
	Branch string
}

// URL returns the blob URL for filename, or "" when no repository is set.
// Windows separators are converted so that links stay valid.
func (l Linker) URL(filename string) string {
	if l.RepoURL == "" {
		return ""
	}
	branch := l.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	name := strings.TrimPrefix(strings.ReplaceAll(filename, `\`, "/"), "/")
	return strings.TrimRight(l.RepoURL, "/") + "/blob/" + branch + "/" + name
}

// Group parses raw and returns one Citation per file in order of first
// appearance. An empty or header-less context yields nil.
func Group(raw string, linker Linker) []Citation {
	snippets := rag.Parse(raw)
	if len(snippets) == 0 {
		return nil
	}

	type group struct {
		semantic bool
		parts    []string
	}
	var order []string
	groups := make(map[string]*group)

	for _, s := range snippets {
		name := strings.TrimSpace(s.Filename)
		g, ok := groups[name]
		if !ok {
			g = &group{}
			groups[name] = g
			order = append(order, name)
		}
		if strings.Contains(strings.ToLower(string(s.Source)), string(rag.SourceSemantic)) {
			g.semantic = true
		}
		g.parts = append(g.parts, s.Text)
	}

	out := make([]Citation, 0, len(order))
	for _, name := range order {
		g := groups[name]
		label := rag.SourceKeyword.Label()
		if g.semantic {
			label = rag.SourceSemantic.Label()
		}
		out = append(out, Citation{
			Filename: name,
			Label:    label,
			Content:  strings.Join(g.parts, Separator),
			Snippets: len(g.parts),
			Language: Language(name),
			URL:      linker.URL(name),
		})
	}
	return out
}

// languages maps file extensions to code-fence languages.
var languages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cs":    "csharp",
	".sh":    "bash",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".proto": "protobuf",
}

// Language returns the code-fence language for filename, or "text" when the
// extension is unknown.
func Language(filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if lang, ok := languages[ext]; ok {
		return lang
	}
	return "text"
}

// NormalizeGitHubURL reduces a GitHub URL to its repository root
// (scheme://github.com/owner/repo). Deeper paths such as /tree/main/docs are
// dropped, as is a trailing ".git". Non-GitHub URLs are returned unchanged.
func NormalizeGitHubURL(raw string) string {
	if !strings.Contains(raw, "github.com") {
		return raw
	}
	parts := strings.Split(strings.TrimRight(raw, "/"), "/")
	if len(parts) < 5 {
		return raw
	}
	root := strings.Join(parts[:5], "/")
	return strings.TrimSuffix(root, ".git")
}
