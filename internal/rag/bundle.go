package rag

import (
	"fmt"
	"regexp"
	"strings"
)

// Bundle is the merged, deduplicated retrieval output for one query.
// No two entries share identical Text, and semantic entries precede keyword
// entries.
type Bundle struct {
	// Entries is the ordered list of unique hits.
	Entries []Result
}

// Merge combines semantic and keyword results into a Bundle. Entries are
// deduplicated on exact text; the first occurrence wins, so a chunk seen
// semantically keeps its semantic tag and filename. Whitespace variants of
// the same text are kept as distinct entries.
func Merge(semantic, keyword []Result) Bundle {
	seen := make(map[string]struct{}, len(semantic)+len(keyword))
	entries := make([]Result, 0, len(semantic)+len(keyword))

	for _, group := range [][]Result{semantic, keyword} {
		for _, r := range group {
			if _, dup := seen[r.Text]; dup {
				continue
			}
			seen[r.Text] = struct{}{}
			entries = append(entries, r)
		}
	}

	return Bundle{Entries: entries}
}

// Len returns the number of entries in the bundle.
func (b Bundle) Len() int { return len(b.Entries) }

// Text serializes the bundle for prompt inclusion. See Format.
func (b Bundle) Text() string { return Format(b.Entries) }

// Format renders results as a sequence of provenance-headed blocks:
//
//	--- FILE: <filename> (Match: <semantic|keyword>) ---
//	<text>
//
// The header shape is parsed back by Parse and by any presentation layer, so
// it must not change. An empty slice formats to "".
func Format(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "\n--- FILE: %s (Match: %s) ---\n%s\n", r.Filename, r.Source, r.Text)
	}
	return b.String()
}

// headerPattern matches one provenance header produced by Format.
var headerPattern = regexp.MustCompile(`--- FILE: (.*?) \(Match: (.*?)\) ---\n`)

// Snippet is one block recovered from a formatted context string.
type Snippet struct {
	// Filename is the file named in the block header.
	Filename string `json:"filename"`
	// Source is the provenance named in the block header.
	Source Source `json:"source"`
	// Text is the block body with surrounding whitespace trimmed.
	Text string `json:"text"`
}

// Parse splits a context string produced by Format back into snippets.
// Text before the first header is ignored.
func Parse(raw string) []Snippet {
	matches := headerPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	snippets := make([]Snippet, 0, len(matches))
	for i, m := range matches {
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		snippets = append(snippets, Snippet{
			Filename: raw[m[2]:m[3]],
			Source:   Source(strings.ToLower(raw[m[4]:m[5]])),
			Text:     strings.TrimSpace(raw[m[1]:end]),
		})
	}
	return snippets
}
