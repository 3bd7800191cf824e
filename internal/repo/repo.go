// Package repo inspects the checked-out repository on disk: a shallow file
// tree and file statistics for the overview, and the README text that feeds
// the repository summary.
package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultTreeDepth is the number of directory levels shown in the tree.
	DefaultTreeDepth = 2
	// DefaultFilesPerDir caps the files listed under each directory.
	DefaultFilesPerDir = 5
)

// readmeNames are tried in order by ReadREADME.
var readmeNames = []string{"README.md", "readme.md", "README.MD", "Readme.md", "README.rst", "README.txt", "README"}

// Details summarizes a repository checkout.
type Details struct {
	// TotalFiles counts every regular file outside .git.
	TotalFiles int `json:"total_files"`
	// Extensions counts files per extension (".go", ".py"); files without
	// an extension are not counted here.
	Extensions map[string]int `json:"extensions"`
	// Tree is the indented listing of the top levels.
	Tree string `json:"tree"`
}

// ExtensionCount is one row of Details.TopExtensions.
type ExtensionCount struct {
	Extension string `json:"extension"`
	Files     int    `json:"files"`
}

// TopExtensions returns the n most common extensions, most common first and
// ties broken alphabetically. A non-positive n returns all of them.
func (d Details) TopExtensions(n int) []ExtensionCount {
	out := make([]ExtensionCount, 0, len(d.Extensions))
	for ext, c := range d.Extensions {
		out = append(out, ExtensionCount{Extension: ext, Files: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Files != out[j].Files {
			return out[i].Files > out[j].Files
		}
		return out[i].Extension < out[j].Extension
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Options tunes Scan. Zero values select the defaults.
type Options struct {
	// TreeDepth is the number of directory levels listed in the tree.
	TreeDepth int
	// FilesPerDir caps the files listed under each directory in the tree.
	FilesPerDir int
}

// Scan walks dir and returns its statistics and shallow tree. Directories
// named .git are skipped entirely; unreadable subdirectories are skipped.
func Scan(dir string, opts Options) (Details, error) {
	if opts.TreeDepth <= 0 {
		opts.TreeDepth = DefaultTreeDepth
	}
	if opts.FilesPerDir <= 0 {
		opts.FilesPerDir = DefaultFilesPerDir
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Details{}, fmt.Errorf("repo: %w", err)
	}
	if !info.IsDir() {
		return Details{}, fmt.Errorf("repo: %s is not a directory", dir)
	}

	s := &scanner{opts: opts, details: Details{Extensions: make(map[string]int)}}
	if err := s.walk(filepath.Clean(dir), 0); err != nil {
		return Details{}, err
	}
	s.details.Tree = strings.Join(s.lines, "\n")
	return s.details, nil
}

// scanner accumulates Scan results.
type scanner struct {
	opts    Options
	details Details
	lines   []string
}

// walk lists dir at the given level: the directory line and its first files
// while within the tree depth, then every subdirectory.
func (s *scanner) walk(dir string, level int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if level == 0 {
			return fmt.Errorf("repo: read %s: %w", dir, err)
		}
		return nil
	}

	var files []string
	var subdirs []string
	for _, e := range entries {
		switch {
		case e.IsDir():
			if e.Name() != ".git" {
				subdirs = append(subdirs, e.Name())
			}
		case e.Type().IsRegular():
			files = append(files, e.Name())
		}
	}

	if level < s.opts.TreeDepth {
		indent := strings.Repeat(" ", 4*level)
		s.lines = append(s.lines, indent+filepath.Base(dir)+"/")
		for i, f := range files {
			if i == s.opts.FilesPerDir {
				break
			}
			s.lines = append(s.lines, indent+"    "+f)
		}
	}

	for _, f := range files {
		s.details.TotalFiles++
		if ext := filepath.Ext(f); ext != "" {
			s.details.Extensions[ext]++
		}
	}

	for _, d := range subdirs {
		if err := s.walk(filepath.Join(dir, d), level+1); err != nil {
			return err
		}
	}
	return nil
}

// ReadREADME returns the README at the root of dir, or "" if there is none.
// Invalid UTF-8 is replaced rather than rejected.
func ReadREADME(dir string) (string, error) {
	for _, name := range readmeNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return strings.ToValidUTF8(string(data), "�"), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("repo: read %s: %w", name, err)
		}
	}
	return "", nil
}
