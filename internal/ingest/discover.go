package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxFileSize is the largest source file loaded (8 MB).
const DefaultMaxFileSize int64 = 8 << 20

// skipDirs are directory names never descended into.
var skipDirs = []string{".git", ".sejmofil", "node_modules", ".idea", ".vscode"}

// Format is the encoding of a source file.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// SourceFile is a discovered file eligible for loading.
type SourceFile struct {
	Path    string // Absolute path on disk.
	RelPath string // Slash-separated path relative to the source root.
	Format  Format
	Size    int64
}

// DetectFormat maps a file name to its Format by extension.
func DetectFormat(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	}
	return "", false
}

// Discover walks root and returns the loadable files matching include and
// not matching exclude, sorted by relative path.
func Discover(root string, include, exclude []string) ([]SourceFile, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve root: %w", err)
	}

	var files []SourceFile
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == abs {
				return walkErr
			}
			// Skip entries we cannot read instead of aborting.
			return nil
		}
		if d.IsDir() {
			if path != abs && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		format, ok := DetectFormat(d.Name())
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if len(include) > 0 && !matchesAny(rel, include) {
			return nil
		}
		if matchesAny(rel, exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > DefaultMaxFileSize {
			return nil
		}

		files = append(files, SourceFile{Path: path, RelPath: rel, Format: format, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func shouldSkipDir(name string) bool {
	for _, s := range skipDirs {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	return false
}

// matchesAny reports whether rel matches one of patterns, either as a
// whole path (with ** support) or by base name.
func matchesAny(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}
