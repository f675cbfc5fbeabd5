package sessionparser

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PathFilter decides which paths discovery skips.
type PathFilter interface {
	ShouldIgnore(path string) bool
}

// IsLogFile reports whether path names a JSONL session log.
func IsLogFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}

// Discover returns the session logs under root in sorted order. A root that
// is itself a .jsonl file yields just that file. Paths matched by filter
// (which may be nil) are skipped, directories included.
func Discover(root string, filter PathFilter) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover logs in %s: %w", root, err)
	}
	if !info.IsDir() {
		if IsLogFile(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped rather than failing the walk.
			return nil
		}
		if path != root && filter != nil && filter.ShouldIgnore(relPath(root, path)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsLogFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return files, fmt.Errorf("discover logs in %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// relPath returns path relative to root so that ignore patterns never match
// components of the root itself.
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
