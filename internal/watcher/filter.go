package watcher

import (
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are skipped during log discovery and watching
// regardless of user configuration.
var defaultIgnorePatterns = []string{
	".git",
	"node_modules",
	".DS_Store",
	"*~",
	"*.tmp",
	"*.tmp.*",
	"*.partial",
}

// Filter matches paths against glob ignore patterns. Each path component is
// tested separately, so "node_modules" matches "a/node_modules/b.jsonl".
type Filter struct {
	patterns []string
}

// NewFilter merges the default patterns with extra, dropping duplicates and
// blank entries.
func NewFilter(extra []string) *Filter {
	seen := make(map[string]struct{}, len(defaultIgnorePatterns)+len(extra))
	var merged []string
	for _, group := range [][]string{defaultIgnorePatterns, extra} {
		for _, p := range group {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	return &Filter{patterns: merged}
}

// Patterns returns the effective pattern list.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// ShouldIgnore reports whether any component of path matches a pattern.
func (f *Filter) ShouldIgnore(path string) bool {
	for _, component := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		for _, pattern := range f.patterns {
			if matched, _ := filepath.Match(pattern, component); matched {
				return true
			}
		}
	}
	return false
}
