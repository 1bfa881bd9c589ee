package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// ExclusionMatcher decides whether a relative path should be skipped.
//
// Patterns without a slash are matched against every path segment, so
// ".DS_Store" excludes the marker at any depth and "*.tmp" excludes any
// temporary file. Patterns with a slash are matched against the whole
// slash-separated path, with "*" stopping at separators and "**" crossing
// them.
type ExclusionMatcher struct {
	patterns []string
	segment  []glob.Glob
	path     []glob.Glob
}

// NewExclusionMatcher compiles the exclusion patterns
func NewExclusionMatcher(patterns []string) (*ExclusionMatcher, error) {
	em := &ExclusionMatcher{patterns: make([]string, 0, len(patterns))}

	for _, pattern := range patterns {
		pattern = NormalizePattern(pattern)
		if pattern == "" {
			continue
		}

		if strings.Contains(pattern, "/") {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid exclusion pattern %q: %w", pattern, err)
			}
			em.path = append(em.path, g)
		} else {
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid exclusion pattern %q: %w", pattern, err)
			}
			em.segment = append(em.segment, g)
		}
		em.patterns = append(em.patterns, pattern)
	}

	return em, nil
}

// Patterns returns the normalized patterns
func (em *ExclusionMatcher) Patterns() []string {
	return append([]string(nil), em.patterns...)
}

// IsExcluded checks if a relative path should be excluded
func (em *ExclusionMatcher) IsExcluded(path string) bool {
	path = NormalizePattern(path)
	if path == "" || path == "." {
		return false
	}

	for _, g := range em.path {
		if g.Match(path) {
			return true
		}
	}

	if len(em.segment) == 0 {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		for _, g := range em.segment {
			if g.Match(seg) {
				return true
			}
		}
	}
	return false
}

// NormalizePattern normalizes a file pattern or relative path
func NormalizePattern(pattern string) string {
	pattern = filepath.ToSlash(pattern)
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	pattern = strings.TrimPrefix(pattern, "./")
	pattern = strings.TrimSuffix(pattern, "/")
	return pattern
}

// DefaultExclusions returns the transient marker files operating systems
// drop into folders
func DefaultExclusions() []string {
	return []string{".DS_Store", "Thumbs.db"}
}
