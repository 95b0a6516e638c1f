package sync

import (
	"path/filepath"
	"strings"
)

// ExclusionSet holds path-prefix patterns. A relative path is excluded when it
// equals a pattern or lives under one. The same set is applied while scanning,
// archiving and filtering the remote inventory; if those three disagree the
// digest comparison stops meaning anything.
type ExclusionSet struct {
	patterns []string
}

func NewExclusionSet(patterns ...string) *ExclusionSet {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p == "" || p == "." {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return &ExclusionSet{patterns: cleaned}
}

// Match reports whether the slash-separated relative path is excluded.
func (e *ExclusionSet) Match(relPath string) bool {
	if e == nil {
		return false
	}
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	for _, p := range e.patterns {
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
	}
	return false
}

func (e *ExclusionSet) Patterns() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.patterns...)
}
