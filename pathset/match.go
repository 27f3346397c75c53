package pathset

import (
	"github.com/gobwas/glob"
)

// Matcher matches whole path strings against shell-style glob patterns. A "*"
// also matches path separators, so "*/.git/*" matches any path inside a .git
// directory.
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewMatcher compiles patterns. A pattern that fails to compile is compared
// literally.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{
		patterns: make([]string, 0, len(patterns)),
		globs:    make([]glob.Glob, 0, len(patterns)),
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			g = nil
		}
		m.patterns = append(m.patterns, p)
		m.globs = append(m.globs, g)
	}
	return m
}

// Match reports whether path matches any pattern.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for i, g := range m.globs {
		if g == nil {
			if m.patterns[i] == path {
				return true
			}
			continue
		}
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}
