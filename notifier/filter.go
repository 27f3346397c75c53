package notifier

import (
	"path/filepath"
	"strings"

	"github.com/magdyamr542/autoreload/pathset"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIncludePatterns are the files that trigger a reload when no include
// patterns are configured.
var DefaultIncludePatterns = []string{"*.go", "*/go.mod", "*/go.sum"}

// DefaultIgnorePatterns are always applied on top of the configured excludes.
var DefaultIgnorePatterns = []string{"*/.git/*", "*/.hg/*", "*/.cache/*"}

// FilterOptions configures a Filter.
type FilterOptions struct {
	// Include globs. Empty means DefaultIncludePatterns.
	Include []string
	// Extra files that are not directories are included as literal patterns.
	ExtraFiles []string
	// Exclude globs, added to DefaultIgnorePatterns.
	Exclude []string
	// Lines in gitignore syntax.
	IgnoreLines []string
	// Directory the ignore lines are relative to. Empty matches absolute paths.
	IgnoreBase string
}

// Filter decides which event paths count as a change.
type Filter struct {
	include    *pathset.Matcher
	ignore     *pathset.Matcher
	lines      *ignore.GitIgnore
	ignoreBase string
}

func NewFilter(options FilterOptions) *Filter {
	include := options.Include
	if len(include) == 0 {
		include = DefaultIncludePatterns
	}
	patterns := append([]string{}, include...)
	for _, f := range options.ExtraFiles {
		if isDir(f) {
			continue
		}
		patterns = append(patterns, f)
	}

	f := &Filter{
		include:    pathset.NewMatcher(patterns),
		ignore:     pathset.NewMatcher(append(append([]string{}, DefaultIgnorePatterns...), options.Exclude...)),
		ignoreBase: options.IgnoreBase,
	}
	if len(options.IgnoreLines) > 0 {
		f.lines = ignore.CompileIgnoreLines(options.IgnoreLines...)
	}
	return f
}

// Accept reports whether a change of path should request a reload.
func (f *Filter) Accept(path string) bool {
	if !f.include.Match(path) {
		return false
	}
	if f.ignore.Match(path) {
		return false
	}
	return !f.ignoredByLines(path)
}

// SkipDir reports whether a directory should not be watched at all.
func (f *Filter) SkipDir(path string) bool {
	sep := string(filepath.Separator)
	if f.ignore.Match(path) || f.ignore.Match(strings.TrimSuffix(path, sep)+sep) {
		return true
	}
	return f.ignoredByLines(strings.TrimSuffix(path, sep) + sep)
}

func (f *Filter) ignoredByLines(path string) bool {
	if f.lines == nil {
		return false
	}
	if f.ignoreBase == "" {
		return f.lines.MatchesPath(path)
	}
	rel, err := filepath.Rel(f.ignoreBase, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	if strings.HasSuffix(path, string(filepath.Separator)) {
		rel += "/"
	}
	return f.lines.MatchesPath(filepath.ToSlash(rel))
}
