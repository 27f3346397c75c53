// Package pathset derives the directories worth watching for a running program.
//
// Candidates come from the program's search path, explicit extra files and the
// on-disk locations of its loaded modules. Excluded candidates are dropped and
// the rest is compressed to the deepest directories of a path-segment trie.
package pathset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ModuleProvider returns a snapshot of the file locations of the currently loaded
// modules. Locations do not have to exist; each one is walked upward until an
// existing file is found.
type ModuleProvider func() []string

// SearchPathProvider returns the module search path entries of the program.
type SearchPathProvider func() []string

// Options configures a Builder.
type Options struct {
	// Files that are always part of the candidate set.
	ExtraFiles []string
	// Glob patterns matched against each candidate directory.
	ExcludePatterns []string
	// Defaults to the working directory.
	SearchPath SearchPathProvider
	// Defaults to the running executable, unless it lies below a search path entry.
	Modules ModuleProvider
}

// Builder computes the set of watch roots. It is cheap to call Build repeatedly.
type Builder struct {
	extraFiles []string
	exclude    *Matcher
	searchPath SearchPathProvider
	modules    ModuleProvider
}

func New(options Options) *Builder {
	extra := make([]string, 0, len(options.ExtraFiles))
	for _, f := range options.ExtraFiles {
		extra = append(extra, absPath(f))
	}

	searchPath := options.SearchPath
	if searchPath == nil {
		searchPath = WorkingDir
	}

	b := &Builder{
		extraFiles: extra,
		exclude:    NewMatcher(options.ExcludePatterns),
		searchPath: searchPath,
		modules:    options.Modules,
	}
	if b.modules == nil {
		b.modules = b.executableOutsideSearchPath
	}
	return b
}

// executableOutsideSearchPath reports the running binary unless a search path
// entry already covers it, so that ./bin/app does not narrow the watch root
// from . to ./bin.
func (b *Builder) executableOutsideSearchPath() []string {
	var out []string
	for _, bin := range executable() {
		if !b.underSearchPath(bin) {
			out = append(out, bin)
		}
	}
	return out
}

func (b *Builder) underSearchPath(name string) bool {
	name = absPath(name)
	for _, entry := range b.searchPath() {
		if within(absPath(entry), name) {
			return true
		}
	}
	return false
}

// ExtraFiles returns the absolute extra files.
func (b *Builder) ExtraFiles() []string {
	out := make([]string, len(b.extraFiles))
	copy(out, b.extraFiles)
	return out
}

// Build returns the sorted, absolute directories that have to be watched recursively.
func (b *Builder) Build() []string {
	dirs := make(map[string]struct{})

	add := func(name string) {
		name = absPath(name)
		if isFile(name) {
			name = filepath.Dir(name)
		}
		dirs[name] = struct{}{}
	}
	for _, name := range b.searchPath() {
		add(name)
	}
	for _, name := range b.extraFiles {
		add(name)
	}

	for _, name := range b.modules() {
		file, ok := ModuleFile(name)
		if !ok {
			continue
		}
		dirs[filepath.Dir(file)] = struct{}{}
	}

	candidates := make([]string, 0, len(dirs))
	for dir := range dirs {
		if b.exclude.Match(dir) {
			continue
		}
		candidates = append(candidates, dir)
	}

	return FindCommonRoots(candidates)
}

// ModuleFile walks upward from a module location until it hits an existing file.
// It reports false when no ancestor is a file.
func ModuleFile(name string) (string, bool) {
	name = absPath(name)
	for !isFile(name) {
		parent := filepath.Dir(name)
		if parent == name {
			return "", false
		}
		name = parent
	}
	return name, true
}

// FindCommonRoots compresses paths to the leaves of a trie built over their
// segments. A path is kept only when no other path lies below it, so given
// /a, /a/b and /c the result is /a/b and /c.
func FindCommonRoots(paths []string) []string {
	root := trieNode{}
	for _, p := range paths {
		node := root
		for _, segment := range segments(p) {
			child, ok := node[segment]
			if !ok {
				child = trieNode{}
				node[segment] = child
			}
			node = child
		}
	}

	out := []string{}
	var walk func(node trieNode, prefix []string)
	walk = func(node trieNode, prefix []string) {
		if len(node) == 0 {
			if len(prefix) > 0 {
				out = append(out, filepath.Join(prefix...))
			}
			return
		}
		for segment, child := range node {
			next := make([]string, len(prefix), len(prefix)+1)
			copy(next, prefix)
			walk(child, append(next, segment))
		}
	}
	walk(root, nil)

	sort.Strings(out)
	return out
}

// Outermost returns the sorted, absolute paths that have no ancestor in paths.
// FindCommonRoots keeps the deepest paths; Outermost keeps the shallowest.
func Outermost(paths []string) []string {
	clean := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		p = absPath(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		clean = append(clean, p)
	}
	sort.Strings(clean)

	out := []string{}
	for _, p := range clean {
		covered := false
		for _, root := range out {
			if within(root, p) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}

// within reports whether name is root or lies below it.
func within(root, name string) bool {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

type trieNode map[string]trieNode

// segments splits a path into its volume/root element followed by its names.
func segments(p string) []string {
	clean := filepath.Clean(p)
	volume := filepath.VolumeName(clean)
	rest := clean[len(volume):]

	var out []string
	sep := string(filepath.Separator)
	if strings.HasPrefix(rest, sep) {
		out = append(out, volume+sep)
		rest = strings.TrimLeft(rest, sep)
	} else if volume != "" {
		out = append(out, volume)
	}

	for _, part := range strings.Split(rest, sep) {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}

// WorkingDir is the default search path.
func WorkingDir() []string {
	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}
	return []string{cwd}
}

var executable = Executable

// Executable is the default ModuleProvider. A compiled program has a single
// module on disk: its own binary.
func Executable() []string {
	bin := os.Args[0]
	if !filepath.IsAbs(bin) {
		var err error
		bin, err = os.Executable()
		if err != nil {
			return nil
		}
	}
	return []string{bin}
}

func absPath(name string) string {
	abs, err := filepath.Abs(name)
	if err != nil {
		return filepath.Clean(name)
	}
	return abs
}

// Stat errors count as "not a file".
func isFile(name string) bool {
	info, err := os.Stat(name)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
