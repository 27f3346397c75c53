package pathset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func noModules() []string { return nil }

func TestFindCommonRoots(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "deeper candidate wins",
			paths: []string{"/a", "/a/b", "/c"},
			want:  []string{"/a/b", "/c"},
		},
		{
			name:  "siblings are kept",
			paths: []string{"/a/b", "/a/c", "/a"},
			want:  []string{"/a/b", "/a/c"},
		},
		{
			name:  "duplicates collapse",
			paths: []string{"/srv/app", "/srv/app/", "/srv/app/."},
			want:  []string{"/srv/app"},
		},
		{
			name:  "root alone",
			paths: []string{"/"},
			want:  []string{"/"},
		},
		{
			name:  "root with child",
			paths: []string{"/", "/usr"},
			want:  []string{"/usr"},
		},
		{
			name:  "empty",
			paths: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := make([]string, 0, len(tt.paths))
			for _, p := range tt.paths {
				paths = append(paths, filepath.FromSlash(p))
			}
			want := make([]string, 0, len(tt.want))
			for _, p := range tt.want {
				want = append(want, filepath.FromSlash(p))
			}

			got := FindCommonRoots(paths)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestModuleFileWalksUpToExistingFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.jar")
	if err := os.WriteFile(archive, []byte("jar"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	got, ok := ModuleFile(filepath.Join(archive, "pkg", "mod.go"))
	if !ok {
		t.Fatal("expected to find an existing ancestor file")
	}
	if got != archive {
		t.Fatalf("expected %q, got %q", archive, got)
	}
}

func TestModuleFileWithoutFileAncestor(t *testing.T) {
	dir := t.TempDir()
	if _, ok := ModuleFile(filepath.Join(dir, "missing", "mod.go")); ok {
		t.Fatal("expected no file ancestor")
	}
}

func TestBuildUsesSearchPathExtraFilesAndModules(t *testing.T) {
	base := t.TempDir()
	search := filepath.Join(base, "search")
	extraDir := filepath.Join(base, "conf")
	moduleDir := filepath.Join(base, "lib", "pkg")
	for _, dir := range []string{search, extraDir, moduleDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	extraFile := filepath.Join(extraDir, "app.yaml")
	moduleFile := filepath.Join(moduleDir, "mod.go")
	for _, f := range []string{extraFile, moduleFile} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}

	builder := New(Options{
		ExtraFiles: []string{extraFile},
		SearchPath: func() []string { return []string{search} },
		Modules: func() []string {
			return []string{moduleFile, filepath.Join(base, "nowhere", "virtual.go")}
		},
	})

	got := builder.Build()
	want := []string{extraDir, moduleDir, search}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildExcludedLeafNeverAppears(t *testing.T) {
	base := t.TempDir()
	keep := filepath.Join(base, "keep")
	drop := filepath.Join(base, "keep", "generated")

	builder := New(Options{
		ExcludePatterns: []string{"*/generated"},
		SearchPath:      func() []string { return []string{keep, drop} },
		Modules:         noModules,
	})

	got := builder.Build()
	want := []string{keep}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildExcludeMatchesDirectoryOnly(t *testing.T) {
	base := t.TempDir()
	app := filepath.Join(base, "app")

	// The pattern targets children of the directory, not the directory string
	// itself, so the directory stays.
	builder := New(Options{
		ExcludePatterns: []string{filepath.Join(app, "*")},
		SearchPath:      func() []string { return []string{app} },
		Modules:         noModules,
	})

	got := builder.Build()
	if !reflect.DeepEqual(got, []string{app}) {
		t.Fatalf("expected %v, got %v", []string{app}, got)
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher([]string{"*.go", "*/.git/*", ""})

	tests := []struct {
		path string
		want bool
	}{
		{"/src/main.go", true},
		{"/src/pkg/deep/file.go", true},
		{"/src/.git/HEAD", true},
		{"/src/README.md", false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if m.Len() != 2 {
		t.Fatalf("expected empty pattern to be dropped, got %d patterns", m.Len())
	}
}

func TestBuildDefaultModulesSkipExecutableUnderSearchPath(t *testing.T) {
	base := t.TempDir()
	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	bin := filepath.Join(binDir, "app")
	if err := os.WriteFile(bin, []byte("bin"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	saved := executable
	executable = func() []string { return []string{bin} }
	t.Cleanup(func() { executable = saved })

	got := New(Options{SearchPath: func() []string { return []string{base} }}).Build()
	if !reflect.DeepEqual(got, []string{base}) {
		t.Fatalf("expected the search path to stay the root, got %v", got)
	}

	other := t.TempDir()
	got = New(Options{SearchPath: func() []string { return []string{other} }}).Build()
	want := FindCommonRoots([]string{other, binDir})
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v for a binary outside the search path, got %v", want, got)
	}
}

func TestOutermost(t *testing.T) {
	if !filepath.IsAbs(filepath.FromSlash("/src")) {
		t.Skip("rooted paths are not absolute on this platform")
	}

	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "parent covers child",
			paths: []string{"/src/server", "/src"},
			want:  []string{"/src"},
		},
		{
			name:  "similar prefixes stay apart",
			paths: []string{"/src/a", "/src/a-b", "/src/a/b"},
			want:  []string{"/src/a", "/src/a-b"},
		},
		{
			name:  "duplicates collapse",
			paths: []string{"/srv", "/srv/", "/etc"},
			want:  []string{"/etc", "/srv"},
		},
		{
			name:  "empty",
			paths: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := make([]string, 0, len(tt.paths))
			for _, p := range tt.paths {
				paths = append(paths, filepath.FromSlash(p))
			}
			want := make([]string, 0, len(tt.want))
			for _, p := range tt.want {
				want = append(want, filepath.FromSlash(p))
			}

			got := Outermost(paths)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
		})
	}
}
