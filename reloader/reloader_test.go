package reloader

import (
	"reflect"
	"testing"
	"time"

	"github.com/magdyamr542/autoreload/supervisor"
)

func TestOptionsAccumulate(t *testing.T) {
	s := newSettings([]Option{
		WithExtraFiles("a.yaml"),
		WithExtraFiles("b.yaml"),
		WithExcludePatterns("*/gen/*"),
		WithIncludePatterns("*.tmpl"),
		WithIgnoreLines("/project", "build/"),
		WithInterval(250 * time.Millisecond),
		WithShutdownTimeout(time.Second),
		WithOnExit(func() {}),
		WithInvocation(supervisor.Invocation{Argv: []string{"/bin/app", "-v"}}),
	})

	if !reflect.DeepEqual(s.loop.ExtraFiles, []string{"a.yaml", "b.yaml"}) {
		t.Fatalf("unexpected extra files %v", s.loop.ExtraFiles)
	}
	if !reflect.DeepEqual(s.loop.ExcludePatterns, []string{"*/gen/*"}) {
		t.Fatalf("unexpected excludes %v", s.loop.ExcludePatterns)
	}
	if !reflect.DeepEqual(s.loop.IncludePatterns, []string{"*.tmpl"}) {
		t.Fatalf("unexpected includes %v", s.loop.IncludePatterns)
	}
	if s.loop.IgnoreBase != "/project" || len(s.loop.IgnoreLines) != 1 {
		t.Fatalf("unexpected ignore settings %q %v", s.loop.IgnoreBase, s.loop.IgnoreLines)
	}
	if s.loop.Interval != 250*time.Millisecond || s.shutdownTimeout != time.Second {
		t.Fatalf("unexpected durations %v %v", s.loop.Interval, s.shutdownTimeout)
	}
	if len(s.loop.OnExit) != 1 {
		t.Fatalf("expected one exit hook, got %d", len(s.loop.OnExit))
	}
	if s.loop.Logger == nil {
		t.Fatal("expected a default logger")
	}

	args, err := s.invocation()
	if err != nil {
		t.Fatalf("invocation: %v", err)
	}
	if !reflect.DeepEqual(args, []string{"/bin/app", "-v"}) {
		t.Fatalf("unexpected invocation %v", args)
	}
}
