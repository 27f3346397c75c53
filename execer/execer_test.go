package execer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/magdyamr542/autoreload/config"
	"github.com/magdyamr542/autoreload/runnable"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX tools")
	}
}

func command(dir, line string) config.CommandWithDir {
	return config.CommandWithDir{Command: line, BaseDir: dir}
}

func TestExecRunsBeforeMainAndAfter(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()

	c := config.Config{
		Before:  []config.CommandWithDir{command(dir, "touch before")},
		Command: command(dir, "touch main"),
		After:   []config.CommandWithDir{command(dir, "touch after")},
	}
	execution, err := New(c, nil).Exec(context.Background())
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if err := execution.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	for _, name := range []string{"before", "main", "after"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to have run: %v", name, err)
		}
	}
}

func TestExecPropagatesExitCode(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()

	c := config.Config{Command: command(dir, "false")}
	execution, err := New(c, nil).Exec(context.Background())
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if code := runnable.ExitCode(execution.Wait()); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestExecBeforeFailureStopsStart(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()

	c := config.Config{
		Before:  []config.CommandWithDir{command(dir, "false")},
		Command: command(dir, "touch main"),
	}
	if _, err := New(c, nil).Exec(context.Background()); err == nil {
		t.Fatal("expected before failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "main")); err == nil {
		t.Fatal("main command must not run after a failed before command")
	}
}

func TestExecutionStopInterruptsAndRunsAfterOnce(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()

	c := config.Config{
		Command:         command(dir, "sleep 30"),
		After:           []config.CommandWithDir{command(dir, "mkdir after")},
		ShutdownTimeout: 2 * time.Second,
	}
	execution, err := New(c, nil).Exec(context.Background())
	if err != nil {
		t.Fatalf("exec: %v", err)
	}

	start := time.Now()
	if err := execution.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("expected sleep to be interrupted")
	}
	select {
	case <-execution.done:
	default:
		t.Fatal("expected main command to be done")
	}

	// A second mkdir would fail, so the after commands must not run again.
	if err := execution.Wait(); err == nil {
		t.Fatal("expected wait to report the interrupted command")
	}
	if err := execution.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestCommandEnvDropsRunMain(t *testing.T) {
	env := commandEnv([]string{"RUN_MAIN=true", "HOME=/root"}, map[string]string{"PORT": "80"})
	joined := strings.Join(env, " ")
	if strings.Contains(joined, "RUN_MAIN") {
		t.Fatalf("expected RUN_MAIN to be dropped, got %v", env)
	}
	if !strings.Contains(joined, "PORT=80") || !strings.Contains(joined, "HOME=/root") {
		t.Fatalf("unexpected env %v", env)
	}
}
