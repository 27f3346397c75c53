// Package reloader restarts a program whenever its source files change.
//
// Call RunWithReloader from main. The first process becomes a supervisor that
// starts a copy of the program with RUN_MAIN=true and starts it again each time
// that copy exits with the reload code. The copy runs the main function next to
// a loop that watches the program's directories:
//
//	func main() {
//	    reloader.RunWithReloader(serve,
//	        reloader.WithExtraFiles("config.yaml"),
//	        reloader.WithExcludePatterns("*/testdata/*"),
//	    )
//	}
//
// The exit code 3 is reserved for reload requests.
package reloader

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/autoreload/pathset"
	"github.com/magdyamr542/autoreload/runnable"
	"github.com/magdyamr542/autoreload/supervisor"
	"github.com/magdyamr542/autoreload/terminal"
)

var osExit = os.Exit

// MainFunc is the application. The process exits when it returns: with 0 for a
// nil error, the error's ExitCode() when it has one, and 1 otherwise.
type MainFunc func() error

// Option configures RunWithReloader.
type Option func(*settings)

type settings struct {
	loop            Options
	invocation      func() ([]string, error)
	shutdownTimeout time.Duration
}

// WithLogger sets the logger. The default logs INFO and above to stderr.
func WithLogger(logger hclog.Logger) Option {
	return func(s *settings) { s.loop.Logger = logger }
}

// WithExtraFiles adds files that are always watched. Files that are not
// directories are also accepted as change triggers.
func WithExtraFiles(files ...string) Option {
	return func(s *settings) { s.loop.ExtraFiles = append(s.loop.ExtraFiles, files...) }
}

// WithExcludePatterns adds globs that never trigger a reload.
func WithExcludePatterns(patterns ...string) Option {
	return func(s *settings) { s.loop.ExcludePatterns = append(s.loop.ExcludePatterns, patterns...) }
}

// WithIncludePatterns replaces the default "*.go" style include globs.
func WithIncludePatterns(patterns ...string) Option {
	return func(s *settings) { s.loop.IncludePatterns = append(s.loop.IncludePatterns, patterns...) }
}

// WithIgnoreLines adds gitignore-syntax lines relative to base.
func WithIgnoreLines(base string, lines ...string) Option {
	return func(s *settings) {
		s.loop.IgnoreBase = base
		s.loop.IgnoreLines = append(s.loop.IgnoreLines, lines...)
	}
}

// WithInterval sets the reconciliation interval.
func WithInterval(interval time.Duration) Option {
	return func(s *settings) { s.loop.Interval = interval }
}

// WithSearchPath replaces the working directory as search path.
func WithSearchPath(provider pathset.SearchPathProvider) Option {
	return func(s *settings) { s.loop.SearchPath = provider }
}

// WithModules replaces the running executable as module provider.
func WithModules(provider pathset.ModuleProvider) Option {
	return func(s *settings) { s.loop.Modules = provider }
}

// WithOnExit registers a function run in the child right before it exits.
func WithOnExit(fn func()) Option {
	return func(s *settings) { s.loop.OnExit = append(s.loop.OnExit, fn) }
}

// WithInvocation sets how the child is started. Defaults to the running binary
// with its arguments.
func WithInvocation(invocation supervisor.Invocation) Option {
	return func(s *settings) { s.invocation = invocation.Args }
}

// WithShutdownTimeout sets how long the supervisor waits for a child it stops.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *settings) { s.shutdownTimeout = timeout }
}

func newSettings(options []Option) settings {
	var s settings
	for _, option := range options {
		option(&s)
	}
	if s.loop.Logger == nil {
		s.loop.Logger = hclog.New(&hclog.LoggerOptions{
			Name:   "reloader",
			Level:  hclog.Info,
			Output: os.Stderr,
			Color:  hclog.AutoColor,
		})
	}
	return s
}

// RunWithReloader runs main in a supervised child process that is restarted on
// every relevant file change. It does not return.
func RunWithReloader(main MainFunc, options ...Option) {
	s := newSettings(options)
	if supervisor.IsChild() {
		runChild(main, s)
		return
	}
	osExit(runSupervisor(s))
}

func runSupervisor(s settings) int {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	sup := supervisor.New(supervisor.Options{
		Logger:          s.loop.Logger.Named("supervisor"),
		Args:            s.invocation,
		Signals:         signals,
		ShutdownTimeout: s.shutdownTimeout,
	})
	code, err := sup.Run(context.Background())
	if err != nil {
		s.loop.Logger.Error("Can't run the program", "error", err)
		return 1
	}
	return code
}

func runChild(main MainFunc, s settings) {
	logger := s.loop.Logger
	if err := terminal.EnsureEchoOn(os.Stdin); err != nil {
		logger.Debug("Can't enable terminal echo", "error", err)
	}

	loop, err := NewLoop(s.loop)
	if err != nil {
		logger.Error("Can't start the reloader", "error", err)
		exit := s.loop.Exit
		if exit == nil {
			exit = osExit
		}
		exit(1)
		return
	}

	// Interrupts and termination end the child cleanly.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Debug("Got signal to stop", "signal", sig)
		loop.Exit(0)
	}()

	go func() {
		loop.Exit(applicationCode(logger, main()))
	}()

	loop.Run()
}

func applicationCode(logger hclog.Logger, err error) int {
	code := runnable.ExitCode(err)
	if err != nil {
		logger.Debug("Application exited", "error", err, "code", code)
	}
	if code == supervisor.ReloadExitCode {
		logger.Warn("Application exited with the reserved reload code", "code", code)
	}
	return code
}
