package reloader

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/autoreload/events"
	"github.com/magdyamr542/autoreload/notifier"
	"github.com/magdyamr542/autoreload/pathset"
	"github.com/magdyamr542/autoreload/reconciler"
	"github.com/magdyamr542/autoreload/supervisor"
)

// DefaultInterval is the pause between two reconciliation cycles.
const DefaultInterval = time.Second

// State is the state of a Loop.
type State int32

const (
	Running State = iota
	ReloadPending
	Exiting
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case ReloadPending:
		return "RELOAD_PENDING"
	case Exiting:
		return "EXITING"
	default:
		return "UNKNOWN"
	}
}

// Reconciler refreshes the set of watch subscriptions.
type Reconciler interface {
	Reconcile()
	Close()
}

// Watcher delivers filesystem events for the active subscriptions.
type Watcher interface {
	Start(ctx context.Context)
	ExpandPending()
	Close() error
}

// Options configures a Loop.
type Options struct {
	Logger hclog.Logger
	// Files that are always watched.
	ExtraFiles []string
	// Globs for directories and files that never trigger a reload.
	ExcludePatterns []string
	// Globs for files that trigger a reload. Empty means notifier.DefaultIncludePatterns.
	IncludePatterns []string
	// Gitignore-syntax lines, relative to IgnoreBase when it is set.
	IgnoreLines []string
	IgnoreBase  string
	// Defaults to DefaultInterval.
	Interval   time.Duration
	SearchPath pathset.SearchPathProvider
	Modules    pathset.ModuleProvider
	// Run after the watches are released, right before the process exits.
	OnExit []func()
	// Terminates the process. Defaults to os.Exit.
	Exit func(code int)
}

// Loop reconciles the watch set on a fixed interval and ends the process once a
// reload has been requested.
type Loop struct {
	logger     hclog.Logger
	reconciler Reconciler
	watcher    Watcher
	flag       *events.Flag
	interval   time.Duration
	exit       func(code int)
	onExit     []func()

	exitOnce sync.Once
	exitCode int
	exitReq  chan struct{}
}

// NewLoop wires the path builder, notifier and reconciler into a Loop.
func NewLoop(options Options) (*Loop, error) {
	logger := options.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	flag := &events.Flag{}
	builder := pathset.New(pathset.Options{
		ExtraFiles:      options.ExtraFiles,
		ExcludePatterns: options.ExcludePatterns,
		SearchPath:      options.SearchPath,
		Modules:         options.Modules,
	})
	filter := notifier.NewFilter(notifier.FilterOptions{
		Include:     options.IncludePatterns,
		ExtraFiles:  builder.ExtraFiles(),
		Exclude:     options.ExcludePatterns,
		IgnoreLines: options.IgnoreLines,
		IgnoreBase:  options.IgnoreBase,
	})

	n, err := notifier.New(logger.Named("notifier"), filter, flag)
	if err != nil {
		return nil, err
	}

	subscribe := func(root string) (io.Closer, error) {
		sub, err := n.Schedule(root)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
	rec := reconciler.New(builder.Build, subscribe, logger.Named("reconciler"))

	return newLoop(logger, rec, n, flag, options.Interval, options.Exit, options.OnExit), nil
}

func newLoop(logger hclog.Logger, rec Reconciler, watcher Watcher, flag *events.Flag,
	interval time.Duration, exit func(int), onExit []func()) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if exit == nil {
		exit = osExit
	}
	return &Loop{
		logger:     logger,
		reconciler: rec,
		watcher:    watcher,
		flag:       flag,
		interval:   interval,
		exit:       exit,
		onExit:     onExit,
		exitReq:    make(chan struct{}),
	}
}

// State reports the current state of the loop.
func (l *Loop) State() State {
	select {
	case <-l.exitReq:
		return Exiting
	default:
	}
	if l.flag.IsSet() {
		return ReloadPending
	}
	return Running
}

// Exit asks the loop to end the process with code. Only the first request
// counts, so a reload requested after the application already exited does not
// change the exit code.
func (l *Loop) Exit(code int) {
	l.exitOnce.Do(func() {
		l.exitCode = code
		close(l.exitReq)
	})
}

// Run drives the loop on the calling goroutine. All subscription changes happen
// here. It returns only when the exit func does.
func (l *Loop) Run() {
	l.watcher.Start(context.Background())

	for !l.stopping() {
		l.reconciler.Reconcile()
		l.watcher.ExpandPending()

		timer := time.NewTimer(l.interval)
		select {
		case <-l.exitReq:
		case <-timer.C:
		}
		timer.Stop()
	}

	l.shutdown()
}

func (l *Loop) stopping() bool {
	select {
	case <-l.exitReq:
		return true
	default:
	}
	if l.flag.IsSet() {
		l.Exit(supervisor.ReloadExitCode)
		return true
	}
	return false
}

func (l *Loop) shutdown() {
	code := l.exitCode
	if code == supervisor.ReloadExitCode {
		if trigger, ok := l.flag.Trigger(); ok {
			l.logger.Info("Restarting due to change", "file", trigger.File)
		}
	}

	if err := l.watcher.Close(); err != nil {
		l.logger.Warn("Can't stop the files watcher", "error", err)
	}
	l.reconciler.Close()

	for _, hook := range l.onExit {
		hook()
	}

	l.exit(code)
}
