// Package supervisor runs the current program as a child process and starts it
// again every time the child asks to be reloaded.
//
// The child signals a reload by exiting with ReloadExitCode. Every other exit
// code ends supervision and is returned to the caller. Applications must not use
// ReloadExitCode as a genuine exit code.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/autoreload/runnable"
)

const (
	// ReloadExitCode is the exit code a supervised child uses to request a restart.
	ReloadExitCode = 3
	// EnvRunMain is set to "true" in the environment of the supervised child.
	EnvRunMain = "RUN_MAIN"

	defaultShutdownTimeout = 5 * time.Second
)

// IsChild reports whether the current process is the supervised instance.
func IsChild() bool {
	return os.Getenv(EnvRunMain) == "true"
}

// Options configures a Supervisor.
type Options struct {
	Logger hclog.Logger
	// Reconstructs the argument vector for every spawn. Defaults to
	// CurrentInvocation().Args.
	Args func() ([]string, error)
	// Defaults to runnable.NewCmd.
	Creator runnable.Creator
	// Base environment of the child. Defaults to os.Environ().
	Env []string
	// Interrupt and termination signals received by the supervisor. They stop
	// supervision with exit code 0.
	Signals <-chan os.Signal
	// How long a stopping child may take before it is killed.
	ShutdownTimeout time.Duration
}

// Supervisor spawns, waits for and respawns a single child at a time.
type Supervisor struct {
	logger  hclog.Logger
	args    func() ([]string, error)
	create  runnable.Creator
	env     []string
	signals <-chan os.Signal
	timeout time.Duration
}

func New(options Options) *Supervisor {
	s := Supervisor{
		logger:  options.Logger,
		args:    options.Args,
		create:  options.Creator,
		env:     options.Env,
		signals: options.Signals,
		timeout: options.ShutdownTimeout,
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	if s.args == nil {
		s.args = CurrentInvocation().Args
	}
	if s.create == nil {
		s.create = runnable.NewCmd
	}
	if s.env == nil {
		s.env = os.Environ()
	}
	if s.timeout <= 0 {
		s.timeout = defaultShutdownTimeout
	}
	return &s
}

// Run supervises until the child exits with a code other than ReloadExitCode,
// a signal arrives, or ctx is done. It returns the code the caller should exit
// with. An error means no child could be started.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	for {
		argv, err := s.args()
		if err != nil {
			return 1, fmt.Errorf("reconstruct arguments: %w", err)
		}

		code, stopped, err := s.runOnce(ctx, argv)
		if err != nil {
			return 1, err
		}
		if stopped {
			return 0, nil
		}
		if code != ReloadExitCode {
			s.logger.Debug("Supervised process exited", "code", code)
			return code, nil
		}

		s.logger.Info("Change detected. Restarting.")
	}
}

func (s *Supervisor) runOnce(ctx context.Context, argv []string) (int, bool, error) {
	child := s.create(context.WithoutCancel(ctx), runnable.Spec{
		Args: argv,
		Env:  runnable.WithEnv(s.env, EnvRunMain, "true"),
	})
	if err := child.Start(); err != nil {
		return 1, false, fmt.Errorf("start %q: %w", argv[0], err)
	}
	s.logger.Debug("Started supervised process", "args", argv)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- child.Wait()
	}()

	select {
	case err := <-waitCh:
		return runnable.ExitCode(err), false, nil
	case sig := <-s.signals:
		s.logger.Debug("Got signal to stop", "signal", sig)
		s.stop(child, sig, waitCh)
		return 0, true, nil
	case <-ctx.Done():
		s.logger.Debug("Context done. Stopping the supervised process")
		s.stop(child, os.Interrupt, waitCh)
		return 0, true, nil
	}
}

func (s *Supervisor) stop(child runnable.Runnable, sig os.Signal, waitCh <-chan error) {
	if err := child.Signal(sig); err != nil {
		s.logger.Debug("Can't signal supervised process", "error", err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-waitCh:
	case <-timer.C:
		s.logger.Warn("Supervised process didn't stop in time. Killing it", "timeout", s.timeout)
		if err := child.Kill(); err != nil {
			s.logger.Debug("Can't kill supervised process", "error", err)
		}
		<-waitCh
	}
}
