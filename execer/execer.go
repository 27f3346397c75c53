package execer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/autoreload/config"
	"github.com/magdyamr542/autoreload/runnable"
	"github.com/magdyamr542/autoreload/supervisor"
)

const afterTimeout = 30 * time.Second

// Execer starts a program based on some configuration.
type Execer interface {
	Exec(ctx context.Context) (*Execution, error)
}

// Execution represents the execution of a program.
type Execution struct {
	Command string

	cmd     runnable.Runnable
	after   func() error
	timeout time.Duration
	logger  hclog.Logger

	done      chan struct{}
	err       error
	afterOnce sync.Once
	afterErr  error
}

type execer struct {
	config config.Config
	logger hclog.Logger
	create runnable.Creator
}

func New(config config.Config, logger hclog.Logger) Execer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	e := execer{config: config, logger: logger, create: runnable.NewCmd}
	return &e
}

// Exec runs the before commands one after another and then starts the main
// command without waiting for it.
func (r *execer) Exec(ctx context.Context) (*Execution, error) {
	config := r.config

	// Run the before commands
	for _, before := range config.Before {
		r.logger.Info("Running before command", "command", before.Command)
		if err := r.newCmd(ctx, before).Run(); err != nil {
			return nil, fmt.Errorf("running command %q: %w", before.Command, err)
		}
	}

	// Run the command itself.
	r.logger.Info("Running command", "command", config.Command.Command)
	mainCmd := r.newCmd(ctx, config.Command)
	if err := mainCmd.Start(); err != nil {
		return nil, fmt.Errorf("can't start command %q: %w", config.Command.Command, err)
	}

	execution := &Execution{
		Command: config.Command.Command,
		cmd:     mainCmd,
		after:   r.runAfter,
		timeout: config.ShutdownTimeout,
		logger:  r.logger,
		done:    make(chan struct{}),
	}
	go func() {
		execution.err = mainCmd.Wait()
		close(execution.done)
	}()

	return execution, nil
}

func (r *execer) runAfter() error {
	for _, after := range r.config.After {
		r.logger.Info("Running after command", "command", after.Command)
		ctx, cancel := context.WithTimeout(context.Background(), afterTimeout)
		err := r.newCmd(ctx, after).Run()
		cancel()
		if err != nil {
			return fmt.Errorf("running command %q: %w", after.Command, err)
		}
	}
	return nil
}

func (r *execer) newCmd(ctx context.Context, cmd config.CommandWithDir) runnable.Runnable {
	return r.create(ctx, runnable.Spec{
		Args:  strings.Fields(cmd.Command),
		Env:   commandEnv(os.Environ(), cmd.Env),
		Dir:   cmd.BaseDir,
		Group: true,
	})
}

// commandEnv keeps the reloader's role marker away from the commands it runs.
func commandEnv(environ []string, extra map[string]string) []string {
	env := runnable.WithoutEnv(environ, supervisor.EnvRunMain)
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = runnable.WithEnv(env, key, extra[key])
	}
	return env
}

// Wait blocks till the main command is done, then runs the after commands. It
// returns the main command's error, if any.
func (e *Execution) Wait() error {
	<-e.done
	afterErr := e.runAfter()
	if e.err != nil {
		return e.err
	}
	return afterErr
}

// Stop interrupts the main command's process group, waits for it and runs the
// after commands. A command that doesn't stop in time is killed.
func (e *Execution) Stop() error {
	select {
	case <-e.done:
	default:
		err := e.cmd.Signal(os.Interrupt)
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}

		timeout := e.timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		timer := time.NewTimer(timeout)
		select {
		case <-e.done:
		case <-timer.C:
			e.logger.Warn("Command didn't stop in time. Killing it", "command", e.Command)
			_ = e.cmd.Kill()
			<-e.done
		}
		timer.Stop()
	}

	return e.runAfter()
}

func (e *Execution) runAfter() error {
	e.afterOnce.Do(func() {
		e.afterErr = e.after()
	})
	return e.afterErr
}
