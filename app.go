package main

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/autoreload/execer"
)

// app is the supervised application of the CLI: the configured commands.
type app struct {
	execer execer.Execer
	logger hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mutex   sync.Mutex
	current *execer.Execution
}

func newApp(exc execer.Execer, logger hclog.Logger) *app {
	ctx, cancel := context.WithCancel(context.Background())
	return &app{execer: exc, logger: logger, ctx: ctx, cancel: cancel}
}

// Main runs the commands once. A failing main command ends the application with
// its exit code.
func (a *app) Main() error {
	execution, err := a.execer.Exec(a.ctx)
	if err != nil {
		a.logger.Error("Error running the main program", "error", err)
		return err
	}

	a.mutex.Lock()
	a.current = execution
	a.mutex.Unlock()

	if err := execution.Wait(); err != nil {
		return err
	}

	// A finished command keeps the watcher alive until the next change.
	a.logger.Info("Main program finished. Waiting for changes")
	<-a.ctx.Done()
	return nil
}

// Stop ends the main command, if it runs, and cancels any before command still in
// progress.
func (a *app) Stop() {
	a.mutex.Lock()
	execution := a.current
	a.mutex.Unlock()

	if execution != nil {
		a.logger.Info("Stopping the current execution")
		if err := execution.Stop(); err != nil {
			a.logger.Error("Error while stopping the current execution", "error", err)
		}
	}
	a.cancel()
}
