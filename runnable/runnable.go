package runnable

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Runnable is something that can run on the machine like a command.
type Runnable interface {
	// Run runs the executable. This starts and waits.
	Run() error
	// Start starts running the executable but doesn't wait for it.
	Start() error
	// Wait blocks till the executable is done.
	Wait() error
	// Signal sends a signal to the executable, or to its process group when it
	// was started in one.
	Signal(signal os.Signal) error
	// Kill forcefully stops the executable.
	Kill() error
}

// Spec describes a process to run.
type Spec struct {
	// The argument vector. Args[0] is the program.
	Args []string
	// The full environment. Nil means the current environment.
	Env []string
	// The working directory. Empty means the current one.
	Dir string
	// Run the process in its own process group. On Linux the process is also
	// killed when its parent dies.
	Group bool
	// Where the output goes. Nil means the current stdout/stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Creator is a function that returns a Runnable.
type Creator func(ctx context.Context, spec Spec) Runnable

type osCmd struct {
	cmd   *exec.Cmd
	group bool
}

// NewCmd is the Creator backed by os/exec. Stdin and file descriptors are
// inherited from the current process.
func NewCmd(ctx context.Context, spec Spec) Runnable {
	c := osCmd{cmd: newCmd(ctx, spec), group: spec.Group}
	return &c
}

func (o *osCmd) Run() error {
	return o.cmd.Run()
}

func (o *osCmd) Start() error {
	return o.cmd.Start()
}

func (o *osCmd) Wait() error {
	return o.cmd.Wait()
}

func (o *osCmd) Signal(signal os.Signal) error {
	if o.cmd.Process == nil {
		return nil
	}
	if o.group {
		if sig, ok := signal.(syscall.Signal); ok {
			if err := signalGroup(o.cmd.Process.Pid, sig); err == nil {
				return nil
			}
		}
	}
	return o.cmd.Process.Signal(signal)
}

func (o *osCmd) Kill() error {
	if o.cmd.Process == nil {
		return nil
	}
	return o.cmd.Process.Kill()
}

func newCmd(ctx context.Context, spec Spec) *exec.Cmd {
	parts := spec.Args
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	}
	if spec.Stderr != nil {
		cmd.Stderr = spec.Stderr
	}
	cmd.Dir = spec.Dir
	if spec.Group {
		cmd.SysProcAttr = groupAttr()
	}
	cmd.Env = spec.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	return cmd
}

// ExitCode maps the error of Run or Wait to a process exit code. A process
// killed by a signal maps to 128 plus the signal number.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return 1
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// WithEnv returns environ with key set to value, replacing any earlier entry.
func WithEnv(environ []string, key, value string) []string {
	out := WithoutEnv(environ, key)
	return append(out, key+"="+value)
}

// WithoutEnv returns environ without any entry for key.
func WithoutEnv(environ []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
