package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Invocation describes how the current process was started, so that it can be
// started again the same way.
type Invocation struct {
	// The argument vector of the running process.
	Argv []string
	// Argv[0] is an interpreter and Argv[1] the script it runs.
	Script bool
	// Module run by the interpreter at Argv[0]; Argv[1:] are the program's
	// arguments.
	Module string
	// Overrides the resolved path of the program.
	Executable string
}

// CurrentInvocation describes the running binary.
func CurrentInvocation() Invocation {
	return Invocation{Argv: os.Args}
}

// Args returns an argument vector that reproduces the invocation, with the
// program or script addressed by an absolute path.
func (i Invocation) Args() ([]string, error) {
	if len(i.Argv) == 0 {
		return nil, errors.New("empty argument vector")
	}
	windows := runtime.GOOS == "windows"

	switch {
	case i.Module != "":
		rv := []string{i.Argv[0], "-m", strings.TrimLeft(i.Module, ".")}
		return append(rv, i.Argv[1:]...), nil

	case i.Script:
		if len(i.Argv) < 2 {
			return nil, errors.New("script invocation without a script")
		}
		interpreter := i.Argv[0]
		script := resolveExe(absPath(i.Argv[1]), windows)
		rv := []string{interpreter, script}
		if windows && strings.EqualFold(filepath.Ext(interpreter), ".exe") &&
			strings.EqualFold(filepath.Ext(script), ".exe") {
			rv = rv[1:]
		}
		return append(rv, i.Argv[2:]...), nil

	default:
		bin, err := i.program(windows)
		if err != nil {
			return nil, err
		}
		return append([]string{bin}, i.Argv[1:]...), nil
	}
}

func (i Invocation) program(windows bool) (string, error) {
	if i.Executable != "" {
		return i.Executable, nil
	}
	bin := i.Argv[0]
	if filepath.IsAbs(bin) {
		return resolveExe(bin, windows), nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", errors.New("can't find the path of the running program; launch it with an absolute path")
	}
	return self, nil
}

// resolveExe appends ".exe" on Windows when only the suffixed file exists.
func resolveExe(path string, windows bool) string {
	if !windows || exists(path) || !exists(path+".exe") {
		return path
	}
	return path + ".exe"
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
