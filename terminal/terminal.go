// Package terminal restores terminal settings that a debugger or a killed child
// may have left behind.
package terminal

import (
	"os"

	"github.com/mattn/go-isatty"
)

// EnsureEchoOn turns input echo back on when f is an interactive terminal that
// has it disabled. It does nothing for pipes, files, or unsupported platforms.
func EnsureEchoOn(f *os.File) error {
	if f == nil || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	return enableEcho(int(f.Fd()))
}
