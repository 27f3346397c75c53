//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package terminal

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func enableEcho(fd int) error {
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("get terminal attributes: %w", err)
	}
	if termios.Lflag&unix.ECHO != 0 {
		return nil
	}
	termios.Lflag |= unix.ECHO
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, termios); err != nil {
		return fmt.Errorf("set terminal attributes: %w", err)
	}
	return nil
}
