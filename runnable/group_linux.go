package runnable

import "syscall"

// The kernel kills the process when its parent dies, so a command outlives
// neither a crashed nor a killed reloader child.
func groupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}
