//go:build windows

package runnable

import (
	"errors"
	"syscall"
)

func groupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func signalGroup(int, syscall.Signal) error {
	return errors.New("process group signals are not supported")
}
