//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package terminal

func enableEcho(int) error {
	return nil
}
