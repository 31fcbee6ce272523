//go:build !windows

package proctrack

import "syscall"

// signalGroup signals the whole process group: the sandbox spawns children
// with Setpgid, so the negated pid reaches the shell and everything it
// forked. force selects SIGKILL over SIGTERM.
func signalGroup(pid int, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		// No group (child never got its own pgid); fall back to the pid.
		return syscall.Kill(pid, sig)
	}
	return nil
}
