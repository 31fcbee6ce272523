//go:build !windows

package sandbox

import "syscall"

func shellPath() string {
	return "/bin/sh"
}

func shellFlag() string {
	return "-c"
}

// detachedProcAttr gives the child its own process group so the tracker can
// signal the shell and everything it forked with one negated-pid kill.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
