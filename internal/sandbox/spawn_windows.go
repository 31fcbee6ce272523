//go:build windows

package sandbox

import "syscall"

func shellPath() string {
	return "cmd.exe"
}

func shellFlag() string {
	return "/C"
}

func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
