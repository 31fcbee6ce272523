//go:build windows

package proctrack

import "os"

// signalGroup terminates the process by pid. Windows has no process groups
// in the POSIX sense and no graceful TERM, so both stages kill outright.
func signalGroup(pid int, force bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
