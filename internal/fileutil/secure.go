// Package fileutil provides owner-only file operations for warden's own
// state (audit log, permission store). Everything here writes 0600 files
// under 0700 directories so other local users cannot read grant history
// or the audit trail.
package fileutil

import "os"

// SecureWriteFile writes data to a file with owner-only permissions (0600).
func SecureWriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0600)
}

// SecureMkdirAll creates a directory tree with owner-only permissions (0700).
func SecureMkdirAll(path string) error {
	return os.MkdirAll(path, 0700)
}

// SecureOpenFile opens a file with owner-only permissions (0600).
func SecureOpenFile(path string, flag int) (*os.File, error) {
	return os.OpenFile(path, flag, 0600)
}
