package fileutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestSecureWriteFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits are not enforced on windows")
	}

	path := filepath.Join(t.TempDir(), "state.json")
	if err := SecureWriteFile(path, []byte("{}")); err != nil {
		t.Fatalf("SecureWriteFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("file mode = %o, want 0600", got)
	}
}

func TestSecureMkdirAll(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits are not enforced on windows")
	}

	path := filepath.Join(t.TempDir(), "a", "b")
	if err := SecureMkdirAll(path); err != nil {
		t.Fatalf("SecureMkdirAll() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if got := info.Mode().Perm(); got != 0700 {
		t.Errorf("dir mode = %o, want 0700", got)
	}
}

func TestSecureOpenFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")

	for _, line := range []string{"one\n", "two\n"} {
		f, err := SecureOpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
		if err != nil {
			t.Fatalf("SecureOpenFile() error = %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("WriteString() error = %v", err)
		}
		f.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("appended content = %q, want %q", data, "one\ntwo\n")
	}
}
