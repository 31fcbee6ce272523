package workspace

import (
	"strings"
	"testing"
)

func TestIsSensitivePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/home/user/.ssh/id_rsa", true},
		{"/home/user/.ssh/config", true},
		{"/home/user/.SSH/id_rsa", true},
		{"/home/user/.aws/credentials", true},
		{"/home/user/.gnupg/secring.gpg", true},
		{"/home/user/project/.env", true},
		{"/home/user/project/.env.production", true},
		{"/home/user/.netrc", true},
		{"/home/user/.npmrc", true},
		{"/home/user/backup/id_rsa.old", true},
		{"/home/user/certs/server.pem", true},
		{"/etc/shadow", true},
		{"/etc/sudoers", true},
		{"/etc/sudoers.d/99-custom", true},
		{"/proc/self/environ", true},
		{"/sys/kernel/debug", true},

		{"/home/user/project/main.go", false},
		{"/home/user/project/README.md", false},
		{"/home/user/project/environment.yaml", false},
		{"/home/user/sshd_notes.txt", false},
		{"/etc/hostname", false},
		{"/home/user/project/env/config.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSensitivePath(tt.path); got != tt.want {
				t.Errorf("IsSensitivePath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsSensitiveDirectory(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/home/user/.ssh", true},
		{"/home/user/.aws/sso", true},
		{"/etc", true},
		{"/etc/nginx", true},
		{"/boot/grub", true},
		{"/root/notes", true},
		{"/home/user/exports", false},
		{"/home/user/Documents", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSensitiveDirectory(tt.path); got != tt.want {
				t.Errorf("IsSensitiveDirectory(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestValidateNotSensitiveGenericMessage(t *testing.T) {
	err := ValidateNotSensitive("read_file", "/home/user/.ssh/id_rsa")
	if err == nil {
		t.Fatal("sensitive path passed validation")
	}
	msg := err.Error()
	// The message must not fingerprint the ruleset.
	for _, leak := range []string{".ssh", "id_rsa", "denylist", "pattern"} {
		if strings.Contains(msg, leak) {
			t.Errorf("denial message leaks %q: %q", leak, msg)
		}
	}

	if err := ValidateNotSensitive("read_file", "/home/user/project/main.go"); err != nil {
		t.Errorf("benign path rejected: %v", err)
	}
}
