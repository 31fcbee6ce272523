package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config validation failed: %v", err)
	}
	if cfg.Sandbox.TimeoutSeconds != 120 {
		t.Errorf("sandbox timeout = %d, want 120", cfg.Sandbox.TimeoutSeconds)
	}
	if cfg.RateLimit.MaxCalls != 120 {
		t.Errorf("rate limit max = %d, want 120", cfg.RateLimit.MaxCalls)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultConfig().Server.Port {
		t.Errorf("port = %d, want default %d", cfg.Server.Port, DefaultConfig().Server.Port)
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9090
  log_level: debug
workspace:
  root: /home/dev/project
sandbox:
  timeout_seconds: 30
  allow_programs: [ruby, perl]
domains:
  allowed:
    - github.com
rate_limit:
  max_calls: 10
  window_seconds: 5
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Workspace.Root != "/home/dev/project" {
		t.Errorf("root = %q", cfg.Workspace.Root)
	}
	if len(cfg.Sandbox.AllowPrograms) != 2 {
		t.Errorf("allow_programs = %v", cfg.Sandbox.AllowPrograms)
	}
	if len(cfg.Domains.Allowed) != 1 || cfg.Domains.Allowed[0] != "github.com" {
		t.Errorf("domains = %v", cfg.Domains.Allowed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_UnknownFieldsWarnedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
servr:
  port: 9090
audit:
  path: /tmp/audit.jsonl
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should tolerate unknown fields: %v", err)
	}
	// The typoed section is dropped, known fields still apply.
	if cfg.Server.Port != DefaultConfig().Server.Port {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
	if cfg.Audit.Path != "/tmp/audit.jsonl" {
		t.Errorf("audit path = %q", cfg.Audit.Path)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	cfg.Server.LogLevel = "loud"
	cfg.Workspace.Root = "relative/path"
	cfg.Sandbox.TimeoutSeconds = 0
	cfg.RateLimit.MaxCalls = 5
	cfg.RateLimit.WindowSeconds = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "config validation failed:") {
		t.Errorf("missing header: %q", msg)
	}
	for _, want := range []string{"1.", "server.port", "server.log_level", "workspace.root", "sandbox.timeout_seconds", "rate_limit.window_seconds"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
}

func TestValidate_AllowProgramsRejectsPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.AllowPrograms = []string{"ruby", "/usr/bin/ruby"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "allow_programs") {
		t.Errorf("expected allow_programs error, got %v", err)
	}
}

func TestSecrets_ValidateDBKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"", false},
		{"short", true},
		{"exactly-16-chars", false},
		{"a-much-longer-encryption-key", false},
	}
	for _, tt := range tests {
		s := &Secrets{DBKey: tt.key}
		err := s.ValidateDBKey()
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateDBKey(%q) err = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestSecrets_LoadFromEnv(t *testing.T) {
	t.Setenv("WARDEN_DB_KEY", "test-encryption-key")
	t.Setenv("WARDEN_CALLER_TOKEN", "caller-token-abcd1234")

	s, err := LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	if s.DBKey != "test-encryption-key" {
		t.Errorf("DBKey = %q", s.DBKey)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if !s.HasDBEncryption() {
		t.Error("HasDBEncryption should be true")
	}
	masked := s.MaskCallerToken()
	if strings.Contains(masked, "token-abcd") || !strings.Contains(masked, "****") {
		t.Errorf("mask leaks token: %q", masked)
	}
}

func TestSecrets_MissingCallerToken(t *testing.T) {
	s := &Secrets{}
	if err := s.Validate(); err == nil {
		t.Error("expected error for missing caller token")
	}
	if s.MaskCallerToken() != "(not set)" {
		t.Errorf("mask = %q", s.MaskCallerToken())
	}
}
