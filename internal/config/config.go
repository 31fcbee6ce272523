// Package config loads and validates warden's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/logger"
)

var cfgLog = logger.New("config")

// Config represents the warden configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Audit     AuditConfig     `yaml:"audit"`
	Store     StoreConfig     `yaml:"store"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Limits    LimitsConfig    `yaml:"limits"`
	Domains   DomainsConfig   `yaml:"domains"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds management API and logging settings.
type ServerConfig struct {
	// Port for the localhost-only management API. 0 disables it.
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	NoColor  bool   `yaml:"no_color"`
}

// WorkspaceConfig declares the optional workspace root. Empty leaves the
// boundary permissive until a root is set at runtime.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// AuditConfig locates the append-only audit log.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig locates the grant database. The encryption key deliberately
// has no yaml field: keys in config files end up in backups and dotfile
// repos, so it comes from the environment (see secrets.go).
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// SandboxConfig tunes command execution.
type SandboxConfig struct {
	// TimeoutSeconds is the default per-command timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// AllowPrograms extends the built-in program allowlist.
	AllowPrograms []string `yaml:"allow_programs"`
}

// ScannerConfig tunes content scanning.
type ScannerConfig struct {
	// ExemptExtensions extends the built-in set of binary/media extensions
	// skipped by the injection scanner.
	ExemptExtensions []string `yaml:"exempt_extensions"`
}

// LimitsConfig bounds per-operation resource usage. Zero means the
// built-in default.
type LimitsConfig struct {
	MaxReadBytes  int64 `yaml:"max_read_bytes"`
	MaxWriteBytes int64 `yaml:"max_write_bytes"`
	MaxResults    int   `yaml:"max_results"`
	MaxPageBytes  int64 `yaml:"max_page_bytes"`
}

// DomainsConfig seeds the permanent domain allowlist.
type DomainsConfig struct {
	Allowed []string `yaml:"allowed"`
}

// RateLimitConfig tunes the gatekeeper's sliding window. MaxCalls 0
// disables rate limiting.
type RateLimitConfig struct {
	MaxCalls      int `yaml:"max_calls"`
	WindowSeconds int `yaml:"window_seconds"`
}

// DefaultConfigPath returns ~/.warden/config.yaml, falling back to a
// relative path when the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".warden", "config.yaml")
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".warden", name)
}

// DefaultConfig returns the defaults applied before the file and any flag
// overrides.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     7070,
			LogLevel: "info",
		},
		Audit: AuditConfig{
			Path: defaultDataPath("audit.jsonl"),
		},
		Store: StoreConfig{
			DBPath: defaultDataPath("grants.db"),
		},
		Sandbox: SandboxConfig{
			TimeoutSeconds: 120,
		},
		RateLimit: RateLimitConfig{
			MaxCalls:      120,
			WindowSeconds: 60,
		},
	}
}

// Load reads the config file at path, returning defaults when the file does
// not exist. Unknown fields produce a warning and are then ignored for
// forward compatibility. Load does not validate; callers apply flag
// overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Try strict decode first to warn about unknown fields (typos like
	// "servr:"), then fall back to a lenient parse.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if !isUnknownFieldError(err) {
			return nil, fmt.Errorf("config parse error: %w", err)
		}
		cfgLog.Warn("config has unknown fields (ignored): %v", err)
		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config parse error: %w", err)
		}
	}
	return cfg, nil
}

func isUnknownFieldError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found in type")
}

// Validate checks all fields and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be 0-65535 (got %d)", c.Server.Port))
	}
	if _, err := logger.ParseLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("server.log_level: unknown level %q (valid: debug, info, warn, error)", c.Server.LogLevel))
	}
	if c.Workspace.Root != "" && !filepath.IsAbs(c.Workspace.Root) {
		errs = append(errs, fmt.Sprintf("workspace.root: must be an absolute path (got %q)", c.Workspace.Root))
	}
	if c.Audit.Path == "" {
		errs = append(errs, "audit.path: must not be empty")
	}
	if c.Store.DBPath == "" {
		errs = append(errs, "store.db_path: must not be empty")
	}
	if c.Sandbox.TimeoutSeconds < 1 || c.Sandbox.TimeoutSeconds > 600 {
		errs = append(errs, fmt.Sprintf("sandbox.timeout_seconds: must be 1-600 (got %d)", c.Sandbox.TimeoutSeconds))
	}
	for _, p := range c.Sandbox.AllowPrograms {
		if strings.TrimSpace(p) == "" || strings.ContainsAny(p, "/\\") {
			errs = append(errs, fmt.Sprintf("sandbox.allow_programs: %q must be a bare program name", p))
		}
	}
	if c.Limits.MaxReadBytes < 0 || c.Limits.MaxWriteBytes < 0 || c.Limits.MaxResults < 0 || c.Limits.MaxPageBytes < 0 {
		errs = append(errs, "limits: values must be >= 0 (0 means built-in default)")
	}
	if c.RateLimit.MaxCalls < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.max_calls: must be >= 0 (got %d)", c.RateLimit.MaxCalls))
	}
	if c.RateLimit.MaxCalls > 0 && c.RateLimit.WindowSeconds < 1 {
		errs = append(errs, fmt.Sprintf("rate_limit.window_seconds: must be >= 1 when rate limiting is enabled (got %d)", c.RateLimit.WindowSeconds))
	}

	if len(errs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for i, e := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e)
	}
	return errors.New(strings.TrimRight(sb.String(), "\n"))
}
