package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Secrets holds sensitive configuration loaded from environment variables.
// SECURITY: Use environment variables instead of CLI flags for secrets.
// CLI flags are visible in process listings (ps auxww).
type Secrets struct {
	// DBKey is the SQLCipher grant database encryption key.
	// Env: WARDEN_DB_KEY
	DBKey string `envconfig:"WARDEN_DB_KEY"`

	// CallerToken is the shared token the trusted caller presents on every
	// gatekeeper call.
	// Env: WARDEN_CALLER_TOKEN
	CallerToken string `envconfig:"WARDEN_CALLER_TOKEN"`
}

// LoadSecrets loads secrets from environment variables.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}
	return &s, nil
}

// Validate validates that required secrets are set.
func (s *Secrets) Validate() error {
	if s.CallerToken == "" {
		return errors.New("caller token is required (set WARDEN_CALLER_TOKEN)")
	}
	return nil
}

// ValidateDBKey validates the database encryption key if set.
func (s *Secrets) ValidateDBKey() error {
	if s.DBKey != "" && len(s.DBKey) < 16 {
		return errors.New("database encryption key must be at least 16 characters")
	}
	return nil
}

// HasDBEncryption returns true if database encryption is configured.
func (s *Secrets) HasDBEncryption() bool {
	return s.DBKey != ""
}

// MaskCallerToken returns a masked version of the caller token for logging.
func (s *Secrets) MaskCallerToken() string {
	if s.CallerToken == "" {
		return "(not set)"
	}
	if len(s.CallerToken) <= 8 {
		return "****"
	}
	return s.CallerToken[:4] + "****" + s.CallerToken[len(s.CallerToken)-4:]
}
