package domains

import (
	"testing"

	"github.com/wardenhq/warden/internal/errdefs"
)

func TestSubdomainMatching(t *testing.T) {
	a := NewAllowlist(nil)
	a.AllowPermanently("github.com")

	tests := []struct {
		url  string
		want bool
	}{
		{"https://github.com", true},
		{"https://github.com/anything/else", true},
		{"https://api.github.com/x", true},
		{"https://deep.api.github.com/x", true},
		{"https://GITHUB.com/x", true},
		{"https://notgithub.com", false},
		{"https://github.com.evil.io", false},
		{"https://gitlab.com", false},
		{"not a url", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := a.IsDomainAllowed(tt.url); got != tt.want {
				t.Errorf("IsDomainAllowed(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestSessionScope(t *testing.T) {
	a := NewAllowlist([]string{"docs.rs"})
	a.AllowForSession("example.com")

	if !a.IsDomainAllowed("https://example.com") {
		t.Fatal("session-allowed domain rejected")
	}
	a.ClearSession()
	if a.IsDomainAllowed("https://example.com") {
		t.Error("session domain survived ClearSession")
	}
	if !a.IsDomainAllowed("https://docs.rs/serde") {
		t.Error("permanent default lost after ClearSession")
	}
}

func TestRemovePermanent(t *testing.T) {
	a := NewAllowlist([]string{"github.com"})
	a.RemovePermanent("github.com")
	if a.IsDomainAllowed("https://github.com") {
		t.Error("domain still allowed after RemovePermanent")
	}
}

func TestSeedPermanentMergesOnly(t *testing.T) {
	a := NewAllowlist([]string{"github.com"})
	a.AllowPermanently("example.org") // user-granted, not config-seeded

	// Reload with a config that dropped github.com and added golang.org.
	a.SeedPermanent([]string{"golang.org"})

	for _, url := range []string{
		"https://golang.org/",
		"https://github.com/",
		"https://example.org/",
	} {
		if !a.IsDomainAllowed(url) {
			t.Errorf("%s should be allowed after reseed", url)
		}
	}
}

func TestNormalization(t *testing.T) {
	a := NewAllowlist(nil)
	a.AllowPermanently("  *.Example.COM. ")
	if !a.IsDomainAllowed("https://sub.example.com/path") {
		t.Error("wildcard-prefixed entry did not normalize to its base domain")
	}
}

func TestValidateDestination(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"plain https", "https://example.com/page", false},
		{"plain http", "http://example.com", false},
		{"public ip literal", "https://93.184.216.34/", false},
		{"file scheme", "file:///etc/passwd", true},
		{"ftp scheme", "ftp://example.com", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"aws metadata", "http://169.254.169.254/latest/meta-data/", true},
		{"gcp metadata", "http://metadata.google.internal/computeMetadata/v1/", true},
		{"loopback", "http://127.0.0.1:8080/admin", true},
		{"loopback name form", "http://127.1.2.3/", true},
		{"private 10/8", "http://10.0.0.5/", true},
		{"private 192.168/16", "http://192.168.1.1/", true},
		{"private 172.16/12", "http://172.16.0.1/", true},
		{"link local", "http://169.254.0.99/", true},
		{"unspecified", "http://0.0.0.0/", true},
		{"ipv6 loopback", "http://[::1]/", true},
		{"no host", "https:///path", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDestination("browser_navigate", tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDestination(%q) = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errdefs.IsAccessDenied(err) && !errdefs.IsValidation(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
		})
	}
}
