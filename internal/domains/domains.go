// Package domains maintains the allowlist of hostnames the browser
// operations may reach, plus destination checks that keep requests away
// from cloud metadata services and private address space.
package domains

import (
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/logger"
)

var log = logger.New("domains")

// Allowlist holds two sets of lowercase hostnames. Permanent entries come
// from configuration or explicit user action and survive session clears;
// session entries are temporary escalations.
type Allowlist struct {
	mu        sync.RWMutex
	permanent map[string]struct{}
	session   map[string]struct{}
}

// NewAllowlist creates an Allowlist pre-populated with the given permanent
// entries.
func NewAllowlist(permanent []string) *Allowlist {
	a := &Allowlist{
		permanent: make(map[string]struct{}),
		session:   make(map[string]struct{}),
	}
	a.SeedPermanent(permanent)
	return a
}

// SeedPermanent merges configured entries into the permanent set. Used at
// construction and on config reload. Merge only: entries the user granted
// through the API are indistinguishable from seeded ones, so nothing is
// ever removed here.
func (a *Allowlist) SeedPermanent(domains []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range domains {
		if d = normalizeDomain(d); d != "" {
			a.permanent[d] = struct{}{}
		}
	}
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "*.")
	d = strings.TrimSuffix(d, ".")
	return d
}

// IsDomainAllowed reports whether rawURL's hostname is covered by either
// set. A hostname matches when it equals an entry or ends with "." plus an
// entry, so allowing github.com covers api.github.com.
func (a *Allowlist) IsDomainAllowed(rawURL string) bool {
	host := hostnameOf(rawURL)
	if host == "" {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	return matchSet(host, a.permanent) || matchSet(host, a.session)
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func matchSet(host string, set map[string]struct{}) bool {
	if _, ok := set[host]; ok {
		return true
	}
	for entry := range set {
		if strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// AllowPermanently adds a hostname to the permanent set.
func (a *Allowlist) AllowPermanently(domain string) {
	d := normalizeDomain(domain)
	if d == "" {
		return
	}
	a.mu.Lock()
	a.permanent[d] = struct{}{}
	a.mu.Unlock()
	log.Info("domain allowed permanently: %s", d)
}

// AllowForSession adds a hostname to the session set.
func (a *Allowlist) AllowForSession(domain string) {
	d := normalizeDomain(domain)
	if d == "" {
		return
	}
	a.mu.Lock()
	a.session[d] = struct{}{}
	a.mu.Unlock()
	log.Info("domain allowed for session: %s", d)
}

// RemovePermanent removes a hostname from the permanent set.
func (a *Allowlist) RemovePermanent(domain string) {
	d := normalizeDomain(domain)
	a.mu.Lock()
	delete(a.permanent, d)
	a.mu.Unlock()
}

// ClearSession empties the session set. Permanent entries, including the
// configured defaults, are untouched.
func (a *Allowlist) ClearSession() {
	a.mu.Lock()
	a.session = make(map[string]struct{})
	a.mu.Unlock()
}

// List returns the current entries per scope, sorted for stable output.
func (a *Allowlist) List() (permanent, session []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedKeys(a.permanent), sortedKeys(a.session)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// blockedHosts are exact hostnames that must never be fetched, allowlist or
// not. Cloud metadata endpoints hand out credentials to anything that can
// reach them.
var blockedHosts = map[string]struct{}{
	"169.254.169.254":          {},
	"metadata.google.internal": {},
	"metadata.goog":            {},
}

// ValidateDestination rejects URLs whose scheme is not http/https, whose
// host is a metadata endpoint, or whose host is a private, loopback, or
// link-local IP address literal. Hostnames that merely resolve to private
// space are out of scope here; this guards the literal forms.
func ValidateDestination(op, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errdefs.Validation(op, "invalid URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errdefs.AccessDenied(op, "only http and https URLs are allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errdefs.Validation(op, "URL has no host")
	}
	if _, ok := blockedHosts[host]; ok {
		log.Warn("%s: blocked metadata destination: %s", op, host)
		return errdefs.AccessDenied(op, "destination is not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			log.Warn("%s: blocked private-range destination: %s", op, host)
			return errdefs.AccessDenied(op, "destination is not allowed")
		}
	}
	return nil
}
