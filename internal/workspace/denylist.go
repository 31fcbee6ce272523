package workspace

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/wardenhq/warden/internal/errdefs"
)

// sensitivePatterns cover credentials, key material, and system state that
// no operation should touch even inside the workspace. Patterns match
// slash-normalized absolute paths; '/' is the glob separator so ** crosses
// directories but * does not.
var sensitivePatterns = compileGlobs([]string{
	"**/.ssh",
	"**/.ssh/**",
	"**/.aws",
	"**/.aws/**",
	"**/.gnupg",
	"**/.gnupg/**",
	"**/.kube/config",
	"**/.docker/config.json",
	"**/.env",
	"**/.env.*",
	"**/.netrc",
	"**/.npmrc",
	"**/.pypirc",
	"**/id_rsa*",
	"**/id_ecdsa*",
	"**/id_ed25519*",
	"**/*.pem",
	"/etc/shadow",
	"/etc/sudoers",
	"/etc/sudoers.d/**",
	"/proc/**",
	"/sys/**",
})

// sensitiveDirPatterns are directories exports must never target, even when
// individual files inside them would pass the file-level denylist.
var sensitiveDirPatterns = compileGlobs([]string{
	"**/.ssh",
	"**/.ssh/**",
	"**/.aws",
	"**/.aws/**",
	"**/.gnupg",
	"**/.gnupg/**",
	"**/.kube",
	"**/.kube/**",
	"/etc",
	"/etc/**",
	"/proc",
	"/proc/**",
	"/sys",
	"/sys/**",
	"/boot",
	"/boot/**",
	"/root",
	"/root/**",
})

func compileGlobs(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p, '/'))
	}
	return out
}

// IsSensitivePath reports whether path matches the sensitive-path denylist.
func IsSensitivePath(path string) bool {
	return matchAny(path, sensitivePatterns)
}

// IsSensitiveDirectory reports whether path is (or sits inside) a directory
// that export-style writes are barred from.
func IsSensitiveDirectory(path string) bool {
	return matchAny(path, sensitiveDirPatterns)
}

// ValidateNotSensitive rejects sensitive paths with a generic message. The
// message never names which entry matched: echoing the ruleset would let a
// caller fingerprint it.
func ValidateNotSensitive(op, path string) error {
	if !IsSensitivePath(path) {
		return nil
	}
	log.Warn("%s: denied sensitive path: %s", op, path)
	return errdefs.AccessDenied(op, "access to this path is not permitted")
}

func matchAny(path string, globs []glob.Glob) bool {
	p := filepath.ToSlash(normalizePath(path))
	candidates := []string{p}
	// The resolved form catches a symlink planted in front of a protected
	// file; the unresolved form catches a protected name that is itself a
	// symlink pointing elsewhere. Both must pass.
	if r, err := filepath.EvalSymlinks(p); err == nil {
		if r = filepath.ToSlash(r); r != p {
			candidates = append(candidates, r)
		}
	}
	for _, c := range candidates {
		// Case-insensitive second pass: macOS and Windows filesystems
		// would happily open /Users/x/.SSH/id_rsa.
		if lower := strings.ToLower(c); lower != c {
			candidates = append(candidates, lower)
		}
	}
	for _, c := range candidates {
		for _, g := range globs {
			if g.Match(c) {
				return true
			}
		}
	}
	return false
}
