// Package workspace contains filesystem paths to a declared workspace root
// and blocks access to sensitive locations regardless of that root.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/logger"
)

var log = logger.New("workspace")

// Boundary holds the optional workspace root. When no root is set the
// boundary is permissive: every path is allowed. This is opt-in containment,
// not a default-deny perimeter — the sensitive-path denylist still applies
// either way.
type Boundary struct {
	mu         sync.RWMutex
	root       string
	exceptions []string
}

// NewBoundary creates a Boundary with no root set and the standard global
// exceptions: temp directories, the user's config directory, and the user's
// Downloads folder. Tooling legitimately needs these even when a root is set.
func NewBoundary() *Boundary {
	return &Boundary{exceptions: globalExceptions()}
}

// NewBoundaryWithExceptions creates a Boundary with an explicit exception
// list instead of the host defaults. Useful for testing, where t.TempDir
// lives under the real temp-dir exception.
func NewBoundaryWithExceptions(exceptions []string) *Boundary {
	b := &Boundary{}
	for _, e := range exceptions {
		b.exceptions = append(b.exceptions, normalizePath(e))
	}
	return b
}

func globalExceptions() []string {
	var exc []string
	add := func(p string) {
		if p == "" {
			return
		}
		p = normalizePath(p)
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			p = resolved
		}
		for _, e := range exc {
			if e == p {
				return
			}
		}
		exc = append(exc, p)
	}

	add(os.TempDir())
	add("/tmp")
	if cfg, err := os.UserConfigDir(); err == nil {
		add(cfg)
	}
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, "Downloads"))
	}
	return exc
}

// SetRoot sets the workspace root. The path is normalized and symlinks are
// resolved so containment checks compare real paths. Setting the same root
// twice is a no-op.
func (b *Boundary) SetRoot(path string) error {
	if strings.TrimSpace(path) == "" {
		return errdefs.Validation("workspace.SetRoot", "workspace root must not be empty")
	}
	root := normalizePath(path)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root == root {
		return nil
	}
	b.root = root
	log.Info("workspace root set to %s", root)
	return nil
}

// ClearRoot removes the workspace root, returning the boundary to
// permissive mode.
func (b *Boundary) ClearRoot() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root != "" {
		b.root = ""
		log.Info("workspace root cleared")
	}
}

// Root returns the current workspace root, or "" when none is set.
func (b *Boundary) Root() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.root
}

// IsWithinWorkspace reports whether path is allowed under the current root.
// With no root set it always returns true. Global exceptions are checked
// both before and after symlink resolution: a symlink inside the root may
// legitimately point at an exception, and an exception-looking path may be a
// symlink escaping into somewhere else.
func (b *Boundary) IsWithinWorkspace(path string) bool {
	b.mu.RLock()
	root := b.root
	exceptions := b.exceptions
	b.mu.RUnlock()

	if root == "" {
		return true
	}

	p := normalizePath(path)
	if underAny(p, exceptions) {
		return true
	}

	// Resolve symlinks so "root/link -> /etc" is judged by its target.
	// A path that does not exist yet (pending write) falls back to the
	// normalized form: containment is then judged on where it WILL be.
	resolved := p
	if r, err := filepath.EvalSymlinks(p); err == nil {
		resolved = r
	} else {
		// The leaf may not exist while its parent does; resolving the
		// parent still catches directory-level symlink escapes.
		dir, base := filepath.Split(p)
		if r, err := filepath.EvalSymlinks(filepath.Clean(dir)); err == nil {
			resolved = filepath.Join(r, base)
		}
	}

	if underAny(resolved, exceptions) {
		return true
	}
	return under(resolved, root)
}

// ValidateWorkspacePath is the failing variant of IsWithinWorkspace, used by
// call sites that must abort on a violation. The message is deliberately
// generic: it never echoes the root or the resolved path.
func (b *Boundary) ValidateWorkspacePath(op, path string) error {
	if b.IsWithinWorkspace(path) {
		return nil
	}
	log.Warn("%s: path outside workspace root: %s", op, path)
	return errdefs.AccessDenied(op, "path is outside the allowed workspace")
}

// under reports whether p equals dir or sits beneath it. The separator is
// appended before the prefix test so a root of /project never matches
// /project-evil.
func under(p, dir string) bool {
	if p == dir {
		return true
	}
	return strings.HasPrefix(p, dir+string(filepath.Separator))
}

func underAny(p string, dirs []string) bool {
	for _, d := range dirs {
		if under(p, d) {
			return true
		}
	}
	return false
}

// normalizePath produces the canonical absolute form used for every
// comparison in this package.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	// Null bytes truncate at the syscall layer, so "/etc/passwd\x00.txt"
	// would open /etc/passwd while comparing as something else.
	path = strings.ReplaceAll(path, "\x00", "")
	path = strings.ToValidUTF8(path, "")
	// NFKC folds fullwidth and other compatibility forms that would
	// otherwise dodge string comparison while resolving to the same file.
	path = norm.NFKC.String(path)

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}
