package ops

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/workspace"
)

// DirEntry is one result row from ListDirectory.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ListDirectory enumerates a directory. Sensitive entries are elided from
// the listing rather than failing the whole call: the agent may list a home
// directory without learning what is inside .ssh.
func (o *Ops) ListDirectory(ctx context.Context, path string) ([]DirEntry, error) {
	const op = "list_directory"

	if err := workspace.ValidateNotSensitive(op, path); err != nil {
		return nil, err
	}
	if err := o.boundary.ValidateWorkspacePath(op, path); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errdefs.Transient(op, err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		if len(out) >= o.limits.MaxResults {
			break
		}
		full := filepath.Join(path, e.Name())
		if workspace.IsSensitivePath(full) {
			continue
		}
		de := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			de.Size = info.Size()
		}
		out = append(out, de)
	}
	return out, nil
}

// Glob finds files under dir matching pattern. Root-anchored patterns are
// rejected: a pattern is relative to dir by contract, and an absolute one
// would silently discover files outside the search root.
func (o *Ops) Glob(ctx context.Context, dir, pattern string) ([]string, error) {
	const op = "glob"

	if pattern == "" {
		return nil, errdefs.Validation(op, "pattern is empty")
	}
	if filepath.IsAbs(pattern) || strings.HasPrefix(pattern, "/") || strings.Contains(pattern, "..") {
		return nil, errdefs.Validation(op, "pattern must be relative to the search directory")
	}
	if err := workspace.ValidateNotSensitive(op, dir); err != nil {
		return nil, err
	}
	if err := o.boundary.ValidateWorkspacePath(op, dir); err != nil {
		return nil, err
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, errdefs.Validation(op, "invalid glob pattern")
	}

	var matches []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if workspace.IsSensitivePath(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		if g.Match(filepath.ToSlash(rel)) {
			matches = append(matches, path)
			if len(matches) >= o.limits.MaxResults {
				return fs.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, errdefs.Transient(op, walkErr)
	}
	return matches, nil
}

// GrepMatch is one matched line.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Grep searches file contents under dir. Binary and sensitive files are
// skipped; results stop at the cap.
func (o *Ops) Grep(ctx context.Context, dir, pattern string) ([]GrepMatch, error) {
	const op = "grep"

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errdefs.Validation(op, "invalid search pattern")
	}
	if err := workspace.ValidateNotSensitive(op, dir); err != nil {
		return nil, err
	}
	if err := o.boundary.ValidateWorkspacePath(op, dir); err != nil {
		return nil, err
	}

	var matches []GrepMatch
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if workspace.IsSensitivePath(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !o.files.ShouldScan(path) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > o.limits.MaxReadBytes {
			return nil
		}

		found, err := grepFile(re, path, &matches, o.limits.MaxResults)
		if err != nil {
			return nil // unreadable file, skip
		}
		if found && len(matches) >= o.limits.MaxResults {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return nil, errdefs.Transient(op, walkErr)
	}
	return matches, nil
}

func grepFile(re *regexp.Regexp, path string, matches *[]GrepMatch, max int) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	found := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if re.Match(sc.Bytes()) {
			*matches = append(*matches, GrepMatch{Path: path, Line: line, Text: sc.Text()})
			found = true
			if len(*matches) >= max {
				return true, nil
			}
		}
	}
	return found, nil
}
