// Package sandbox validates and executes shell-like commands under an
// allowlist, with timeout enforcement and process-group cleanup.
package sandbox

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/syntax"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/logger"
)

var log = logger.New("sandbox")

// segment is one simple command out of a pipeline or chain.
type segment struct {
	Name string
	Args []string
}

// allowedPrograms is the built-in set of programs a command may invoke,
// never mutated after init. No shells (nested evaluation), no network
// clients (the browser operations own network access), no privilege or
// permission changers, no xargs-style program runners. Configured
// extensions live on the Validator, not here.
var allowedPrograms = map[string]bool{
	"echo": true, "printf": true, "pwd": true, "date": true, "true": true, "false": true, "sleep": true,
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true, "file": true, "stat": true,
	"find": true, "grep": true, "rg": true, "sed": true, "awk": true, "cut": true, "tr": true,
	"sort": true, "uniq": true, "diff": true, "basename": true, "dirname": true, "which": true,
	"mkdir": true, "touch": true, "cp": true, "mv": true, "ln": true,
	"tar": true, "gzip": true, "gunzip": true, "jq": true,
	"git": true, "go": true, "cargo": true, "rustc": true, "make": true,
	"node": true, "npm": true, "npx": true, "python": true, "python3": true,
	"pip": true, "pip3": true,
}

// blockedArgs lists per-program argument patterns that are forbidden even
// though the program itself is allowed. These are the escape hatches that
// turn a benign tool into an arbitrary-command runner.
var blockedArgs = map[string][]*regexp.Regexp{
	"find": {
		regexp.MustCompile(`^-(exec|execdir|ok|okdir|delete|fprintf|fprint0?)$`),
	},
	"sed": {
		// The GNU sed "e" command executes the pattern space: s/x/y/e,
		// plus the standalone e and the --expression long form of either.
		regexp.MustCompile(`/e[A-Za-z]*\s*(;|$)`),
		regexp.MustCompile(`(^|;)\s*e\s*(;|$)`),
	},
	"awk": {
		// system() and command pipes inside awk programs spawn shells.
		regexp.MustCompile(`system\s*\(`),
		regexp.MustCompile(`\|\s*getline`),
	},
	"git": {
		// -c injects config such as core.sshCommand; the rest point git
		// at attacker-controlled helper executables.
		regexp.MustCompile(`^-c$`),
		regexp.MustCompile(`^--(exec-path|upload-pack|receive-pack)(=|$)`),
		regexp.MustCompile(`^core\.(sshCommand|fsmonitor|pager)=`),
	},
	"tar": {
		regexp.MustCompile(`^--(to-command|use-compress-program|checkpoint-action)(=|$)`),
	},
	"npm": {
		regexp.MustCompile(`^exec$`),
	},
	"npx": {
		// npx's entire purpose is running arbitrary packages; only the
		// informational flags survive.
		regexp.MustCompile(`^[^-]`),
	},
}

// Validator checks commands against the program allowlist. The built-in
// allowlist is fixed; configured extensions are held per instance so a
// config reload can replace them while commands are being validated.
type Validator struct {
	mu    sync.RWMutex
	extra map[string]bool
}

// NewValidator builds a Validator whose allowlist is the built-in set plus
// the given bare program names.
func NewValidator(extraPrograms []string) *Validator {
	v := &Validator{}
	v.SetExtraPrograms(extraPrograms)
	return v
}

// SetExtraPrograms replaces the configured allowlist extension. Names
// containing path separators are ignored: the allowlist matches base names,
// so a path entry would never match anything anyway.
func (v *Validator) SetExtraPrograms(names []string) {
	extra := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || strings.ContainsAny(n, "/\\") {
			log.Warn("ignoring invalid allowlist entry %q", n)
			continue
		}
		extra[n] = true
	}
	v.mu.Lock()
	v.extra = extra
	v.mu.Unlock()
}

func (v *Validator) allows(name string) bool {
	if allowedPrograms[name] {
		return true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.extra[name]
}

// defaultValidator backs the package-level ValidateCommand. It carries no
// extensions, so the convenience form checks the built-in allowlist only.
var defaultValidator = NewValidator(nil)

// ValidateCommand checks command against the built-in allowlist only.
func ValidateCommand(command string) error {
	return defaultValidator.ValidateCommand(command)
}

// ValidateCommand runs the full validation pipeline over a raw command
// string. Every stage is a hard reject.
func (v *Validator) ValidateCommand(command string) error {
	const op = "execute_command"

	if strings.TrimSpace(command) == "" {
		return errdefs.Validation(op, "command is empty")
	}

	// Substitution cannot be statically analyzed: the inner command's
	// output becomes part of the outer command. Rejected on the raw string
	// first so even unparseable input cannot smuggle it through.
	if strings.Contains(command, "`") || strings.Contains(command, "$(") {
		return errdefs.AccessDenied(op, "command substitution is not allowed")
	}

	segments, err := parseSegments(command)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return errdefs.Validation(op, "command contains no executable segments")
	}

	for _, seg := range segments {
		if err := v.validateSegment(op, seg); err != nil {
			return err
		}
	}
	return nil
}

// parseSegments parses command as Bash and enumerates every simple command,
// including those inside pipelines, chains, subshells, and loops. Command
// and process substitution anywhere in the tree is a hard reject.
func parseSegments(command string) ([]segment, error) {
	const op = "execute_command"

	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, errdefs.Validation(op, "command could not be parsed")
	}

	var segments []segment
	var substErr error
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CmdSubst, *syntax.ProcSubst:
			substErr = errdefs.AccessDenied(op, "command substitution is not allowed")
			return false
		case *syntax.CallExpr:
			// Leading VAR=value assignments live in n.Assigns, so
			// n.Args[0] is already the program word. A bare assignment
			// with no program is not an executable segment.
			if len(n.Args) == 0 {
				return true
			}
			seg := segment{Name: wordText(n.Args[0])}
			for _, w := range n.Args[1:] {
				seg.Args = append(seg.Args, wordText(w))
			}
			segments = append(segments, seg)
		}
		return true
	})
	if substErr != nil {
		return nil, substErr
	}
	return segments, nil
}

// validateSegment checks one simple command against the allowlist and the
// per-program blocked arguments. The rejection names the offending program:
// the caller supplied it, so echoing it leaks nothing.
func (v *Validator) validateSegment(op string, seg segment) error {
	name := strings.ToLower(filepath.Base(filepath.ToSlash(seg.Name)))
	if name == "" || name == "." {
		return errdefs.Validation(op, "command has an empty program name")
	}
	if !v.allows(name) {
		log.Warn("blocked program: %s", name)
		return errdefs.AccessDenied(op, "command %q is not allowed", name)
	}
	for _, re := range blockedArgs[name] {
		for _, arg := range seg.Args {
			if re.MatchString(arg) {
				log.Warn("blocked argument to %s: %s", name, arg)
				return errdefs.AccessDenied(op, "argument to %q is not allowed", name)
			}
		}
	}
	return nil
}

// wordText flattens a parsed word back to its literal text. Expansions are
// reconstructed as written; quoting is dropped since validation cares about
// content, not quoting style.
func wordText(w *syntax.Word) string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			if p.Param != nil {
				if p.Short {
					sb.WriteString("$" + p.Param.Value)
				} else {
					sb.WriteString("${" + p.Param.Value + "}")
				}
			}
		}
	}
	return sb.String()
}
