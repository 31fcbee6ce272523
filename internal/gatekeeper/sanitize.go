package gatekeeper

import (
	"errors"
	"regexp"
	"strings"

	"github.com/wardenhq/warden/internal/errdefs"
)

// genericMessage replaces anything that cannot be safely shown.
const genericMessage = "An error occurred."

const pathPlaceholder = "<path>"

var (
	// Absolute POSIX paths with at least two segments; single-segment
	// forms like "/tmp" carry little, but deeper ones map the filesystem.
	absPathRe = regexp.MustCompile(`(?:/[\w.+~-]+){2,}/?`)
	// Windows drive paths.
	winPathRe = regexp.MustCompile(`[A-Za-z]:\\[^\s"']+`)
	// Home-relative references.
	homeRefRe = regexp.MustCompile(`~/[\w./+-]*`)
	// line:column references from parsers and panics.
	lineColRe = regexp.MustCompile(`:\d+:\d+\b`)
	// Stack frame lines: "goroutine 7 [running]:" and "\t/src/pkg/file.go:12".
	stackLineRe = regexp.MustCompile(`(?m)^\s*(goroutine \d+ \[.*\]:|[\w./@-]+\(.*\)|\s+.*\.go:\d+.*)$`)
)

// Sanitize converts any error into one safe to return across the trust
// boundary: internal paths, stack frames, and positional references are
// stripped; a nil or non-Error value becomes a generic message. The error
// kind survives so callers can still branch on it.
func Sanitize(err error) error {
	if err == nil {
		return errors.New(genericMessage)
	}

	var werr *errdefs.Error
	if errors.As(err, &werr) {
		msg := scrub(werr.Msg)
		if strings.TrimSpace(msg) == "" {
			msg = genericMessage
		}
		return &errdefs.Error{Kind: werr.Kind, Op: werr.Op, Msg: msg}
	}

	msg := scrub(err.Error())
	if strings.TrimSpace(msg) == "" {
		msg = genericMessage
	}
	return errors.New(msg)
}

func scrub(msg string) string {
	msg = stackLineRe.ReplaceAllString(msg, "")
	msg = absPathRe.ReplaceAllString(msg, pathPlaceholder)
	msg = winPathRe.ReplaceAllString(msg, pathPlaceholder)
	msg = homeRefRe.ReplaceAllString(msg, pathPlaceholder)
	msg = lineColRe.ReplaceAllString(msg, "")
	msg = strings.Join(strings.Fields(msg), " ")
	return msg
}
