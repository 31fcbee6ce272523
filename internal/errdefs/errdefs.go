// Package errdefs defines the error taxonomy shared by every warden
// component. Callers classify failures with errors.As / the Is* helpers;
// the gatekeeper decides what, if anything, crosses the trust boundary.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies a boundary failure.
type Kind int

const (
	// KindUnknown is an unclassified internal failure.
	KindUnknown Kind = iota
	// KindAccessDenied covers sensitive paths, workspace violations, missing
	// permissions, blocked commands and disallowed URLs. Never retried.
	KindAccessDenied
	// KindValidation is a malformed input, rejected before any side effect.
	KindValidation
	// KindResourceLimit is an oversized read/write or a capped result set.
	KindResourceLimit
	// KindTimeout means a spawned process exceeded its deadline and was killed.
	KindTimeout
	// KindTransient is a failure the caller may retry (target missing,
	// store unavailable).
	KindTransient
)

// String returns the kind name used in audit entries and logs.
func (k Kind) String() string {
	switch k {
	case KindAccessDenied:
		return "access_denied"
	case KindValidation:
		return "validation"
	case KindResourceLimit:
		return "resource_limit"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified boundary error. Op names the operation that failed;
// Msg is the caller-facing message and must never contain internal paths.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + e.Msg
	}
	return e.Msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// AccessDenied builds a KindAccessDenied error. The message is deliberately
// generic: it must not echo which denylist entry matched.
func AccessDenied(op, format string, args ...any) *Error {
	return &Error{Kind: KindAccessDenied, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ResourceLimit builds a KindResourceLimit error. The limit itself is stated
// so the caller can adapt.
func ResourceLimit(op, format string, args ...any) *Error {
	return &Error{Kind: KindResourceLimit, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Timeout builds a KindTimeout error.
func Timeout(op, format string, args ...any) *Error {
	return &Error{Kind: KindTimeout, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps a retryable failure, preserving the cause for errors.Is.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Msg: err.Error(), Err: err}
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAccessDenied reports whether err is classified KindAccessDenied.
func IsAccessDenied(err error) bool { return KindOf(err) == KindAccessDenied }

// IsValidation reports whether err is classified KindValidation.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsResourceLimit reports whether err is classified KindResourceLimit.
func IsResourceLimit(err error) bool { return KindOf(err) == KindResourceLimit }

// IsTimeout reports whether err is classified KindTimeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsTransient reports whether err is classified KindTransient.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
