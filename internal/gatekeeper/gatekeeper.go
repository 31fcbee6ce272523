// Package gatekeeper wraps every privileged operation: it validates the
// caller's identity, applies rate limiting, records the outcome in the
// audit log, and sanitizes any error before it crosses the trust boundary.
package gatekeeper

import (
	"sync"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/types"
)

var log = logger.New("gatekeeper")

// Gatekeeper fails closed: until Initialize registers the trusted caller,
// every call is rejected, and a caller token that does not match the
// registered one is rejected the same way.
type Gatekeeper struct {
	mu            sync.RWMutex
	trustedCaller string
	limiter       *RateLimiter
	auditLog      *audit.Log
}

// New creates a Gatekeeper. limiter may be nil to disable rate limiting;
// auditLog may not be nil.
func New(limiter *RateLimiter, auditLog *audit.Log) *Gatekeeper {
	return &Gatekeeper{limiter: limiter, auditLog: auditLog}
}

// Initialize registers the single trusted caller token. The first caller to
// initialize wins; re-initialization is rejected so a compromised later
// caller cannot swap the identity.
func (g *Gatekeeper) Initialize(caller string) error {
	if caller == "" {
		return errdefs.Validation("gatekeeper.Initialize", "caller token must not be empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.trustedCaller != "" {
		return errdefs.AccessDenied("gatekeeper.Initialize", "gatekeeper is already initialized")
	}
	g.trustedCaller = caller
	log.Info("trusted caller registered")
	return nil
}

// authorize checks identity then the rate limit.
func (g *Gatekeeper) authorize(caller, action string) error {
	g.mu.RLock()
	trusted := g.trustedCaller
	g.mu.RUnlock()

	if trusted == "" {
		return errdefs.AccessDenied(action, "security layer is not initialized")
	}
	if caller != trusted {
		return errdefs.AccessDenied(action, "caller is not authorized")
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return errdefs.ResourceLimit(action, "rate limit exceeded, try again shortly")
	}
	return nil
}

// Guard runs fn behind the full gatekeeper pipeline for the given caller.
// The raw error is logged for operators and recorded in the audit log; the
// caller only ever sees the sanitized form.
func Guard[T any](g *Gatekeeper, caller string, actor types.Actor, action, target string, fn func() (T, error)) (T, error) {
	var zero T

	if err := g.authorize(caller, action); err != nil {
		log.Warn("%s rejected: %v", action, err)
		g.record(actor, action, target, types.ResultDenied, err)
		return zero, Sanitize(err)
	}

	out, err := fn()
	if err != nil {
		log.Error("%s failed: %v", action, err)
		result := types.ResultError
		if errdefs.IsAccessDenied(err) {
			result = types.ResultDenied
		}
		g.record(actor, action, target, result, err)
		return zero, Sanitize(err)
	}

	g.record(actor, action, target, types.ResultSuccess, nil)
	return out, nil
}

func (g *Gatekeeper) record(actor types.Actor, action, target string, result types.Result, err error) {
	details := ""
	if err != nil {
		details = errdefs.KindOf(err).String()
	}
	if logErr := g.auditLog.Append(audit.Input{
		Actor:   actor,
		Action:  action,
		Target:  target,
		Result:  result,
		Details: details,
	}); logErr != nil {
		// Audit failure must not fail the guarded operation, but it is
		// loud: a silent audit gap defeats the log's purpose.
		log.Error("audit append failed for %s: %v", action, logErr)
	}
}
