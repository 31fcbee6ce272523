// Package types defines common type-safe enums used across the codebase.
package types

// Actor identifies who initiated a privileged action.
type Actor string

const (
	// ActorAgent is the autonomous model proposing an action.
	ActorAgent Actor = "agent"
	// ActorUser is the human operator.
	ActorUser Actor = "user"
	// ActorSystem is warden itself (startup, cleanup, escalation).
	ActorSystem Actor = "system"
)

// Valid returns true if the Actor is a known valid value.
func (a Actor) Valid() bool {
	return a == ActorAgent || a == ActorUser || a == ActorSystem
}

// Result classifies the outcome of a privileged action.
type Result string

const (
	// ResultSuccess means the action completed.
	ResultSuccess Result = "success"
	// ResultDenied means a validation stage rejected the action.
	ResultDenied Result = "denied"
	// ResultError means the action was allowed but failed.
	ResultError Result = "error"
)

// Valid returns true if the Result is a known valid value.
func (r Result) Valid() bool {
	return r == ResultSuccess || r == ResultDenied || r == ResultError
}

// Scope is the lifetime of a capability grant.
type Scope string

const (
	// ScopeSession grants are held in memory and cleared on session end.
	ScopeSession Scope = "session"
	// ScopePersistent grants are durable and survive restarts.
	ScopePersistent Scope = "persistent"
)

// Valid returns true if the Scope is a known valid value.
func (s Scope) Valid() bool {
	return s == ScopeSession || s == ScopePersistent
}

// Operation names a privileged operation family. Permission grants are keyed
// by the exact (path, operation) pair; there is no operation hierarchy.
type Operation string

const (
	OpReadFile      Operation = "read_file"
	OpWriteFile     Operation = "write_file"
	OpListDirectory Operation = "list_directory"
	OpGlob          Operation = "glob"
	OpGrep          Operation = "grep"
	// OpBash covers shell command execution; the sandbox checks the working
	// directory against this operation.
	OpBash     Operation = "bash"
	OpNavigate Operation = "browser_navigate"
	OpExport   Operation = "export"
)

// Valid returns true if the Operation is a known valid value.
func (o Operation) Valid() bool {
	switch o {
	case OpReadFile, OpWriteFile, OpListDirectory, OpGlob, OpGrep, OpBash, OpNavigate, OpExport:
		return true
	}
	return false
}
