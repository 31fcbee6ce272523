// Package ops implements the privileged operation families, composing the
// denylist, workspace boundary, permission service, scanners, sandbox, and
// domain allowlist into per-operation validation chains.
package ops

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/wardenhq/warden/internal/domains"
	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/permission"
	"github.com/wardenhq/warden/internal/sandbox"
	"github.com/wardenhq/warden/internal/scan"
	"github.com/wardenhq/warden/internal/types"
	"github.com/wardenhq/warden/internal/workspace"
)

var log = logger.New("ops")

// Limits bound resource usage per operation.
type Limits struct {
	MaxReadBytes  int64
	MaxWriteBytes int64
	MaxResults    int
	MaxPageBytes  int64
}

// DefaultLimits are applied where the config leaves a limit zero.
var DefaultLimits = Limits{
	MaxReadBytes:  10 * 1024 * 1024,
	MaxWriteBytes: 10 * 1024 * 1024,
	MaxResults:    1000,
	MaxPageBytes:  2 * 1024 * 1024,
}

// Ops owns the operation implementations. Everything here assumes it runs
// behind the gatekeeper: caller identity and rate limiting are already done.
type Ops struct {
	boundary *workspace.Boundary
	perms    *permission.Service
	executor *sandbox.Executor
	domains  *domains.Allowlist
	files    *scan.FileFilter
	limits   Limits
}

// New wires an Ops to its dependencies. A nil files filter means the
// built-in scan exemptions only; zero fields in limits fall back to
// DefaultLimits.
func New(boundary *workspace.Boundary, perms *permission.Service, executor *sandbox.Executor, allow *domains.Allowlist, files *scan.FileFilter, limits Limits) *Ops {
	if limits.MaxReadBytes <= 0 {
		limits.MaxReadBytes = DefaultLimits.MaxReadBytes
	}
	if limits.MaxWriteBytes <= 0 {
		limits.MaxWriteBytes = DefaultLimits.MaxWriteBytes
	}
	if limits.MaxResults <= 0 {
		limits.MaxResults = DefaultLimits.MaxResults
	}
	if limits.MaxPageBytes <= 0 {
		limits.MaxPageBytes = DefaultLimits.MaxPageBytes
	}
	if files == nil {
		files = scan.NewFileFilter(nil)
	}
	return &Ops{boundary: boundary, perms: perms, executor: executor, domains: allow, files: files, limits: limits}
}

// ReadResult is the outcome of a text read: content after injection
// sanitization and credential redaction, plus the scan findings.
type ReadResult struct {
	Content      string   `json:"content"`
	PatternNames []string `json:"pattern_names,omitempty"`
}

// ReadFile retrieves file content as text. Validation order: sensitive-path
// denylist, workspace boundary, permission, size limit. Text content then
// goes through the injection scanner and credential redaction before it is
// returned to the model.
func (o *Ops) ReadFile(ctx context.Context, path string) (*ReadResult, error) {
	const op = "read_file"

	data, err := o.readRaw(ctx, op, path)
	if err != nil {
		return nil, err
	}

	text := string(data)
	res := &ReadResult{Content: text}
	if o.files.ShouldScan(path) {
		inj := scan.ScanForInjection(text)
		if inj.HasInjection {
			log.Warn("injection patterns in %s: %v", path, inj.PatternNames)
			res.PatternNames = inj.PatternNames
		}
		res.Content = inj.SanitizedText
	}
	res.Content = scan.RedactCredentials(res.Content)
	return res, nil
}

// ReadFileBlob retrieves file content base64-encoded, for binary files. The
// validation chain matches ReadFile; text scanning is skipped because the
// payload is opaque to the model until decoded.
func (o *Ops) ReadFileBlob(ctx context.Context, path string) (string, error) {
	const op = "read_file"

	data, err := o.readRaw(ctx, op, path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (o *Ops) readRaw(ctx context.Context, op, path string) ([]byte, error) {
	if err := workspace.ValidateNotSensitive(op, path); err != nil {
		return nil, err
	}
	if err := o.boundary.ValidateWorkspacePath(op, path); err != nil {
		return nil, err
	}
	if err := o.perms.Require(ctx, path, types.OpReadFile); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errdefs.Transient(op, err)
	}
	if info.IsDir() {
		return nil, errdefs.Validation(op, "target is a directory")
	}
	if info.Size() > o.limits.MaxReadBytes {
		return nil, errdefs.ResourceLimit(op, "file exceeds the %d byte read limit", o.limits.MaxReadBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Transient(op, err)
	}
	return data, nil
}

// WriteFile persists content. Validation order: sensitive-path denylist,
// workspace boundary, permission, size limit. No partial write happens on a
// rejected call.
func (o *Ops) WriteFile(ctx context.Context, path string, content []byte) error {
	const op = "write_file"

	if err := workspace.ValidateNotSensitive(op, path); err != nil {
		return err
	}
	if err := o.boundary.ValidateWorkspacePath(op, path); err != nil {
		return err
	}
	if err := o.perms.Require(ctx, path, types.OpWriteFile); err != nil {
		return err
	}
	if int64(len(content)) > o.limits.MaxWriteBytes {
		return errdefs.ResourceLimit(op, "content exceeds the %d byte write limit", o.limits.MaxWriteBytes)
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return errdefs.Transient(op, err)
	}
	return nil
}

// Execute runs a command through the sandbox.
func (o *Ops) Execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, error) {
	return o.executor.Execute(ctx, req)
}

// Export writes derived artifacts to a user-chosen destination. The only
// validation is the sensitive-directory denylist on the destination: the
// path is the user's choice and deliberately not bound to the workspace.
func (o *Ops) Export(path string, content []byte) error {
	const op = "export"

	if workspace.IsSensitiveDirectory(path) || workspace.IsSensitivePath(path) {
		log.Warn("export to sensitive destination denied: %s", path)
		return errdefs.AccessDenied(op, "export destination is not permitted")
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return errdefs.Transient(op, err)
	}
	return nil
}

// ScanReport aggregates the three scanner engines over one text blob. The
// engines are independent; the report carries the fully cleaned text plus
// which pattern families fired in each.
type ScanReport struct {
	SanitizedText      string   `json:"sanitized_text"`
	InjectionPatterns  []string `json:"injection_patterns,omitempty"`
	CredentialPatterns []string `json:"credential_patterns,omitempty"`
	PIIPatterns        []string `json:"pii_patterns,omitempty"`
}

// ScanText screens caller-supplied text with every scanner engine: injection
// sanitization first, then credential redaction, then PII redaction. The
// embedding host uses it on text that moves between the model and the outside
// world without passing through a file or command operation.
func (o *Ops) ScanText(text string) *ScanReport {
	inj := scan.ScanForInjection(text)
	cred := scan.ScanForCredentials(inj.SanitizedText)
	pii := scan.ScanForPII(cred.RedactedText)
	if inj.HasInjection {
		log.Warn("injection patterns in scanned text: %v", inj.PatternNames)
	}
	return &ScanReport{
		SanitizedText:      pii.RedactedText,
		InjectionPatterns:  inj.PatternNames,
		CredentialPatterns: cred.PatternNames,
		PIIPatterns:        pii.PatternNames,
	}
}

// Permission management passthroughs. Validation beyond caller identity is
// the permission service's own.

func (o *Ops) GrantPermission(ctx context.Context, path string, op types.Operation, scope types.Scope) error {
	return o.perms.Grant(ctx, path, op, scope)
}

func (o *Ops) CheckPermission(ctx context.Context, path string, op types.Operation) (*permission.Grant, error) {
	return o.perms.Check(ctx, path, op)
}

func (o *Ops) RevokePermission(ctx context.Context, path string, op types.Operation) error {
	return o.perms.Revoke(ctx, path, op)
}

func (o *Ops) ListPermissions(ctx context.Context) ([]permission.Grant, error) {
	return o.perms.List(ctx)
}

// ClearSession drops session permission grants and session domain
// allowances, the context-switch reset.
func (o *Ops) ClearSession() {
	o.perms.ClearSession()
	o.domains.ClearSession()
}
