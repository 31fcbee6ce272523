// Package boundary is the guarded surface the embedding agent host calls.
// Every operation runs behind the gatekeeper: caller verification, rate
// limiting, audit recording, and error sanitization happen here, so the
// host never touches the inner components directly.
package boundary

import (
	"context"

	"github.com/wardenhq/warden/internal/gatekeeper"
	"github.com/wardenhq/warden/internal/ops"
	"github.com/wardenhq/warden/internal/permission"
	"github.com/wardenhq/warden/internal/sandbox"
	"github.com/wardenhq/warden/internal/types"
)

// Service wraps the operation set behind the gatekeeper.
type Service struct {
	keeper *gatekeeper.Gatekeeper
	ops    *ops.Ops
}

// NewService creates the guarded surface. The gatekeeper must already be
// initialized with the trusted caller token.
func NewService(keeper *gatekeeper.Gatekeeper, operations *ops.Ops) *Service {
	return &Service{keeper: keeper, ops: operations}
}

func (s *Service) ReadFile(ctx context.Context, caller, path string) (*ops.ReadResult, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "read_file", path, func() (*ops.ReadResult, error) {
		return s.ops.ReadFile(ctx, path)
	})
}

func (s *Service) ReadFileBlob(ctx context.Context, caller, path string) (string, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "read_file_blob", path, func() (string, error) {
		return s.ops.ReadFileBlob(ctx, path)
	})
}

func (s *Service) WriteFile(ctx context.Context, caller, path string, content []byte) error {
	_, err := gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "write_file", path, func() (struct{}, error) {
		return struct{}{}, s.ops.WriteFile(ctx, path, content)
	})
	return err
}

func (s *Service) ListDirectory(ctx context.Context, caller, path string) ([]ops.DirEntry, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "list_directory", path, func() ([]ops.DirEntry, error) {
		return s.ops.ListDirectory(ctx, path)
	})
}

func (s *Service) Glob(ctx context.Context, caller, dir, pattern string) ([]string, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "glob", dir, func() ([]string, error) {
		return s.ops.Glob(ctx, dir, pattern)
	})
}

func (s *Service) Grep(ctx context.Context, caller, dir, pattern string) ([]ops.GrepMatch, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "grep", dir, func() ([]ops.GrepMatch, error) {
		return s.ops.Grep(ctx, dir, pattern)
	})
}

func (s *Service) Execute(ctx context.Context, caller string, req sandbox.Request) (*sandbox.Result, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "execute_command", req.Command, func() (*sandbox.Result, error) {
		return s.ops.Execute(ctx, req)
	})
}

func (s *Service) Navigate(ctx context.Context, caller, rawURL string) (*ops.PageResult, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "browser_navigate", rawURL, func() (*ops.PageResult, error) {
		return s.ops.Navigate(ctx, rawURL)
	})
}

func (s *Service) Export(ctx context.Context, caller, path string, content []byte) error {
	_, err := gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "export", path, func() (struct{}, error) {
		return struct{}{}, s.ops.Export(path, content)
	})
	return err
}

// Permission management is attributed to the user: grants and revocations
// originate from approval prompts the human answered, not from the agent.

func (s *Service) GrantPermission(ctx context.Context, caller, path string, op types.Operation, scope types.Scope) error {
	_, err := gatekeeper.Guard(s.keeper, caller, types.ActorUser, "grant_permission", permission.Key(path, op), func() (struct{}, error) {
		return struct{}{}, s.ops.GrantPermission(ctx, path, op, scope)
	})
	return err
}

func (s *Service) RevokePermission(ctx context.Context, caller, path string, op types.Operation) error {
	_, err := gatekeeper.Guard(s.keeper, caller, types.ActorUser, "revoke_permission", permission.Key(path, op), func() (struct{}, error) {
		return struct{}{}, s.ops.RevokePermission(ctx, path, op)
	})
	return err
}

func (s *Service) CheckPermission(ctx context.Context, caller, path string, op types.Operation) (*permission.Grant, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorAgent, "check_permission", permission.Key(path, op), func() (*permission.Grant, error) {
		return s.ops.CheckPermission(ctx, path, op)
	})
}

func (s *Service) ListPermissions(ctx context.Context, caller string) ([]permission.Grant, error) {
	return gatekeeper.Guard(s.keeper, caller, types.ActorUser, "list_permissions", "", func() ([]permission.Grant, error) {
		return s.ops.ListPermissions(ctx)
	})
}

// ClearSession ends the session: session grants and session domains are
// dropped. Attributed to the system.
func (s *Service) ClearSession(caller string) error {
	_, err := gatekeeper.Guard(s.keeper, caller, types.ActorSystem, "clear_session", "", func() (struct{}, error) {
		s.ops.ClearSession()
		return struct{}{}, nil
	})
	return err
}
