package permission

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/types"
)

// Service answers "may this (path, operation) pair proceed?". Session grants
// are held in an in-memory map and checked before the persistent store: the
// lookup is cheaper, and it lets a user escalate temporarily without
// persisting anything.
type Service struct {
	mu      sync.RWMutex
	session map[string]Grant
	store   *Store
}

// NewService creates a Service backed by store. A nil store is allowed;
// persistent grants are then unavailable and reported as transient failures.
func NewService(store *Store) *Service {
	return &Service{
		session: make(map[string]Grant),
		store:   store,
	}
}

// Check returns the grant covering the exact (path, operation) pair, or nil
// when no grant exists. Session grants win over persistent ones.
func (s *Service) Check(ctx context.Context, path string, op types.Operation) (*Grant, error) {
	s.mu.RLock()
	g, ok := s.session[Key(path, op)]
	s.mu.RUnlock()
	if ok {
		return &g, nil
	}
	if s.store == nil {
		return nil, nil
	}
	return s.store.Get(ctx, path, op)
}

// Require is the failing variant of Check, used by validation chains.
func (s *Service) Require(ctx context.Context, path string, op types.Operation) error {
	g, err := s.Check(ctx, path, op)
	if err != nil {
		return err
	}
	if g == nil {
		return errdefs.AccessDenied(string(op), "permission has not been granted for this operation")
	}
	return nil
}

// Grant records a capability. Session grants go into the in-memory map;
// persistent grants upsert into the store.
func (s *Service) Grant(ctx context.Context, path string, op types.Operation, scope types.Scope) error {
	if !op.Valid() {
		return errdefs.Validation("permission.Grant", "unknown operation %q", string(op))
	}
	switch scope {
	case types.ScopeSession:
		s.mu.Lock()
		s.session[Key(path, op)] = Grant{
			Path:      path,
			Operation: op,
			Scope:     types.ScopeSession,
			CreatedAt: time.Now().UTC(),
		}
		s.mu.Unlock()
		log.Info("session grant: %s %s", op, path)
		return nil
	case types.ScopePersistent:
		if s.store == nil {
			return errdefs.Transient("permission.Grant", errStoreUnavailable)
		}
		if err := s.store.Upsert(ctx, path, op); err != nil {
			return err
		}
		log.Info("persistent grant: %s %s", op, path)
		return nil
	default:
		return errdefs.Validation("permission.Grant", "unknown scope %q", string(scope))
	}
}

// Revoke removes the pair from both the session map and the store.
func (s *Service) Revoke(ctx context.Context, path string, op types.Operation) error {
	s.mu.Lock()
	delete(s.session, Key(path, op))
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Delete(ctx, path, op)
}

// List merges session and persistent grants. When both scopes hold the same
// pair, both entries are returned; the caller can see the duplication.
func (s *Service) List(ctx context.Context) ([]Grant, error) {
	s.mu.RLock()
	merged := make([]Grant, 0, len(s.session))
	for _, g := range s.session {
		merged = append(merged, g)
	}
	s.mu.RUnlock()
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Path != merged[j].Path {
			return merged[i].Path < merged[j].Path
		}
		return merged[i].Operation < merged[j].Operation
	})

	if s.store != nil {
		persistent, err := s.store.List(ctx)
		if err != nil {
			return nil, err
		}
		merged = append(merged, persistent...)
	}
	return merged, nil
}

// ClearSession empties the session map. Persistent grants are untouched.
func (s *Service) ClearSession() {
	s.mu.Lock()
	n := len(s.session)
	s.session = make(map[string]Grant)
	s.mu.Unlock()
	if n > 0 {
		log.Info("cleared %d session grants", n)
	}
}

var errStoreUnavailable = errors.New("grant store unavailable")
