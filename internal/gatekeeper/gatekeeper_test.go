package gatekeeper

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/types"
)

func newTestGatekeeper(t *testing.T, limiter *RateLimiter) (*Gatekeeper, *audit.Log) {
	t.Helper()
	l, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return New(limiter, l), l
}

func TestFailsClosedUninitialized(t *testing.T) {
	g, _ := newTestGatekeeper(t, nil)

	_, err := Guard(g, "anyone", types.ActorAgent, "read_file", "/x", func() (string, error) {
		t.Fatal("operation ran despite uninitialized gatekeeper")
		return "", nil
	})
	if !errdefs.IsAccessDenied(err) {
		t.Errorf("got %v, want access denied", err)
	}
}

func TestFailsClosedWrongCaller(t *testing.T) {
	g, _ := newTestGatekeeper(t, nil)
	if err := g.Initialize("trusted-token"); err != nil {
		t.Fatal(err)
	}

	_, err := Guard(g, "imposter", types.ActorAgent, "read_file", "/x", func() (string, error) {
		t.Fatal("operation ran for wrong caller")
		return "", nil
	})
	if !errdefs.IsAccessDenied(err) {
		t.Errorf("got %v, want access denied", err)
	}
}

func TestInitializeOnce(t *testing.T) {
	g, _ := newTestGatekeeper(t, nil)
	if err := g.Initialize("first"); err != nil {
		t.Fatal(err)
	}
	if err := g.Initialize("second"); !errdefs.IsAccessDenied(err) {
		t.Errorf("re-initialize = %v, want access denied", err)
	}
	if err := g.Initialize(""); err == nil {
		t.Error("empty caller token accepted")
	}
}

func TestInitializeFirstWinsUnderConcurrency(t *testing.T) {
	g, _ := newTestGatekeeper(t, nil)

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Initialize(fmt.Sprintf("token-%d", i))
		}(i)
	}
	wg.Wait()

	succeeded := -1
	for i, err := range errs {
		if err == nil {
			if succeeded >= 0 {
				t.Fatal("more than one Initialize succeeded")
			}
			succeeded = i
		} else if !errdefs.IsAccessDenied(err) {
			t.Errorf("Initialize %d: got %v, want access denied", i, err)
		}
	}
	if succeeded < 0 {
		t.Fatal("no Initialize succeeded")
	}

	// The winner's token is the one Guard honors.
	if _, err := Guard(g, fmt.Sprintf("token-%d", succeeded), types.ActorAgent, "read_file", "/x", func() (string, error) {
		return "ok", nil
	}); err != nil {
		t.Errorf("winning token rejected: %v", err)
	}
}

func TestGuardPassesResultThrough(t *testing.T) {
	g, _ := newTestGatekeeper(t, nil)
	if err := g.Initialize("t"); err != nil {
		t.Fatal(err)
	}

	got, err := Guard(g, "t", types.ActorAgent, "read_file", "/x", func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestGuardSanitizesErrors(t *testing.T) {
	g, _ := newTestGatekeeper(t, nil)
	if err := g.Initialize("t"); err != nil {
		t.Fatal(err)
	}

	_, err := Guard(g, "t", types.ActorAgent, "read_file", "/x", func() (string, error) {
		return "", fmt.Errorf("open /home/alice/secrets/vault.txt: permission denied")
	})
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), "/home/alice") {
		t.Errorf("internal path leaked: %q", err.Error())
	}
}

func TestGuardPreservesErrorKind(t *testing.T) {
	g, _ := newTestGatekeeper(t, nil)
	if err := g.Initialize("t"); err != nil {
		t.Fatal(err)
	}

	_, err := Guard(g, "t", types.ActorAgent, "read_file", "/x", func() (string, error) {
		return "", errdefs.AccessDenied("read_file", "permission has not been granted for this operation")
	})
	if !errdefs.IsAccessDenied(err) {
		t.Errorf("sanitized error lost its kind: %v", err)
	}
}

func TestGuardAudits(t *testing.T) {
	g, l := newTestGatekeeper(t, nil)
	if err := g.Initialize("t"); err != nil {
		t.Fatal(err)
	}

	if _, err := Guard(g, "t", types.ActorAgent, "read_file", "/a", func() (string, error) { return "ok", nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := Guard(g, "imposter", types.ActorAgent, "read_file", "/b", func() (string, error) { return "", nil }); err == nil {
		t.Fatal("want denial")
	}

	rep, err := l.VerifyIntegrity()
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid {
		t.Errorf("audit log invalid, broken at %d", rep.BrokenAt)
	}
	if rep.Entries != 2 {
		t.Errorf("Entries = %d, want 2 (success and denial both logged)", rep.Entries)
	}
}

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter(3, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !r.Allow() {
			t.Fatalf("call %d rejected inside capacity", i)
		}
	}
	if r.Allow() {
		t.Fatal("call over capacity allowed")
	}

	// Advancing past the window frees capacity via lazy trimming.
	now = now.Add(61 * time.Second)
	if !r.Allow() {
		t.Error("call rejected after window elapsed")
	}
}

func TestGuardRateLimits(t *testing.T) {
	g, _ := newTestGatekeeper(t, NewRateLimiter(1, time.Minute))
	if err := g.Initialize("t"); err != nil {
		t.Fatal(err)
	}

	if _, err := Guard(g, "t", types.ActorAgent, "read_file", "/a", func() (string, error) { return "", nil }); err != nil {
		t.Fatal(err)
	}
	_, err := Guard(g, "t", types.ActorAgent, "read_file", "/b", func() (string, error) { return "", nil })
	if !errdefs.IsResourceLimit(err) {
		t.Errorf("second call = %v, want resource limit", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		mustNot  []string
		fallback bool
	}{
		{
			name:    "absolute path",
			err:     errors.New("read /usr/local/lib/warden/config.yaml failed"),
			mustNot: []string{"/usr/local", "config.yaml"},
		},
		{
			name:    "home reference",
			err:     errors.New("cannot open ~/secrets/key"),
			mustNot: []string{"~/"},
		},
		{
			name:    "line column",
			err:     errors.New("parse failed at input.go:14:7"),
			mustNot: []string{":14:7"},
		},
		{
			name:     "nil error",
			err:      nil,
			fallback: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.err).Error()
			if tt.fallback && got != genericMessage {
				t.Errorf("Sanitize(nil) = %q, want %q", got, genericMessage)
			}
			for _, bad := range tt.mustNot {
				if strings.Contains(got, bad) {
					t.Errorf("sanitized message still contains %q: %q", bad, got)
				}
			}
		})
	}
}
