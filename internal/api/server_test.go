package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wardenhq/warden/internal/audit"
	bsvc "github.com/wardenhq/warden/internal/boundary"
	"github.com/wardenhq/warden/internal/domains"
	"github.com/wardenhq/warden/internal/gatekeeper"
	"github.com/wardenhq/warden/internal/ops"
	"github.com/wardenhq/warden/internal/permission"
	"github.com/wardenhq/warden/internal/proctrack"
	"github.com/wardenhq/warden/internal/sandbox"
	"github.com/wardenhq/warden/internal/types"
	"github.com/wardenhq/warden/internal/workspace"
)

const testCaller = "test-caller-token"

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	auditLog, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { auditLog.Close() })

	store, err := permission.OpenStore(filepath.Join(dir, "grants.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	boundary := workspace.NewBoundaryWithExceptions(nil)
	perms := permission.NewService(store)
	allowlist := domains.NewAllowlist([]string{"github.com"})
	tracker := proctrack.NewTracker()
	executor := sandbox.NewExecutor(boundary, perms, tracker, sandbox.Options{})
	operations := ops.New(boundary, perms, executor, allowlist, nil, ops.Limits{})

	keeper := gatekeeper.New(nil, auditLog)
	if err := keeper.Initialize(testCaller); err != nil {
		t.Fatal(err)
	}

	return NewServer(boundary, perms, auditLog, allowlist, tracker,
		operations, bsvc.NewService(keeper, operations))
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
		}
	}
	return w, parsed
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	w, body := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
}

func TestStatus(t *testing.T) {
	s := testServer(t)
	w, body := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := body["workspace_root"]; !ok {
		t.Error("missing workspace_root")
	}
	if body["processes"] != float64(0) {
		t.Errorf("processes = %v", body["processes"])
	}
}

func TestAuditVerify(t *testing.T) {
	s := testServer(t)
	if err := s.auditLog.Append(audit.Input{
		Actor:  types.ActorAgent,
		Action: "read_file",
		Target: "/tmp/x",
		Result: types.ResultSuccess,
	}); err != nil {
		t.Fatal(err)
	}

	w, body := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/audit/verify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["valid"] != true {
		t.Errorf("report = %v", body)
	}
}

func TestScanEndpoint(t *testing.T) {
	s := testServer(t)

	w, body := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/scan",
		`{"text":"reach me at bob@example.com, SSN 078-05-1120"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	sanitized, _ := body["sanitized_text"].(string)
	if strings.Contains(sanitized, "bob@example.com") || strings.Contains(sanitized, "078-05-1120") {
		t.Errorf("PII survived: %q", sanitized)
	}
	if body["pii_patterns"] == nil {
		t.Errorf("no PII findings reported: %v", body)
	}

	w, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/v1/scan", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing text status = %d, want 400", w.Code)
	}
}

func TestPermissionsListAndRevoke(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()
	if err := s.perms.Grant(ctx, "/ws/a.txt", types.OpReadFile, types.ScopeSession); err != nil {
		t.Fatal(err)
	}

	w, body := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/permissions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v", body["count"])
	}

	w, _ = doJSON(t, s.Handler(), http.MethodDelete, "/api/v1/permissions",
		`{"path":"/ws/a.txt","operation":"read_file"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d", w.Code)
	}

	_, body = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/permissions", "")
	if body["count"] != float64(0) {
		t.Errorf("count after revoke = %v", body["count"])
	}
}

func TestPermissionRevokeRejectsUnknownOperation(t *testing.T) {
	s := testServer(t)
	w, _ := doJSON(t, s.Handler(), http.MethodDelete, "/api/v1/permissions",
		`{"path":"/ws/a.txt","operation":"format_disk"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDomainsAddListRemove(t *testing.T) {
	s := testServer(t)

	w, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/domains",
		`{"domain":"example.com","scope":"persistent"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d", w.Code)
	}

	_, body := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/domains", "")
	perm, _ := body["permanent"].([]any)
	found := false
	for _, d := range perm {
		if d == "example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("permanent = %v", body["permanent"])
	}

	w, _ = doJSON(t, s.Handler(), http.MethodDelete, "/api/v1/domains",
		`{"domain":"example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
}

func TestNilComponentsReport503(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, nil, nil, nil)
	for _, path := range []string{"/api/v1/audit/verify", "/api/v1/permissions", "/api/v1/domains"} {
		w, _ := doJSON(t, s.Handler(), http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}

func TestBodySizeLimit(t *testing.T) {
	s := testServer(t)
	big := strings.Repeat("x", MaxBodySize+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/domains", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func doAgent(t *testing.T, h http.Handler, caller, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(CallerHeader, caller)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
		}
	}
	return w, parsed
}

func TestAgentRejectsWrongCaller(t *testing.T) {
	s := testServer(t)
	w, body := doAgent(t, s.Handler(), "wrong-token", http.MethodPost, "/agent/v1/read",
		`{"path":"/tmp/x"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	msg, _ := body["error"].(string)
	if strings.Contains(msg, testCaller) || strings.Contains(msg, "wrong-token") {
		t.Errorf("error echoes a token: %q", msg)
	}
}

func TestAgentReadWriteFlow(t *testing.T) {
	s := testServer(t)
	path := filepath.Join(t.TempDir(), "note.txt")

	// No grant yet: denied, not an I/O error.
	w, _ := doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/write",
		`{"path":"`+path+`","content":"aGVsbG8gd29ybGQ="}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("ungranted write status = %d, want 403", w.Code)
	}

	for _, op := range []string{"write_file", "read_file"} {
		w, _ = doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/permissions/grant",
			`{"path":"`+path+`","operation":"`+op+`","scope":"session"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("grant %s status = %d", op, w.Code)
		}
	}

	w, _ = doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/write",
		`{"path":"`+path+`","content":"aGVsbG8gd29ybGQ="}`)
	if w.Code != http.StatusOK {
		t.Fatalf("write status = %d", w.Code)
	}

	w, body := doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/read",
		`{"path":"`+path+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("read status = %d", w.Code)
	}
	if content, _ := body["content"].(string); content != "hello world" {
		t.Errorf("content = %q", content)
	}

	// Everything above went through the gatekeeper, so the chain must hold.
	_, report := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/audit/verify", "")
	if report["valid"] != true {
		t.Errorf("audit chain broken after agent flow: %v", report)
	}
}

func TestAgentExecuteDeniedCommand(t *testing.T) {
	s := testServer(t)
	dir := t.TempDir()
	w, body := doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/execute",
		`{"command":"echo hi; rm -rf /","dir":"`+dir+`"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "rm") {
		t.Errorf("denial should name the program: %q", msg)
	}
}

func TestAgentNavigateDomainNotAllowed(t *testing.T) {
	s := testServer(t)
	w, _ := doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/navigate",
		`{"url":"https://evil.example.net/"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestAgentClearSession(t *testing.T) {
	s := testServer(t)
	path := "/ws/session.txt"
	w, _ := doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/permissions/grant",
		`{"path":"`+path+`","operation":"read_file","scope":"session"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("grant status = %d", w.Code)
	}

	w, _ = doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/session/clear", "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}

	_, body := doAgent(t, s.Handler(), testCaller, http.MethodPost, "/agent/v1/permissions/check",
		`{"path":"`+path+`","operation":"read_file"}`)
	if body["granted"] != false {
		t.Errorf("session grant survived clear: %v", body)
	}
}
