// Package api serves the localhost-only management API: runtime status,
// audit verification, and grant/domain inspection. It is an operator
// surface, not an agent surface; agent requests go through the gatekeeper.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/audit"
	bsvc "github.com/wardenhq/warden/internal/boundary"
	"github.com/wardenhq/warden/internal/domains"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/ops"
	"github.com/wardenhq/warden/internal/permission"
	"github.com/wardenhq/warden/internal/proctrack"
	"github.com/wardenhq/warden/internal/types"
	"github.com/wardenhq/warden/internal/workspace"
)

var log = logger.New("api")

// Server handles HTTP requests for security management.
type Server struct {
	boundary  *workspace.Boundary
	perms     *permission.Service
	auditLog  *audit.Log
	allowlist *domains.Allowlist
	tracker   *proctrack.Tracker
	scanner   *ops.Ops
	guarded   *bsvc.Service
	router    *gin.Engine
	srv       *http.Server
}

// NewServer creates the management API server. Any component may be nil;
// its endpoints then report 503. When guarded is non-nil the agent surface
// is served under /agent/v1 as well.
func NewServer(boundary *workspace.Boundary, perms *permission.Service, auditLog *audit.Log, allowlist *domains.Allowlist, tracker *proctrack.Tracker, scanner *ops.Ops, guarded *bsvc.Service) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(SecurityHeaders())
	router.Use(BodySizeLimit(MaxBodySize))

	s := &Server{
		boundary:  boundary,
		perms:     perms,
		auditLog:  auditLog,
		allowlist: allowlist,
		tracker:   tracker,
		scanner:   scanner,
		guarded:   guarded,
		router:    router,
	}
	s.registerRoutes()
	s.registerAgentRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/audit/verify", s.handleAuditVerify)
		v1.POST("/scan", s.handleScan)
		v1.GET("/permissions", s.handlePermissionsList)
		v1.DELETE("/permissions", s.handlePermissionRevoke)
		v1.GET("/domains", s.handleDomainsList)
		v1.POST("/domains", s.handleDomainAdd)
		v1.DELETE("/domains", s.handleDomainRemove)
	}
}

// Serve binds to 127.0.0.1 only. The management API has no authentication
// of its own, so it must never be reachable from the network.
func (s *Server) Serve(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	log.Info("management API listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	success(c, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"workspace_root": "",
		"processes":      0,
	}
	if s.boundary != nil {
		status["workspace_root"] = s.boundary.Root()
	}
	if s.tracker != nil {
		status["processes"] = len(s.tracker.List())
	}
	if s.auditLog != nil {
		status["audit_path"] = s.auditLog.Path()
	}
	success(c, status)
}

func (s *Server) handleAuditVerify(c *gin.Context) {
	if s.auditLog == nil {
		fail(c, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	report, err := s.auditLog.VerifyIntegrity()
	if err != nil {
		log.Error("audit verification failed: %v", err)
		fail(c, http.StatusInternalServerError, "failed to verify audit log")
		return
	}
	success(c, report)
}

// scanRequest carries text the host wants screened before it crosses to or
// from the model.
type scanRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleScan(c *gin.Context) {
	if s.scanner == nil {
		fail(c, http.StatusServiceUnavailable, "scanners not configured")
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	success(c, s.scanner.ScanText(req.Text))
}

func (s *Server) handlePermissionsList(c *gin.Context) {
	if s.perms == nil {
		fail(c, http.StatusServiceUnavailable, "permission service not configured")
		return
	}
	grants, err := s.perms.List(c.Request.Context())
	if err != nil {
		log.Error("grant listing failed: %v", err)
		fail(c, http.StatusInternalServerError, "failed to list grants")
		return
	}
	if grants == nil {
		grants = []permission.Grant{}
	}
	success(c, gin.H{"grants": grants, "count": len(grants)})
}

// revokeRequest identifies one grant by its exact path/operation pair.
type revokeRequest struct {
	Path      string `json:"path" binding:"required"`
	Operation string `json:"operation" binding:"required"`
}

func (s *Server) handlePermissionRevoke(c *gin.Context) {
	if s.perms == nil {
		fail(c, http.StatusServiceUnavailable, "permission service not configured")
		return
	}
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	op := types.Operation(req.Operation)
	if !op.Valid() {
		fail(c, http.StatusBadRequest, "unknown operation")
		return
	}
	if err := s.perms.Revoke(c.Request.Context(), req.Path, op); err != nil {
		log.Error("grant revocation failed: %v", err)
		fail(c, http.StatusInternalServerError, "failed to revoke grant")
		return
	}
	success(c, gin.H{"revoked": true})
}

func (s *Server) handleDomainsList(c *gin.Context) {
	if s.allowlist == nil {
		fail(c, http.StatusServiceUnavailable, "domain allowlist not configured")
		return
	}
	permanent, session := s.allowlist.List()
	success(c, gin.H{"permanent": permanent, "session": session})
}

// domainRequest names a domain and the scope to apply it under.
type domainRequest struct {
	Domain string `json:"domain" binding:"required"`
	Scope  string `json:"scope"`
}

func (s *Server) handleDomainAdd(c *gin.Context) {
	if s.allowlist == nil {
		fail(c, http.StatusServiceUnavailable, "domain allowlist not configured")
		return
	}
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	switch types.Scope(req.Scope) {
	case types.ScopePersistent:
		s.allowlist.AllowPermanently(req.Domain)
	case types.ScopeSession, "":
		s.allowlist.AllowForSession(req.Domain)
	default:
		fail(c, http.StatusBadRequest, "unknown scope")
		return
	}
	success(c, gin.H{"added": true})
}

func (s *Server) handleDomainRemove(c *gin.Context) {
	if s.allowlist == nil {
		fail(c, http.StatusServiceUnavailable, "domain allowlist not configured")
		return
	}
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s.allowlist.RemovePermanent(req.Domain)
	success(c, gin.H{"removed": true})
}
