package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/sandbox"
	"github.com/wardenhq/warden/internal/types"
)

// CallerHeader carries the trusted caller token on agent requests. The
// gatekeeper compares it against the token it was initialized with; the API
// layer only transports it.
const CallerHeader = "X-Warden-Caller"

func (s *Server) registerAgentRoutes() {
	if s.guarded == nil {
		return
	}
	agent := s.router.Group("/agent/v1")
	{
		agent.POST("/read", s.handleAgentRead)
		agent.POST("/write", s.handleAgentWrite)
		agent.POST("/list", s.handleAgentList)
		agent.POST("/glob", s.handleAgentGlob)
		agent.POST("/grep", s.handleAgentGrep)
		agent.POST("/execute", s.handleAgentExecute)
		agent.POST("/navigate", s.handleAgentNavigate)
		agent.POST("/export", s.handleAgentExport)
		agent.POST("/permissions/grant", s.handleAgentGrant)
		agent.POST("/permissions/revoke", s.handleAgentRevoke)
		agent.POST("/permissions/check", s.handleAgentCheck)
		agent.GET("/permissions", s.handleAgentPermissions)
		agent.POST("/session/clear", s.handleAgentClearSession)
	}
}

// agentStatus maps the sanitized error taxonomy onto HTTP statuses. The
// message is already safe to surface; only the status needs choosing.
func agentStatus(err error) int {
	switch errdefs.KindOf(err) {
	case errdefs.KindAccessDenied:
		return http.StatusForbidden
	case errdefs.KindValidation:
		return http.StatusBadRequest
	case errdefs.KindResourceLimit:
		return http.StatusTooManyRequests
	case errdefs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) handleAgentRead(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
		Blob bool   `json:"blob"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := c.GetHeader(CallerHeader)
	if req.Blob {
		data, err := s.guarded.ReadFileBlob(c.Request.Context(), caller, req.Path)
		if err != nil {
			fail(c, agentStatus(err), err.Error())
			return
		}
		success(c, gin.H{"blob": data})
		return
	}
	res, err := s.guarded.ReadFile(c.Request.Context(), caller, req.Path)
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, res)
}

func (s *Server) handleAgentWrite(c *gin.Context) {
	var req struct {
		Path    string `json:"path" binding:"required"`
		Content string `json:"content"` // base64
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		fail(c, http.StatusBadRequest, "content must be base64")
		return
	}
	if err := s.guarded.WriteFile(c.Request.Context(), c.GetHeader(CallerHeader), req.Path, content); err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"written": true})
}

func (s *Server) handleAgentList(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.guarded.ListDirectory(c.Request.Context(), c.GetHeader(CallerHeader), req.Path)
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"entries": entries})
}

type searchRequest struct {
	Dir     string `json:"dir" binding:"required"`
	Pattern string `json:"pattern" binding:"required"`
}

func (s *Server) handleAgentGlob(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	matches, err := s.guarded.Glob(c.Request.Context(), c.GetHeader(CallerHeader), req.Dir, req.Pattern)
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"matches": matches})
}

func (s *Server) handleAgentGrep(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	matches, err := s.guarded.Grep(c.Request.Context(), c.GetHeader(CallerHeader), req.Dir, req.Pattern)
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"matches": matches})
}

func (s *Server) handleAgentExecute(c *gin.Context) {
	var req struct {
		Command        string `json:"command" binding:"required"`
		Dir            string `json:"dir" binding:"required"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.guarded.Execute(c.Request.Context(), c.GetHeader(CallerHeader), sandbox.Request{
		Command: req.Command,
		Dir:     req.Dir,
		Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, res)
}

func (s *Server) handleAgentNavigate(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.guarded.Navigate(c.Request.Context(), c.GetHeader(CallerHeader), req.URL)
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, page)
}

func (s *Server) handleAgentExport(c *gin.Context) {
	var req struct {
		Path    string `json:"path" binding:"required"`
		Content string `json:"content"` // base64
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		fail(c, http.StatusBadRequest, "content must be base64")
		return
	}
	if err := s.guarded.Export(c.Request.Context(), c.GetHeader(CallerHeader), req.Path, content); err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"exported": true})
}

type grantRequest struct {
	Path      string `json:"path" binding:"required"`
	Operation string `json:"operation" binding:"required"`
	Scope     string `json:"scope"`
}

func (s *Server) handleAgentGrant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	scope := types.Scope(req.Scope)
	if req.Scope == "" {
		scope = types.ScopeSession
	}
	err := s.guarded.GrantPermission(c.Request.Context(), c.GetHeader(CallerHeader),
		req.Path, types.Operation(req.Operation), scope)
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"granted": true})
}

func (s *Server) handleAgentRevoke(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	err := s.guarded.RevokePermission(c.Request.Context(), c.GetHeader(CallerHeader),
		req.Path, types.Operation(req.Operation))
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"revoked": true})
}

func (s *Server) handleAgentCheck(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := s.guarded.CheckPermission(c.Request.Context(), c.GetHeader(CallerHeader),
		req.Path, types.Operation(req.Operation))
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"granted": grant != nil, "grant": grant})
}

func (s *Server) handleAgentPermissions(c *gin.Context) {
	grants, err := s.guarded.ListPermissions(c.Request.Context(), c.GetHeader(CallerHeader))
	if err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"grants": grants})
}

func (s *Server) handleAgentClearSession(c *gin.Context) {
	if err := s.guarded.ClearSession(c.GetHeader(CallerHeader)); err != nil {
		fail(c, agentStatus(err), err.Error())
		return
	}
	success(c, gin.H{"cleared": true})
}
