package api

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PulseTrader/agent"
	"PulseTrader/logger"
	"PulseTrader/mcp"
	"PulseTrader/metrics"
)

// Server is the HTTP control plane. Every mutating handler executes through
// the agent's command channel, inheriting the single-writer exclusion.
type Server struct {
	agent     *agent.Agent
	authToken string
	killToken string
	engine    *gin.Engine

	// onLLMChange re-initializes the LLM provider after a config patch that
	// switched provider or base URL.
	onLLMChange func() mcp.LLM
}

// NewServer builds the router. killToken guards /kill alone and should be a
// separate, stronger secret.
func NewServer(a *agent.Agent, authToken, killToken string, onLLMChange func() mcp.LLM) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		agent:       a,
		authToken:   authToken,
		killToken:   killToken,
		engine:      gin.New(),
		onLLMChange: onLLMChange,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	auth := r.Group("/", s.requireBearer(func() string { return s.authToken }))
	{
		auth.GET("/status", s.handleStatus)
		auth.POST("/config", s.handleConfig)
		auth.POST("/enable", s.handleEnable)
		auth.POST("/disable", s.handleDisable)
		auth.POST("/dex/reset", s.handleDexReset)
		auth.POST("/dex/clear-cooldowns", s.handleDexClearCooldowns)
		auth.POST("/dex/clear-breaker", s.handleDexClearBreaker)
		auth.POST("/crisis/toggle", s.handleCrisisToggle)
		auth.POST("/crisis/check", s.handleCrisisCheck)
	}

	r.POST("/kill", s.requireBearer(func() string { return s.killToken }), s.handleKill)
}

// Handler exposes the router for the HTTP server.
func (s *Server) Handler() http.Handler { return s.engine }

// requireBearer compares the Authorization bearer token in constant time.
func (s *Server) requireBearer(token func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented, found := strings.CutPrefix(header, "Bearer ")
		expected := token()
		if !found || expected == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"ok": false, "error": err.Error()})
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.agent.BuildStatus(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, status)
}

func (s *Server) handleConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	cfg, llmChanged, err := s.agent.PatchConfig(c.Request.Context(), json.RawMessage(body))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if llmChanged && s.onLLMChange != nil {
		s.agent.Researcher.LLM = s.onLLMChange()
		logger.Info("🤖 LLM provider re-initialized after config change")
	}
	ok(c, cfg)
}

func (s *Server) handleEnable(c *gin.Context) {
	if err := s.agent.Enable(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"enabled": true})
}

func (s *Server) handleDisable(c *gin.Context) {
	if err := s.agent.Disable(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"enabled": false})
}

func (s *Server) handleDexReset(c *gin.Context) {
	if err := s.agent.DexReset(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"reset": true})
}

func (s *Server) handleDexClearCooldowns(c *gin.Context) {
	if err := s.agent.DexClearCooldowns(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"cleared": true})
}

func (s *Server) handleDexClearBreaker(c *gin.Context) {
	if err := s.agent.DexClearBreaker(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"cleared": true})
}

func (s *Server) handleCrisisToggle(c *gin.Context) {
	var req struct {
		Override bool `json:"override"`
		Level    *int `json:"level,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.agent.CrisisToggle(c.Request.Context(), req.Override, req.Level); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"override": req.Override})
}

func (s *Server) handleCrisisCheck(c *gin.Context) {
	level, err := s.agent.CrisisCheckNow(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"level": level})
}

func (s *Server) handleKill(c *gin.Context) {
	if err := s.agent.Kill(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"killed": true})
}
