package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/askcorpus/internal/api/middleware"
	"github.com/liliang-cn/askcorpus/internal/index"
	"github.com/liliang-cn/askcorpus/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKeys           map[string]string
	AllowOrigins      []string
	RateLimitEnabled  bool
	RequestsPerSecond float64
	Burst             int
}

// SetupRouter sets up the Gin router
func SetupRouter(agent *service.AgentService, handle *index.Handle, logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	handler := NewHandler(agent, handle, logger)

	// Health check (unauthenticated liveness probe)
	r.GET("/health", handler.Health)

	// Orchestrator API (requires API key)
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.APIKeys))
	if cfg.RateLimitEnabled {
		v1.Use(middleware.RateLimit(cfg.RequestsPerSecond, cfg.Burst))
	}
	handler.RegisterRoutes(v1)

	return r
}
