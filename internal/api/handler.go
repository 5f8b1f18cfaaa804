package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/askcorpus/internal/api/middleware"
	"github.com/liliang-cn/askcorpus/internal/domain"
	"github.com/liliang-cn/askcorpus/internal/index"
	"github.com/liliang-cn/askcorpus/internal/service"
)

// Handler handles the orchestrator API requests
type Handler struct {
	agent  *service.AgentService
	index  *index.Handle
	logger *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(agent *service.AgentService, handle *index.Handle, logger *zap.Logger) *Handler {
	return &Handler{agent: agent, index: handle, logger: logger}
}

// RegisterRoutes registers the authenticated API routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id/history", h.GetHistory)
	r.POST("/messages", h.SendMessage)
	r.GET("/stats", h.GetStats)
}

// CreateSession creates a new session for the authenticated principal
func (h *Handler) CreateSession(c *gin.Context) {
	session, err := h.agent.CreateSession(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.SessionCreateResponse{SessionID: session.ID})
}

// SendMessage sends a message to the agent within an existing session
func (h *Handler) SendMessage(c *gin.Context) {
	var req domain.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.agent.SendMessage(c.Request.Context(), middleware.Principal(c), req.SessionID, req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory returns the conversation history for a session
func (h *Handler) GetHistory(c *gin.Context) {
	sessionID := c.Param("id")
	history, err := h.agent.History(c.Request.Context(), middleware.Principal(c), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.HistoryResponse{SessionID: sessionID, History: history})
}

// ListSessions lists the authenticated principal's session IDs
func (h *Handler) ListSessions(c *gin.Context) {
	ids, err := h.agent.ListSessions(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.SessionsListResponse{SessionIDs: ids})
}

// GetStats returns orchestrator totals
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.agent.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Health reports liveness and the served index snapshot
func (h *Handler) Health(c *gin.Context) {
	snapshot := h.index.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"indexed_chunks": snapshot.Size(),
		"index_model":    snapshot.Model(),
	})
}

// writeError maps domain errors onto status categories: not-found,
// bad-request, upstream-unavailable.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, domain.ErrDimensionMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrGeneration), errors.Is(err, domain.ErrRetrieval):
		h.logger.Warn("upstream capability failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
