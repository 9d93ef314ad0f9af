package skip

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/skip/status/:venueId", h.status)
	r.POST("/skip/vote", h.vote)
}

func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/skip/threshold", h.setThreshold)
}

func (h *Handler) status(c *gin.Context) {
	venueID := c.Param("venueId")
	status, err := h.service.GetStatus(c.Request.Context(), venueID)
	if err != nil {
		h.logger.Error("skip status failed", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read skip status"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, status)
}

type skipVoteRequest struct {
	VenueID   string `json:"venueId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

func (h *Handler) vote(c *gin.Context) {
	var req skipVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing venueId/sessionId"})
		return
	}

	status, err := h.service.Vote(c.Request.Context(), req.VenueID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoTrackPlaying):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No track playing"})
		case errors.Is(err, ErrAlreadyVoted):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Already voted"})
		default:
			h.logger.Error("skip vote failed", zap.String("venue_id", req.VenueID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Skip vote failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "votes": status.Votes, "threshold": status.Threshold})
}

type thresholdRequest struct {
	VenueID   string `json:"venueId" binding:"required"`
	Threshold int    `json:"threshold" binding:"required"`
}

func (h *Handler) setThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Threshold < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing venueId/threshold"})
		return
	}
	if req.VenueID != c.GetString("admin_venue_id") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token does not match venue"})
		return
	}

	if err := h.service.SetThreshold(c.Request.Context(), req.VenueID, req.Threshold); err != nil {
		h.logger.Error("set threshold failed", zap.String("venue_id", req.VenueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set threshold"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "threshold": req.Threshold})
}
