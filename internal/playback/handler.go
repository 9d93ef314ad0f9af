package playback

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	orchestrator *Orchestrator
	logger       *zap.Logger
}

func NewHandler(orchestrator *Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/spotify/now/:venueId", h.liveState)
}

// RegisterAdminRoutes attaches the admin-token-gated routes; the caller
// wraps the group with the admin middleware.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/play-next/:venueId", h.playNext)
	r.POST("/guard/ensure/:venueId", h.guardEnsure)
	r.GET("/spotify/devices/:venueId", h.devices)
	r.POST("/spotify/select-device", h.selectDevice)
	r.POST("/spotify/play", h.playURIs)
	r.GET("/admin/history/:venueId", h.history)
}

func (h *Handler) playNext(c *gin.Context) {
	venueID := c.Param("venueId")
	now, err := h.orchestrator.PlayNext(c.Request.Context(), venueID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoDeviceSelected):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No playback device selected for this venue"})
		case errors.Is(err, ErrQueueEmptyAutoFillTried):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Queue is empty", "triedAutoFill": true})
		case errors.Is(err, ErrNoPlayableURI):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Song has no playable URI"})
		default:
			h.logger.Error("play next failed", zap.String("venue_id", venueID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start playback"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "nowPlaying": now})
}

func (h *Handler) guardEnsure(c *gin.Context) {
	venueID := c.Param("venueId")
	result, err := h.orchestrator.GuardEnsure(c.Request.Context(), venueID)
	if err != nil {
		h.logger.Error("guard tick failed", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Guard check failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) devices(c *gin.Context) {
	venueID := c.Param("venueId")
	devices, err := h.orchestrator.Devices(c.Request.Context(), venueID)
	if err != nil {
		h.logger.Error("device listing failed", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch devices"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

type selectDeviceRequest struct {
	VenueID  string `json:"venueId" binding:"required"`
	DeviceID string `json:"deviceId" binding:"required"`
}

func (h *Handler) selectDevice(c *gin.Context) {
	var req selectDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	if req.VenueID != c.GetString("admin_venue_id") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token does not match venue"})
		return
	}

	if err := h.orchestrator.SelectDevice(c.Request.Context(), req.VenueID, req.DeviceID); err != nil {
		h.logger.Error("device selection failed", zap.String("venue_id", req.VenueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to select device"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deviceId": req.DeviceID})
}

func (h *Handler) liveState(c *gin.Context) {
	venueID := c.Param("venueId")
	live, err := h.orchestrator.Live(c.Request.Context(), venueID)
	if err != nil {
		h.logger.Error("live state failed", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch playback state"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, live)
}

type playRequest struct {
	VenueID    string   `json:"venueId" binding:"required"`
	URIs       []string `json:"uris" binding:"required"`
	PositionMS int64    `json:"positionMs"`
}

func (h *Handler) playURIs(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.URIs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	if req.VenueID != c.GetString("admin_venue_id") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token does not match venue"})
		return
	}

	if err := h.orchestrator.PlayURIs(c.Request.Context(), req.VenueID, req.URIs, req.PositionMS); err != nil {
		if errors.Is(err, ErrNoDeviceSelected) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No playback device selected for this venue"})
			return
		}
		h.logger.Error("play uris failed", zap.String("venue_id", req.VenueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start playback"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) history(c *gin.Context) {
	venueID := c.Param("venueId")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	plays, err := h.orchestrator.History(venueID, limit)
	if err != nil {
		h.logger.Error("history fetch failed", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch play history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": plays})
}
