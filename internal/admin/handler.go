package admin

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
	r.POST("/admin/set-pin", h.setPin)
	r.POST("/admin/login", h.login)
}

func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/logout", h.logout)
}

type pinRequest struct {
	VenueID string `json:"venueId" binding:"required"`
	Pin     string `json:"pin" binding:"required"`
}

func (h *Handler) setPin(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing venueId/pin"})
		return
	}

	if err := h.service.SetPin(c.Request.Context(), req.VenueID, req.Pin); err != nil {
		if errors.Is(err, ErrPinAlreadySet) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PIN already set for this venue"})
			return
		}
		h.logger.Error("set pin failed", zap.String("venue_id", req.VenueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set PIN"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) login(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing venueId/pin"})
		return
	}

	token, err := h.service.Login(c.Request.Context(), req.VenueID, req.Pin)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoPinSet):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No PIN set for this venue"})
		case errors.Is(err, ErrInvalidPin):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid PIN"})
		default:
			h.logger.Error("login failed", zap.String("venue_id", req.VenueID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) logout(c *gin.Context) {
	venueID := c.GetString("admin_venue_id")
	token := c.GetString("admin_token")

	if err := h.service.Logout(c.Request.Context(), venueID, token); err != nil {
		h.logger.Warn("logout failed", zap.String("venue_id", venueID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
