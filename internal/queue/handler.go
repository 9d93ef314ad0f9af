package queue

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
	r.GET("/queue/:venueId", h.getQueue)
	r.GET("/now-playing/:venueId", h.getNowPlaying)
	r.POST("/vote", h.vote)
	r.POST("/add-song", h.addSong)
	r.POST("/init-demo/:venueId", h.initDemo)
}

// RegisterAdminRoutes attaches the admin-token-gated routes; the caller
// wraps the group with the admin middleware.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/add-song", h.adminAddSong)
}

func (h *Handler) getQueue(c *gin.Context) {
	venueID := c.Param("venueId")
	items, err := h.service.List(c.Request.Context(), venueID)
	if err != nil {
		h.logger.Error("failed to fetch queue", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch queue"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"queue": items})
}

func (h *Handler) getNowPlaying(c *gin.Context) {
	venueID := c.Param("venueId")
	now, err := h.service.NowPlaying(c.Request.Context(), venueID)
	if err != nil {
		h.logger.Error("failed to fetch now playing", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch now playing"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"nowPlaying": now})
}

type voteRequest struct {
	VenueID   string `json:"venueId" binding:"required"`
	SongID    string `json:"songId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

func (h *Handler) vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	hype, err := h.service.Vote(c.Request.Context(), req.VenueID, req.SongID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyVoted):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Already voted for this song"})
		case errors.Is(err, ErrSongNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Song not found in queue"})
		default:
			h.logger.Error("vote failed", zap.String("venue_id", req.VenueID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to vote for song"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "hype": hype})
}

type addSongRequest struct {
	VenueID   string    `json:"venueId" binding:"required"`
	SessionID string    `json:"sessionId" binding:"required"`
	Song      SongInput `json:"song" binding:"required"`
}

func (h *Handler) addSong(c *gin.Context) {
	var req addSongRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Song.Title == "" || req.Song.Artist == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	song, err := h.service.Add(c.Request.Context(), req.VenueID, req.SessionID, req.Song)
	if err != nil {
		var cooldown *CooldownError
		if errors.As(err, &cooldown) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":           "Cooldown active",
				"cooldownMinutes": cooldown.RemainingMinutes,
			})
			return
		}
		h.logger.Error("add song failed", zap.String("venue_id", req.VenueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add song to queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "song": song})
}

type adminAddSongRequest struct {
	VenueID   string `json:"venueId" binding:"required"`
	Title     string `json:"title" binding:"required"`
	Artist    string `json:"artist" binding:"required"`
	AlbumArt  string `json:"albumArt"`
	URI       string `json:"uri"`
	SpotifyID string `json:"spotifyId"`
}

func (h *Handler) adminAddSong(c *gin.Context) {
	var req adminAddSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad input"})
		return
	}
	if req.VenueID != c.GetString("admin_venue_id") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token does not match venue"})
		return
	}

	song, err := h.service.AdminAdd(c.Request.Context(), req.VenueID, SongInput{
		Title:     req.Title,
		Artist:    req.Artist,
		AlbumArt:  req.AlbumArt,
		URI:       req.URI,
		SpotifyID: req.SpotifyID,
	})
	if err != nil {
		h.logger.Error("admin add song failed", zap.String("venue_id", req.VenueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add song"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "song": song})
}

func (h *Handler) initDemo(c *gin.Context) {
	venueID := c.Param("venueId")
	seeded, err := h.service.InitDemo(c.Request.Context(), venueID)
	if err != nil {
		h.logger.Error("init demo failed", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initialize demo venue"})
		return
	}
	if !seeded {
		c.JSON(http.StatusOK, gin.H{"message": "Venue already initialized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Demo data initialized"})
}
