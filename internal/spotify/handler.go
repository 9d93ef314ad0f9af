package spotify

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crowdqueue/pkg/store"
)

const (
	searchRateKey  = "ratelimit:spotify:search"
	searchResetKey = "ratelimit:spotify:search:reset"
)

// Handler serves the OAuth linking flow and the public catalog search.
type Handler struct {
	client      *Client
	tokens      *TokenManager
	store       store.Store
	frontendURL string
	rateLimit   int
	rateWindow  time.Duration
	logger      *zap.Logger
}

func NewHandler(client *Client, tokens *TokenManager, st store.Store, frontendURL string, rateLimit int, rateWindow time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		client:      client,
		tokens:      tokens,
		store:       st,
		frontendURL: frontendURL,
		rateLimit:   rateLimit,
		rateWindow:  rateWindow,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/spotify/login", h.login)
	r.GET("/spotify/callback", h.callback)
	r.GET("/spotify/user-token", h.userToken)
	r.GET("/search-spotify", h.search)
}

// login redirects the DJ to the provider's consent page. The venue id
// travels in the OAuth state parameter.
func (h *Handler) login(c *gin.Context) {
	venueID := c.Query("venueId")
	if venueID == "" {
		c.String(http.StatusBadRequest, "Missing venueId")
		return
	}
	c.Redirect(http.StatusFound, h.client.AuthURL(venueID))
}

func (h *Handler) callback(c *gin.Context) {
	code := c.Query("code")
	venueID := c.Query("state")
	if code == "" || venueID == "" {
		c.String(http.StatusBadRequest, "Missing code/state")
		return
	}

	token, err := h.tokens.ExchangeCode(c.Request.Context(), code, h.client.redirectURI)
	if err != nil {
		h.logger.Error("token exchange failed", zap.String("venue_id", venueID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Token exchange failed")
		return
	}

	if token.RefreshToken != "" {
		if err := h.tokens.StoreRefreshToken(c.Request.Context(), venueID, token.RefreshToken); err != nil {
			h.logger.Error("failed to store refresh token", zap.String("venue_id", venueID), zap.Error(err))
			c.String(http.StatusInternalServerError, "Failed to link venue")
			return
		}
	}

	u, err := url.Parse(h.frontendURL)
	if err != nil {
		c.String(http.StatusInternalServerError, "Bad frontend URL")
		return
	}
	u.Path = "/dj"
	q := u.Query()
	q.Set("venue", venueID)
	q.Set("admin", "true")
	q.Set("linked", "1")
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// userToken hands a venue access token to the Web Playback SDK.
func (h *Handler) userToken(c *gin.Context) {
	venueID := c.Query("venueId")
	if venueID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing venueId"})
		return
	}

	token, err := h.client.VenueAccessToken(c.Request.Context(), venueID)
	if err != nil {
		if errors.Is(err, ErrVenueNotLinked) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Venue not linked to Spotify"})
			return
		}
		h.logger.Error("user token failed", zap.String("venue_id", venueID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// SearchResult is the trimmed track shape the audience search view expects.
type SearchResult struct {
	ID        string `json:"id"`
	SpotifyID string `json:"spotifyId"`
	URI       string `json:"uri"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	AlbumArt  string `json:"albumArt"`
}

func (h *Handler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter required"})
		return
	}

	// Fixed window in the store so the limit holds across instances.
	count, err := h.store.IncrBy(c.Request.Context(), searchRateKey, 1, h.rateWindow)
	if err != nil {
		h.logger.Warn("search rate limiter unavailable", zap.Error(err))
	} else {
		if count == 1 {
			resetAt := time.Now().Add(h.rateWindow).UnixMilli()
			if err := h.store.Set(c.Request.Context(), searchResetKey, resetAt, h.rateWindow); err != nil {
				h.logger.Warn("failed to record search window reset", zap.Error(err))
			}
		}
		if count > int64(h.rateLimit) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many searches. Please try again shortly.",
				"retryAfter": h.searchRetryAfter(c),
			})
			return
		}
	}

	tracks, err := h.client.SearchTracks(c.Request.Context(), query, 10)
	if err != nil {
		h.logger.Error("catalog search failed", zap.String("query", query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search Spotify"})
		return
	}

	results := make([]SearchResult, 0, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		results = append(results, SearchResult{
			ID:        t.ID,
			SpotifyID: t.ID,
			URI:       t.URI,
			Title:     t.Name,
			Artist:    t.ArtistNames(),
			AlbumArt:  t.AlbumArt(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// searchRetryAfter reports whole seconds until the current search window
// resets, rounded up, falling back to the full window when the reset
// marker is gone.
func (h *Handler) searchRetryAfter(c *gin.Context) int {
	retryAfter := int(h.rateWindow / time.Second)
	var resetAt int64
	if found, err := h.store.Get(c.Request.Context(), searchResetKey, &resetAt); err == nil && found {
		if remaining := resetAt - time.Now().UnixMilli(); remaining > 0 {
			retryAfter = int((remaining + 999) / 1000)
		}
	}
	return retryAfter
}
