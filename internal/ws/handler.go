package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crowdqueue/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checking
	},
}

// Handler fans broker events out to the venue's live views. Connections
// are read-only; all writes go through the HTTP API.
type Handler struct {
	venues map[string]map[string]*websocket.Conn
	mu     sync.RWMutex
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		venues: make(map[string]map[string]*websocket.Conn),
		logger: logger,
	}
}

// Run consumes the event stream and broadcasts each event to the
// subscribers of its venue. Blocks until ctx is cancelled; run it in
// its own goroutine.
func (h *Handler) Run(ctx context.Context, client *events.KafkaClient) {
	err := client.Consume(ctx, func(event events.Event) error {
		h.broadcast(event.VenueID, event)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		h.logger.Error("event consumer stopped", zap.Error(err))
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	venueID := c.Param("venueId")
	if venueID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "venueId is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("venue_id", venueID), zap.Error(err))
		return
	}

	connID := uuid.New().String()
	h.addConnection(venueID, connID, conn)
	defer h.removeConnection(venueID, connID)

	// Drain control frames until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", zap.String("venue_id", venueID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) addConnection(venueID, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.venues[venueID]; !exists {
		h.venues[venueID] = make(map[string]*websocket.Conn)
	}
	h.venues[venueID][connID] = conn
}

func (h *Handler) removeConnection(venueID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if venue, exists := h.venues[venueID]; exists {
		if conn, exists := venue[connID]; exists {
			conn.Close()
			delete(venue, connID)
		}
		if len(venue) == 0 {
			delete(h.venues, venueID)
		}
	}
}

func (h *Handler) broadcast(venueID string, message any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	venue, exists := h.venues[venueID]
	if !exists {
		return
	}

	raw, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", zap.Error(err))
		return
	}
	for _, conn := range venue {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			h.logger.Debug("failed to push to subscriber", zap.String("venue_id", venueID), zap.Error(err))
		}
	}
}
