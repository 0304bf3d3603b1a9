package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/tabletop-tavern/api-game/internal/v1/events"
	"github.com/tabletop-tavern/api-game/internal/v1/logging"
	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/tabletop-tavern/api-game/internal/v1/ratelimit"
	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Hub is the coordinator between inbound WebSocket upgrades and a room's
// presence + event-dispatch machinery. Room lifetime (creation, grace-period
// deletion) lives entirely in presence.Manager and the room services; Hub
// only brokers connections.
type Hub struct {
	rooms          *room.RoomService
	presenceMgr    *presence.Manager
	dispatcher     *events.Dispatcher
	limiter        *ratelimit.RateLimiter
	allowedOrigins []string
}

// NewHub wires a Hub from its dependencies. limiter may be nil, in which
// case connections are never rate limited.
func NewHub(rooms *room.RoomService, presenceMgr *presence.Manager, dispatcher *events.Dispatcher, limiter *ratelimit.RateLimiter, allowedOrigins []string) *Hub {
	return &Hub{
		rooms:          rooms,
		presenceMgr:    presenceMgr,
		dispatcher:     dispatcher,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
	}
}

// ServeWs validates the room and player_name, upgrades the connection, and
// starts the read/write pumps. No authentication happens here: this
// service trusts api-auth/api-site to have already gated access to the
// room id the client was handed.
func (h *Hub) ServeWs(c *gin.Context) {
	roomID := c.Param("roomId")
	player := normalizePlayerName(c.Query("player_name"))
	if roomID == "" || player == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room id and player_name are required"})
		return
	}

	if _, err := h.rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, room.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	if h.limiter != nil {
		if !h.limiter.CheckWebSocket(c) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
			return
		}
		if err := h.limiter.CheckWebSocketUser(c.Request.Context(), player); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections for this player"})
			return
		}
	}

	conn, err := upgradeWebSocket(c.Writer, c.Request, h.allowedOrigins)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade connection", zap.Error(err))
		return
	}

	h.HandleConnection(context.Background(), conn, roomID, player)
}

// HandleConnection binds a conn to a presence room, fires the
// player_connection event, and starts the client's read/write pumps.
func (h *Hub) HandleConnection(ctx context.Context, conn wsConnection, roomID, player string) {
	presenceRoom := h.presenceMgr.Room(roomID)
	client := NewClient(conn, presenceRoom, h.dispatcher, player)

	presenceRoom.Accept(ctx, player, client)

	if _, err := h.dispatcher.Dispatch(ctx, presenceRoom, player, events.Envelope{EventType: "player_connection"}); err != nil {
		logging.Warn(ctx, "player_connection handler failed", zap.String("room_id", roomID), zap.String("player_name", player), zap.Error(err))
	}

	go client.writePump()
	go client.readPump(ctx)
}

// Shutdown returns nil without doing anything: it closes no connections
// and leaves any pending grace-period eviction timers inside
// presence.Manager running.
func (h *Hub) Shutdown(_ context.Context) error {
	return nil
}
