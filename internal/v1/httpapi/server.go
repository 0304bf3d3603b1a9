// Package httpapi is the REST control plane: room CRUD, role/seat/color/map
// mutation, adventure log queries, and the api-site session lifecycle
// endpoints. It is the only way into the room services other than an
// open WebSocket, grounded on the original FastAPI app.py router.
package httpapi

import (
	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/tabletop-tavern/api-game/internal/v1/ratelimit"
	"github.com/tabletop-tavern/api-game/internal/v1/room"
)

// Server holds every dependency an HTTP handler needs.
type Server struct {
	Rooms    *room.RoomService
	Maps     *room.MapService
	Logs     *room.LogService
	Presence *presence.Manager
	Limiter  *ratelimit.RateLimiter
	MaxLogs  int
}

// NewServer constructs a Server from its dependencies. limiter may be nil,
// in which case no rate limiting middleware is attached to the routes.
func NewServer(rooms *room.RoomService, maps *room.MapService, logs *room.LogService, presenceMgr *presence.Manager, limiter *ratelimit.RateLimiter, maxLogs int) *Server {
	return &Server{Rooms: rooms, Maps: maps, Logs: logs, Presence: presenceMgr, Limiter: limiter, MaxLogs: maxLogs}
}
