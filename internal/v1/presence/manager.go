// Package presence tracks live (room, player) connections: reconnect-grace
// bookkeeping, lobby/party membership, and fan-out writes. A per-room
// registry holds pending-removal timers, but the unit of grace here is a
// player inside a room rather than a whole room.
package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/logging"
	"github.com/tabletop-tavern/api-game/internal/v1/metrics"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"go.uber.org/zap"
)

// Socket is the minimal write surface a transport connection exposes to
// presence. Keeping this interface narrow lets the Manager run against
// fakes in tests without depending on gorilla/websocket.
type Socket interface {
	// Send enqueues a JSON frame for the writer goroutine. Returns an error
	// if the socket cannot accept more writes (closed, buffer full).
	Send(frame []byte) error
	// Close closes the underlying connection with a human-readable reason.
	Close(reason string) error
}

type entry struct {
	socket       Socket
	inParty      bool
	status       types.PresenceStatus
	removalTimer *time.Timer
}

// Manager owns every live socket across every room. All event-handler and
// HTTP code should go through a RoomManager (see Room below) rather than
// calling Manager directly, to avoid cross-room leakage.
type Manager struct {
	mu            sync.Mutex
	rooms         map[string]map[string]*entry // room -> player -> entry
	reconnectGrace time.Duration
}

// NewManager creates a connection manager with the given reconnect grace
// period (spec default: 30s).
func NewManager(reconnectGrace time.Duration) *Manager {
	return &Manager{
		rooms:          make(map[string]map[string]*entry),
		reconnectGrace: reconnectGrace,
	}
}

// Room returns a handle scoped to a single room id.
func (m *Manager) Room(roomID string) *Room {
	return &Room{id: roomID, mgr: m}
}

func (m *Manager) playersOf(roomID string) map[string]*entry {
	players, ok := m.rooms[roomID]
	if !ok {
		players = make(map[string]*entry)
		m.rooms[roomID] = players
	}
	return players
}

// Accept registers a socket for (room, player), cancelling any pending
// removal task for that pair, and broadcasts the resulting lobby snapshot to
// everyone connected in the room.
func (m *Manager) Accept(ctx context.Context, roomID, player string, socket Socket) {
	m.mu.Lock()
	players := m.playersOf(roomID)
	e, existed := players[player]
	if !existed {
		e = &entry{status: types.StatusConnected}
		players[player] = e
	}
	if e.removalTimer != nil {
		e.removalTimer.Stop()
		e.removalTimer = nil
		metrics.ReconnectGraceOutcomes.WithLabelValues("reconnected").Inc()
	}
	e.socket = socket
	e.status = types.StatusConnected
	m.mu.Unlock()

	metrics.IncConnection()
	metrics.RoomParticipants.WithLabelValues(roomID).Inc()
	m.BroadcastLobbyUpdate(ctx, roomID)
}

// Remove drops a socket from the room, marks the player disconnecting, and
// schedules eviction after the reconnect grace period. evictFn is invoked on
// actual eviction (not on a cancelled/reconnected grace window) for any
// additional teardown a caller needs; the lobby broadcast on eviction always
// fires regardless of evictFn.
func (m *Manager) Remove(roomID, player string, socket Socket, evictFn func()) {
	m.mu.Lock()
	players := m.playersOf(roomID)
	e, ok := players[player]
	if !ok || e.socket != socket {
		// Either already gone, or a newer connection replaced this one;
		// don't let a stale socket evict the current one.
		m.mu.Unlock()
		metrics.DecConnection()
		return
	}
	e.socket = nil
	e.status = types.StatusDisconnecting
	if e.removalTimer != nil {
		e.removalTimer.Stop()
	}
	e.removalTimer = time.AfterFunc(m.reconnectGrace, func() {
		if m.evict(roomID, player) {
			metrics.ReconnectGraceOutcomes.WithLabelValues("expired").Inc()
			m.BroadcastLobbyUpdate(context.Background(), roomID)
			if evictFn != nil {
				evictFn()
			}
		}
	})
	m.mu.Unlock()

	metrics.DecConnection()
	metrics.RoomParticipants.WithLabelValues(roomID).Dec()
}

// evict deletes the (room, player) entry if it is still disconnected,
// reporting whether it actually removed anything - a reconnect racing the
// timer must not trigger a spurious eviction broadcast.
func (m *Manager) evict(roomID, player string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	players, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	e, ok := players[player]
	if !ok || e.socket != nil {
		// Reconnected since the timer fired; nothing to evict.
		return false
	}
	delete(players, player)
	if len(players) == 0 {
		delete(m.rooms, roomID)
	}
	return true
}

// UpdatePartyStatus flips a player's lobby/party flag, broadcasting a lobby
// update only when the flag actually changes.
func (m *Manager) UpdatePartyStatus(ctx context.Context, roomID, player string, inParty bool) {
	m.mu.Lock()
	players := m.playersOf(roomID)
	e, ok := players[player]
	if !ok {
		e = &entry{status: types.StatusConnected}
		players[player] = e
	}
	changed := e.inParty != inParty
	e.inParty = inParty
	m.mu.Unlock()

	if changed {
		m.BroadcastLobbyUpdate(ctx, roomID)
	}
}

// LobbySnapshot describes one tracked player for a lobby_update broadcast.
type LobbySnapshot struct {
	PlayerName string               `json:"player_name"`
	InParty    bool                 `json:"in_party"`
	Status     types.PresenceStatus `json:"status"`
}

// Snapshot returns every tracked player in a room, for lobby_update frames.
func (m *Manager) Snapshot(roomID string) []LobbySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	players, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]LobbySnapshot, 0, len(players))
	for name, e := range players {
		out = append(out, LobbySnapshot{PlayerName: name, InParty: e.inParty, Status: e.status})
	}
	return out
}

// SendToPlayer serializes msg as JSON and writes it to a single player's
// socket, if connected. Returns false if the player has no live socket.
func (m *Manager) SendToPlayer(ctx context.Context, roomID, player string, msg any) bool {
	m.mu.Lock()
	players, ok := m.rooms[roomID]
	var socket Socket
	if ok {
		if e, ok := players[player]; ok {
			socket = e.socket
		}
	}
	m.mu.Unlock()

	if socket == nil {
		return false
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error(ctx, "failed to marshal unicast message", zap.Error(err))
		return false
	}
	if err := socket.Send(data); err != nil {
		logging.Warn(ctx, "failed to send to player, dropping socket", zap.String("player_name", player), zap.Error(err))
		m.Remove(roomID, player, socket, nil)
	}
	return true
}

// BroadcastToRoom serializes msg as JSON and writes it to every connected
// socket in the room. A single bad peer never aborts the broadcast; it is
// removed and the rest of the fan-out continues.
func (m *Manager) BroadcastToRoom(ctx context.Context, roomID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error(ctx, "failed to marshal broadcast message", zap.Error(err))
		return
	}

	m.mu.Lock()
	players, ok := m.rooms[roomID]
	type target struct {
		name   string
		socket Socket
	}
	var targets []target
	if ok {
		for name, e := range players {
			if e.socket != nil {
				targets = append(targets, target{name: name, socket: e.socket})
			}
		}
	}
	m.mu.Unlock()

	for _, t := range targets {
		if err := t.socket.Send(data); err != nil {
			logging.Warn(ctx, "broadcast write failed, dropping socket", zap.String("player_name", t.name), zap.Error(err))
			m.Remove(roomID, t.name, t.socket, nil)
		}
	}
}

// BroadcastLobbyUpdate sends the current room presence snapshot to everyone
// connected in the room.
func (m *Manager) BroadcastLobbyUpdate(ctx context.Context, roomID string) {
	m.BroadcastToRoom(ctx, roomID, map[string]any{
		"event_type": "lobby_update",
		"data": map[string]any{
			"players": m.Snapshot(roomID),
		},
	})
}

// CloseRoomConnections closes every socket in a room with a normal-closure
// reason, used when the catalog service tears a room down.
func (m *Manager) CloseRoomConnections(roomID, reason string) {
	m.mu.Lock()
	players, ok := m.rooms[roomID]
	delete(m.rooms, roomID)
	m.mu.Unlock()

	if !ok {
		return
	}
	for _, e := range players {
		if e.removalTimer != nil {
			e.removalTimer.Stop()
		}
		if e.socket != nil {
			_ = e.socket.Close(reason)
		}
	}
}

// Room is a thin handle bound to a single room id, preventing event-handler
// and HTTP code from accidentally addressing the wrong room.
type Room struct {
	id  string
	mgr *Manager
}

func (r *Room) Accept(ctx context.Context, player string, socket Socket) {
	r.mgr.Accept(ctx, r.id, player, socket)
}

func (r *Room) Remove(player string, socket Socket, evictFn func()) {
	r.mgr.Remove(r.id, player, socket, evictFn)
}

func (r *Room) UpdatePartyStatus(ctx context.Context, player string, inParty bool) {
	r.mgr.UpdatePartyStatus(ctx, r.id, player, inParty)
}

func (r *Room) SendToPlayer(ctx context.Context, player string, msg any) bool {
	return r.mgr.SendToPlayer(ctx, r.id, player, msg)
}

func (r *Room) BroadcastToRoom(ctx context.Context, msg any) {
	r.mgr.BroadcastToRoom(ctx, r.id, msg)
}

func (r *Room) BroadcastLobbyUpdate(ctx context.Context) {
	r.mgr.BroadcastLobbyUpdate(ctx, r.id)
}

func (r *Room) CloseRoomConnections(reason string) {
	r.mgr.CloseRoomConnections(r.id, reason)
}

func (r *Room) Snapshot() []LobbySnapshot {
	return r.mgr.Snapshot(r.id)
}

func (r *Room) ID() string { return r.id }
