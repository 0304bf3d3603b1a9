// Package events holds the inbound-event-to-broadcast business logic: one
// handler per event_type, registered in a lookup table rather than a
// dispatch switch, sitting between the transport layer's decoded frames
// and the room package's persisted state.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/tabletop-tavern/api-game/internal/v1/room"
)

// Envelope is the inbound client frame shape: {event_type, data, player_name?}.
type Envelope struct {
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	PlayerName string          `json:"player_name,omitempty"`
}

// Unicast addresses a Result's side message at a single player instead of
// the whole room.
type Unicast struct {
	Player string
	Msg    any
}

// Result is a handler's effect: a primary broadcast plus the optional
// follow-ups the prompt/roll lifecycle needs. The dispatcher applies them
// in order: broadcast, then (after a short delay for dice_roll only)
// log-removal, then prompt-clear.
type Result struct {
	Broadcast      any
	Unicast        *Unicast
	LogRemoval     any
	ClearPrompt    any
	DelayFollowups bool

	// SyncPartyWithSeats carries a just-saved seat layout; when set, apply
	// flips every tracked player's in_party flag to match seat occupancy
	// and broadcasts the resulting lobby_update.
	SyncPartyWithSeats []string
}

// Deps are the services a handler needs, scoped to the connection's room.
type Deps struct {
	Rooms   *room.RoomService
	Maps    *room.MapService
	Logs    *room.LogService
	MaxLogs int
}

// Handler implements one event_type's business logic. roomID/player identify
// the connection that produced the frame.
type Handler func(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error)

// Dispatcher routes inbound frames to registered handlers and applies their
// results against a room's connection-manager handle.
type Dispatcher struct {
	handlers map[string]Handler
	deps     *Deps
}

// NewDispatcher builds the registration table. Unknown event types are
// dropped by Dispatch, not by failing to register here.
func NewDispatcher(deps *Deps) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler), deps: deps}
	d.Register("player_connection", handlePlayerConnection)
	d.Register("seat_change", handleSeatChange)
	d.Register("seat_count_change", handleSeatCountChange)
	d.Register("player_displaced", handlePlayerDisplaced)
	d.Register("color_change", handleColorChange)
	d.Register("dice_prompt", handleDicePrompt)
	d.Register("initiative_prompt_all", handleInitiativePromptAll)
	d.Register("dice_prompt_clear", handleDicePromptClear)
	d.Register("dice_roll", handleDiceRoll)
	d.Register("remote_audio_play", handleRemoteAudioPlay)
	d.Register("remote_audio_resume", handleRemoteAudioResume)
	d.Register("remote_audio_batch", handleRemoteAudioBatch)
	d.Register("map_load", handleMapLoad)
	d.Register("map_clear", handleMapClear)
	d.Register("map_config_update", handleMapConfigUpdate)
	d.Register("map_request", handleMapRequest)
	d.Register("role_change", handleRoleChange)
	d.Register("combat_state", handleCombatState)
	d.Register("system_message", handleSystemMessage)
	d.Register("player_kicked", handlePlayerKicked)
	d.Register("clear_system_messages", handleClearSystemMessages)
	d.Register("clear_all_messages", handleClearAllMessages)
	return d
}

// Register adds or overwrites the handler for an event type.
func (d *Dispatcher) Register(eventType string, h Handler) {
	d.handlers[eventType] = h
}

// Dispatch looks up the handler for env.EventType, invokes it, and applies
// the result to room. Unknown event types are logged by the caller via the
// returned bool and otherwise ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, r *presence.Room, player string, env Envelope) (bool, error) {
	h, ok := d.handlers[env.EventType]
	if !ok {
		return false, nil
	}

	result, err := h(ctx, d.deps, r.ID(), player, env.Data)
	if err != nil {
		return true, fmt.Errorf("handle %s: %w", env.EventType, err)
	}
	if result == nil {
		return true, nil
	}

	apply(ctx, r, result)
	return true, nil
}

// HandlePlayerDisconnect runs the disconnect-path handler directly; the
// dispatcher invokes it from the connection's teardown path rather than
// from an inbound frame.
func (d *Dispatcher) HandlePlayerDisconnect(ctx context.Context, r *presence.Room, player string) {
	result, err := handlePlayerDisconnect(ctx, d.deps, r.ID(), player, nil)
	if err != nil || result == nil {
		return
	}
	apply(ctx, r, result)
}

func apply(ctx context.Context, r *presence.Room, result *Result) {
	if result.Broadcast != nil {
		r.BroadcastToRoom(ctx, result.Broadcast)
	}
	if result.Unicast != nil {
		r.SendToPlayer(ctx, result.Unicast.Player, result.Unicast.Msg)
	}
	if result.SyncPartyWithSeats != nil {
		syncPartyWithSeats(ctx, r, result.SyncPartyWithSeats)
	}

	followups := func() {
		if result.LogRemoval != nil {
			r.BroadcastToRoom(ctx, result.LogRemoval)
		}
		if result.ClearPrompt != nil {
			r.BroadcastToRoom(ctx, result.ClearPrompt)
		}
	}

	if result.LogRemoval == nil && result.ClearPrompt == nil {
		return
	}
	if result.DelayFollowups {
		// Blocks the caller (the connection's own read loop) so a later
		// event on this same connection can't be processed and broadcast
		// ahead of these follow-ups, matching the ordering guarantee the
		// original's awaited asyncio.sleep(0.5) gave for free.
		delayedFollowups(followups)
		return
	}
	followups()
}
