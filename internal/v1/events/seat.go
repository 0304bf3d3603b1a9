package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
)

// handleSeatChange persists the new seat layout; the dispatcher's apply then
// flips every tracked player's party flag to match seat occupancy and
// broadcasts the resulting lobby update (see SyncPartyWithSeats).
func handleSeatChange(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var layout []string
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("unmarshal seat layout: %w", err)
	}

	updated, err := d.Rooms.UpdateSeatLayout(ctx, roomID, layout)
	if err != nil {
		return errorResult(player, err), nil
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type":  "seat_change",
			"data":        updated.SeatLayout,
			"player_name": player,
		},
		SyncPartyWithSeats: updated.SeatLayout,
	}, nil
}

// syncPartyWithSeats flips every tracked player's in_party flag to whether
// they occupy a seat in layout, broadcasting one lobby_update per player
// whose flag actually changes (Manager.UpdatePartyStatus is a no-op
// broadcast-wise when the flag is unchanged).
func syncPartyWithSeats(ctx context.Context, r *presence.Room, layout []string) {
	occupied := make(map[string]bool, len(layout))
	for _, seat := range layout {
		if seat != "" && seat != types.EmptySeat {
			occupied[seat] = true
		}
	}
	for _, p := range r.Snapshot() {
		r.UpdatePartyStatus(ctx, p.PlayerName, occupied[p.PlayerName])
	}
}

type seatCountChangeData struct {
	MaxPlayers       int               `json:"max_players"`
	DisplacedPlayers []json.RawMessage `json:"displaced_players"`
}

// handleSeatCountChange is a broadcast-only mirror of the HTTP seat-resize
// path: the HTTP handler already validated bounds and computed displaced
// players, so this just re-announces to WebSocket-connected clients.
func handleSeatCountChange(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body seatCountChangeData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal seat count change: %w", err)
	}

	msg := fmt.Sprintf("Seat count changed to %d by %s", body.MaxPlayers, player)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log seat count change: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type":  "seat_count_change",
			"data":        json.RawMessage(data),
			"player_name": player,
		},
	}, nil
}

type playerDisplacedData struct {
	PlayerName string `json:"player_name"`
	FormerSeat int    `json:"former_seat"`
	Reason     string `json:"reason"`
}

// handlePlayerDisplaced is a direct message to the named player; the room at
// large never sees it.
func handlePlayerDisplaced(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body playerDisplacedData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal player displaced: %w", err)
	}
	if body.Reason == "" {
		body.Reason = "unknown"
	}

	msg := fmt.Sprintf("%s was moved to lobby from seat %d due to %s", body.PlayerName, body.FormerSeat+1, body.Reason)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, "system", "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log player displaced: %w", err)
	}

	return &Result{
		Unicast: &Unicast{
			Player: body.PlayerName,
			Msg: map[string]any{
				"event_type": "player_displaced",
				"data":       body,
			},
		},
	}, nil
}

type colorChangeData struct {
	Player    string `json:"player"`
	SeatIndex int    `json:"seat_index"`
	NewColor  string `json:"new_color"`
	ChangedBy string `json:"changed_by"`
}

// handleColorChange reads current seat colors, overwrites one index, and
// persists before broadcasting.
func handleColorChange(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body colorChangeData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal color change: %w", err)
	}
	if body.ChangedBy == "" {
		body.ChangedBy = player
	}
	if body.Player == "" || body.NewColor == "" {
		return errorResult(player, fmt.Errorf("color change requires player, seat_index, and new_color")), nil
	}

	r, err := d.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return errorResult(player, err), nil
	}
	colors := make(map[string]string, len(r.SeatColors))
	for k, v := range r.SeatColors {
		colors[k] = v
	}
	colors[fmt.Sprintf("%d", body.SeatIndex)] = body.NewColor

	if _, err := d.Rooms.UpdateSeatColors(ctx, roomID, colors); err != nil {
		return errorResult(player, err), nil
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "color_change",
			"data": map[string]any{
				"player":     body.Player,
				"seat_index": body.SeatIndex,
				"new_color":  body.NewColor,
				"changed_by": body.ChangedBy,
			},
		},
	}, nil
}

// errorResult unicasts a handler failure back to the player who triggered
// it; other connections in the room never see it.
func errorResult(player string, err error) *Result {
	return &Result{
		Unicast: &Unicast{
			Player: player,
			Msg: map[string]any{
				"event_type": "error",
				"data":       err.Error(),
			},
		},
	}
}
