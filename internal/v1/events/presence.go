package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
)

// handlePlayerConnection is invoked right after the dispatcher accepts a
// socket: it just logs and announces, since Accept already registered the
// presence entry.
func handlePlayerConnection(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	msg := fmt.Sprintf("%s connected", player)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log player connection: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "player_connected",
			"data":       map[string]any{"connected_player": player},
		},
	}, nil
}

// handlePlayerDisconnect logs the disconnection, clears the player's seat
// (set to the empty sentinel) if the room still exists, and broadcasts both
// the disconnect and the updated seat layout. Seat cleanup is best-effort:
// the room may already be torn down, in which case only the disconnect
// broadcast goes out.
func handlePlayerDisconnect(ctx context.Context, d *Deps, roomID, player string, _ json.RawMessage) (*Result, error) {
	msg := fmt.Sprintf("%s disconnected", player)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log player disconnect: %w", err)
	}

	disconnectMsg := map[string]any{
		"event_type": "player_disconnected",
		"data":       map[string]any{"disconnected_player": player},
	}

	r, err := d.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return &Result{Broadcast: disconnectMsg}, nil
	}

	updated := make([]string, len(r.SeatLayout))
	changed := false
	for i, seat := range r.SeatLayout {
		if seat == player {
			updated[i] = types.EmptySeat
			changed = true
		} else {
			updated[i] = seat
		}
	}
	if !changed {
		return &Result{Broadcast: disconnectMsg}, nil
	}
	if _, err := d.Rooms.UpdateSeatLayout(ctx, roomID, updated); err != nil {
		return &Result{Broadcast: disconnectMsg}, nil
	}

	return &Result{
		Broadcast: disconnectMsg,
		ClearPrompt: map[string]any{
			"event_type": "seat_change",
			"data":       updated,
		},
	}, nil
}

type combatStateData struct {
	CombatActive bool `json:"combatActive"`
}

// handleCombatState just logs and re-broadcasts whatever clients agreed on.
func handleCombatState(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body combatStateData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal combat state: %w", err)
	}

	action := "ended"
	if body.CombatActive {
		action = "started"
	}
	msg := fmt.Sprintf("Combat %s by %s", action, player)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log combat state: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "combat_state",
			"data":       json.RawMessage(data),
		},
	}, nil
}

type systemMessageData struct {
	Message string `json:"message"`
}

// handleSystemMessage logs and broadcasts a free-form system note.
func handleSystemMessage(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body systemMessageData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal system message: %w", err)
	}

	if _, err := d.Logs.AddEntry(ctx, roomID, body.Message, types.LogSystem, "system", "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log system message: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "system_message",
			"data":       json.RawMessage(data),
		},
	}, nil
}

type playerKickedData struct {
	KickedPlayer string `json:"kicked_player"`
}

// handlePlayerKicked logs and announces a moderator-issued kick. It does not
// close the kicked player's socket, and neither does the transport layer on
// seeing the broadcast: the kicked player's connection stays open.
func handlePlayerKicked(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body playerKickedData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal player kicked: %w", err)
	}

	msg := fmt.Sprintf("%s was kicked from the room", body.KickedPlayer)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log player kicked: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type":  "player_kicked",
			"data":        json.RawMessage(data),
			"player_name": player,
		},
	}, nil
}

type clearMessagesData struct {
	ClearedBy string `json:"cleared_by"`
}

// handleClearSystemMessages bulk-deletes system-typed log entries and
// records the deletion itself as a new system entry.
func handleClearSystemMessages(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body clearMessagesData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal clear system messages: %w", err)
	}
	if body.ClearedBy == "" {
		body.ClearedBy = player
	}

	deleted, err := d.Logs.ClearSystemMessages(ctx, roomID)
	if err != nil {
		return errorResult(player, err), nil
	}
	msg := fmt.Sprintf("%s cleared %d system messages", body.ClearedBy, deleted)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, body.ClearedBy, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log cleared system messages: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "system_messages_cleared",
			"data": map[string]any{
				"deleted_count": deleted,
				"cleared_by":    body.ClearedBy,
			},
		},
	}, nil
}

// handleClearAllMessages bulk-deletes every log entry for the room.
func handleClearAllMessages(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body clearMessagesData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal clear all messages: %w", err)
	}
	if body.ClearedBy == "" {
		body.ClearedBy = player
	}

	deleted, err := d.Logs.ClearAll(ctx, roomID)
	if err != nil {
		return errorResult(player, err), nil
	}
	msg := fmt.Sprintf("%s cleared %d messages", body.ClearedBy, deleted)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, body.ClearedBy, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log cleared all messages: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "all_messages_cleared",
			"data": map[string]any{
				"deleted_count": deleted,
				"cleared_by":    body.ClearedBy,
			},
		},
	}, nil
}
