package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
)

type roleChangeData struct {
	Action       string `json:"action"`
	TargetPlayer string `json:"target_player"`
}

// handleRoleChange applies a moderator/DM assignment via RoomService, logs
// it, and broadcasts the change to the room.
func handleRoleChange(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body roleChangeData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal role change: %w", err)
	}
	if body.Action == "" || body.TargetPlayer == "" {
		return nil, nil
	}

	var err error
	switch body.Action {
	case "add_moderator":
		_, err = d.Rooms.AddModerator(ctx, roomID, body.TargetPlayer)
	case "remove_moderator":
		_, err = d.Rooms.RemoveModerator(ctx, roomID, body.TargetPlayer)
	case "set_dm":
		_, err = d.Rooms.SetDM(ctx, roomID, body.TargetPlayer)
	case "unset_dm":
		_, err = d.Rooms.UnsetDM(ctx, roomID)
	default:
		return errorResult(player, fmt.Errorf("unknown role change action %q", body.Action)), nil
	}
	if err != nil {
		return errorResult(player, err), nil
	}

	logMsg := roleChangeLogMessage(body.Action, body.TargetPlayer, player)
	if _, err := d.Logs.AddEntry(ctx, roomID, logMsg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log role change: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "role_change",
			"data": map[string]any{
				"action":        body.Action,
				"target_player": body.TargetPlayer,
				"changed_by":    player,
				"message":       logMsg,
			},
		},
	}, nil
}

func roleChangeLogMessage(action, target, changedBy string) string {
	switch action {
	case "add_moderator":
		return fmt.Sprintf("%s has been promoted to moderator by %s", target, changedBy)
	case "remove_moderator":
		return fmt.Sprintf("%s has been removed as moderator by %s", target, changedBy)
	case "set_dm":
		return fmt.Sprintf("%s has been set as Dungeon Master by %s", target, changedBy)
	case "unset_dm":
		return fmt.Sprintf("Dungeon Master role has been removed by %s", changedBy)
	default:
		return fmt.Sprintf("Role change: %s for %s", action, target)
	}
}
