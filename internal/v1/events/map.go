package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
)

type mapLoadData struct {
	MapData struct {
		Filename         string          `json:"filename"`
		OriginalFilename string          `json:"original_filename"`
		FilePath         string          `json:"file_path"`
		MapImageConfig   json.RawMessage `json:"map_image_config,omitempty"`
	} `json:"map_data"`
}

// handleMapLoad sets the named map active, preserving any stored grid
// config for that (room, filename) pair (MapService.SetActiveMap owns that
// preservation), then broadcasts the saved document.
func handleMapLoad(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body mapLoadData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal map load: %w", err)
	}
	if body.MapData.Filename == "" {
		return errorResult(player, fmt.Errorf("invalid map load request: missing filename")), nil
	}

	m := &types.ActiveMap{
		RoomID:           roomID,
		Filename:         body.MapData.Filename,
		OriginalFilename: body.MapData.OriginalFilename,
		FilePath:         body.MapData.FilePath,
		MapImageConfig:   body.MapData.MapImageConfig,
		UploadedBy:       player,
	}
	if m.OriginalFilename == "" {
		m.OriginalFilename = m.Filename
	}

	saved, err := d.Maps.SetActiveMap(ctx, m)
	if err != nil {
		return errorResult(player, err), nil
	}

	msg := fmt.Sprintf("%s loaded map: %s", player, saved.OriginalFilename)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log map load: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "map_load",
			"data": map[string]any{
				"map":       saved,
				"loaded_by": player,
			},
		},
	}, nil
}

// handleMapClear deactivates every map row for the room.
func handleMapClear(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	if err := d.Maps.ClearActiveMap(ctx, roomID); err != nil {
		return errorResult(player, err), nil
	}

	msg := fmt.Sprintf("%s cleared the active map", player)
	if _, err := d.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log map clear: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "map_clear",
			"data":       map[string]any{"cleared_by": player},
		},
	}, nil
}

type mapConfigUpdateData struct {
	Filename string `json:"filename"`
}

// handleMapConfigUpdate applies a partial patch (grid_config/map_image_config)
// and broadcasts the same partial shape clients sent, per the original
// handler's "broadcast what was asked for" contract.
func handleMapConfigUpdate(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body mapConfigUpdateData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal map config update: %w", err)
	}
	if body.Filename == "" {
		return errorResult(player, fmt.Errorf("invalid map config update request: missing filename")), nil
	}

	if _, err := d.Maps.UpdateMapConfig(ctx, roomID, body.Filename, data); err != nil {
		if err == room.ErrNotFound {
			return &Result{Broadcast: map[string]any{"info": "no map config updated"}}, nil
		}
		return errorResult(player, err), nil
	}

	merged := map[string]any{}
	if err := json.Unmarshal(data, &merged); err == nil {
		merged["updated_by"] = player
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "map_config_update",
			"data":       merged,
		},
	}, nil
}

// handleMapRequest unicasts the current active map (or a map_clear) to the
// requesting socket only, for late-joiner catch-up.
func handleMapRequest(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	m, err := d.Maps.GetActiveMap(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return &Result{
				Unicast: &Unicast{
					Player: player,
					Msg: map[string]any{
						"event_type": "map_clear",
						"data":       map[string]any{"cleared_by": "system"},
					},
				},
			}, nil
		}
		return errorResult(player, err), nil
	}

	return &Result{
		Unicast: &Unicast{
			Player: player,
			Msg: map[string]any{
				"event_type": "map_load",
				"data": map[string]any{
					"map":       m,
					"loaded_by": m.UploadedBy,
				},
			},
		},
	}, nil
}
