package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tabletop-tavern/api-game/internal/v1/store"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MapService owns the active-map document for a room: at most one row per
// room has active=true.
type MapService struct {
	store *store.Client
}

// NewMapService constructs a MapService over a document store client.
func NewMapService(s *store.Client) *MapService {
	return &MapService{store: s}
}

// SetActiveMap deactivates every prior map for the room, then upserts the
// given map as the new active one. If a map with the same filename already
// has a stored grid_config and the caller didn't explicitly provide one,
// the stored grid_config survives the reload.
func (s *MapService) SetActiveMap(ctx context.Context, m *types.ActiveMap) (*types.ActiveMap, error) {
	if m.GridConfig == nil {
		if existing, err := s.store.GetMap(ctx, m.RoomID, m.Filename); err == nil {
			m.GridConfig = existing.GridConfig
		}
	}
	m.Active = true

	if err := s.store.SaveMap(ctx, m); err != nil {
		return nil, fmt.Errorf("set active map: %w", err)
	}
	return m, nil
}

// GetActiveMap returns the unique active map for a room, if any.
func (s *MapService) GetActiveMap(ctx context.Context, roomID string) (*types.ActiveMap, error) {
	m, err := s.store.GetActiveMap(ctx, roomID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("active map for room %s: %w", roomID, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// UpdateMapConfig applies a partial JSON patch carrying zero or more of
// grid_config/map_image_config. A key that is absent from patch is left
// untouched; a key present with a JSON null explicitly clears that field -
// the distinction the caller's sentinel-vs-omitted contract requires.
func (s *MapService) UpdateMapConfig(ctx context.Context, roomID, filename string, patch json.RawMessage) (*types.ActiveMap, error) {
	m, err := s.store.GetMap(ctx, roomID, filename)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("map %s/%s: %w", roomID, filename, ErrNotFound)
		}
		return nil, err
	}

	current, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal current map: %w", err)
	}

	if res := gjson.GetBytes(patch, "grid_config"); res.Exists() {
		if res.Type == gjson.Null {
			current, err = sjson.DeleteBytes(current, "grid_config")
		} else {
			current, err = sjson.SetRawBytes(current, "grid_config", []byte(res.Raw))
		}
		if err != nil {
			return nil, fmt.Errorf("patch grid_config: %w", err)
		}
	}

	if res := gjson.GetBytes(patch, "map_image_config"); res.Exists() {
		if res.Type == gjson.Null {
			current, err = sjson.DeleteBytes(current, "map_image_config")
		} else {
			current, err = sjson.SetRawBytes(current, "map_image_config", []byte(res.Raw))
		}
		if err != nil {
			return nil, fmt.Errorf("patch map_image_config: %w", err)
		}
	}

	var updated types.ActiveMap
	if err := json.Unmarshal(current, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal patched map: %w", err)
	}

	if err := s.store.SaveMap(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save patched map: %w", err)
	}
	return &updated, nil
}

// UpdateCompleteMap atomically replaces the full map document.
func (s *MapService) UpdateCompleteMap(ctx context.Context, m *types.ActiveMap) (*types.ActiveMap, error) {
	if err := s.store.SaveMap(ctx, m); err != nil {
		return nil, fmt.Errorf("update complete map: %w", err)
	}
	return m, nil
}

// ClearActiveMap deactivates every map row for a room.
func (s *MapService) ClearActiveMap(ctx context.Context, roomID string) error {
	if err := s.store.ClearActiveMap(ctx, roomID); err != nil {
		return fmt.Errorf("clear active map: %w", err)
	}
	return nil
}
