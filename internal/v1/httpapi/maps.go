package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/gin-gonic/gin"
)

// getActiveMap handles GET /game/{roomId}/active-map.
func (s *Server) getActiveMap(c *gin.Context) {
	m, err := s.Maps.GetActiveMap(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		if err == room.ErrNotFound {
			errorJSON(c, http.StatusNotFound, err)
			return
		}
		handleRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_map": m})
}

type updateMapRequest struct {
	Map       *types.ActiveMap `json:"map"`
	UpdatedBy string           `json:"updated_by"`
}

// updateMap handles PUT /game/{roomId}/map: an atomic, server-authoritative
// replace of the whole active map document.
func (s *Server) updateMap(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var req updateMapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if req.Map == nil || req.Map.Filename == "" {
		errorJSON(c, http.StatusBadRequest, errMissingMapFilename)
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = "unknown"
	}

	req.Map.RoomID = roomID
	updated, err := s.Maps.UpdateCompleteMap(ctx, req.Map)
	if err != nil {
		handleRoomError(c, err)
		return
	}

	s.Presence.BroadcastToRoom(ctx, roomID, map[string]any{
		"event_type": "map_config_update",
		"data": map[string]any{
			"filename":         updated.Filename,
			"grid_config":      updated.GridConfig,
			"map_image_config": json.RawMessage(updated.MapImageConfig),
			"updated_by":       req.UpdatedBy,
		},
	})

	c.JSON(http.StatusOK, gin.H{"success": true, "updated_map": updated})
}
