package httpapi

import (
	"fmt"
	"net/http"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/gin-gonic/gin"
)

type displacedPlayer struct {
	PlayerName string `json:"playerName"`
	SeatID     any    `json:"seatId"`
}

type updateSeatCountRequest struct {
	MaxPlayers       int               `json:"max_players"`
	UpdatedBy        string            `json:"updated_by"`
	DisplacedPlayers []displacedPlayer `json:"displaced_players"`
}

// updateSeatCount handles PUT /game/{roomId}/seats: resizes the room, moves
// any displaced players back to the lobby, and broadcasts seat_count_change.
func (s *Server) updateSeatCount(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var req updateSeatCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if req.MaxPlayers < 1 || req.MaxPlayers > 8 {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("seat count must be between 1 and 8"))
		return
	}

	updated, err := s.Rooms.UpdateSeatCount(ctx, roomID, req.MaxPlayers)
	if err != nil {
		handleRoomError(c, err)
		return
	}

	for _, dp := range req.DisplacedPlayers {
		if dp.PlayerName == "" {
			continue
		}
		s.Presence.UpdatePartyStatus(ctx, roomID, dp.PlayerName, false)
		s.Presence.SendToPlayer(ctx, roomID, dp.PlayerName, map[string]any{
			"event_type": "player_displaced",
			"data": map[string]any{
				"player_name": dp.PlayerName,
				"reason":      "seat_reduction",
				"message":     "You have been moved to the lobby due to seat count reduction",
				"former_seat": dp.SeatID,
			},
		})
		_, _ = s.Logs.AddEntry(ctx, roomID, dp.PlayerName+" was moved to lobby due to seat reduction", types.LogSystem, "System", "", s.MaxLogs)
	}

	s.Presence.BroadcastToRoom(ctx, roomID, map[string]any{
		"event_type": "seat_count_change",
		"data": map[string]any{
			"max_players":       req.MaxPlayers,
			"new_seats":         updated.SeatLayout,
			"updated_by":        req.UpdatedBy,
			"displaced_players": req.DisplacedPlayers,
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"room_id":           roomID,
		"max_players":       req.MaxPlayers,
		"updated_by":        req.UpdatedBy,
		"displaced_players": req.DisplacedPlayers,
	})
}

type updateSeatLayoutRequest struct {
	SeatLayout []string `json:"seat_layout"`
	UpdatedBy  string   `json:"updated_by"`
}

// updateSeatLayout handles PUT /game/{roomId}/seat-layout.
func (s *Server) updateSeatLayout(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var req updateSeatLayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	updated, err := s.Rooms.UpdateSeatLayout(ctx, roomID, req.SeatLayout)
	if err != nil {
		handleRoomError(c, err)
		return
	}

	var occupied []string
	for _, seat := range updated.SeatLayout {
		if seat != types.EmptySeat {
			occupied = append(occupied, seat)
		}
	}
	if len(occupied) > 0 {
		msg := fmt.Sprintf("Party updated: %s", joinComma(occupied))
		_, _ = s.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, req.UpdatedBy, "", s.MaxLogs)
	}

	s.Presence.BroadcastToRoom(ctx, roomID, map[string]any{
		"event_type": "seat_change",
		"data":       updated.SeatLayout,
	})

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"room_id":     roomID,
		"seat_layout": updated.SeatLayout,
		"updated_by":  req.UpdatedBy,
	})
}

type updateSeatColorsRequest struct {
	SeatColors map[string]string `json:"seat_colors"`
	UpdatedBy  string            `json:"updated_by"`
}

// updateSeatColors handles PUT /game/{roomId}/colors.
func (s *Server) updateSeatColors(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var req updateSeatColorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	updated, err := s.Rooms.UpdateSeatColors(ctx, roomID, req.SeatColors)
	if err != nil {
		handleRoomError(c, err)
		return
	}

	s.Presence.BroadcastToRoom(ctx, roomID, map[string]any{
		"event_type": "color_change",
		"data": map[string]any{
			"seat_colors": updated.SeatColors,
			"changed_by":  req.UpdatedBy,
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"room_id":     roomID,
		"seat_colors": updated.SeatColors,
		"updated_by":  req.UpdatedBy,
	})
}

type updatePlayerCharacterRequest struct {
	PlayerName     string `json:"player_name"`
	CharacterID    string `json:"character_id"`
	CharacterName  string `json:"character_name"`
	CharacterClass string `json:"character_class"`
	CharacterRace  string `json:"character_race"`
	Level          int    `json:"level"`
	HPCurrent      int    `json:"hp_current"`
	HPMax          int    `json:"hp_max"`
	AC             int    `json:"ac"`
}

// updatePlayerCharacter handles PUT /game/{roomId}/player/character. Core
// state only tracks the seat name; character sheet fields are relayed as a
// broadcast for clients/api-site to consume, not persisted here.
func (s *Server) updatePlayerCharacter(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var req updatePlayerCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	if _, err := s.Rooms.GetRoom(ctx, roomID); err != nil {
		handleRoomError(c, err)
		return
	}

	s.Presence.BroadcastToRoom(ctx, roomID, map[string]any{
		"event_type": "player_character_changed",
		"data": map[string]any{
			"player_name":     req.PlayerName,
			"character_id":    req.CharacterID,
			"character_name":  req.CharacterName,
			"character_class": req.CharacterClass,
			"character_race":  req.CharacterRace,
			"level":           req.Level,
			"hp_current":      req.HPCurrent,
			"hp_max":          req.HPMax,
			"ac":              req.AC,
		},
	})

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Character updated successfully"})
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
