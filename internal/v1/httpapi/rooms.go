package httpapi

import (
	"context"
	"net/http"

	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	MaxPlayers    int               `json:"max_players"`
	RoomHost      string            `json:"room_host"`
	DungeonMaster string            `json:"dungeon_master"`
	SeatColors    map[string]string `json:"seat_colors"`
}

func (req createRoomRequest) toSettings() room.CreateSettings {
	return room.CreateSettings{
		MaxPlayers:    req.MaxPlayers,
		RoomHost:      req.RoomHost,
		DungeonMaster: req.DungeonMaster,
		SeatColors:    req.SeatColors,
	}
}

// createRoom handles POST /game/ - create a room with a server-minted id.
func (s *Server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	r, err := s.Rooms.CreateRoom(c.Request.Context(), "", req.toSettings())
	if err != nil {
		handleRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": r.ID})
}

// createRoomWithID handles POST /game/{roomId} - create a room with a
// caller-assigned id (used when api-site pre-allocates the catalog row).
func (s *Server) createRoomWithID(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	r, err := s.Rooms.CreateRoom(c.Request.Context(), c.Param("roomId"), req.toSettings())
	if err != nil {
		handleRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": r.ID})
}

// getRoom handles GET /game/{roomId}.
func (s *Server) getRoom(c *gin.Context) {
	r, err := s.Rooms.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		handleRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                  r.ID,
		"max_players":         r.MaxPlayers,
		"seat_layout":         r.SeatLayout,
		"seat_colors":         r.SeatColors,
		"room_host":           r.RoomHost,
		"dungeon_master":      r.DungeonMaster,
		"moderators":          r.Moderators,
		"audio_state":         r.AudioState,
		"active_display":      r.ActiveDisplay,
		"created_at":          r.CreatedAt,
		"current_seat_layout": r.SeatLayout,
	})
}

// getRoles handles GET /game/{roomId}/roles?playerName=.
func (s *Server) getRoles(c *gin.Context) {
	roomID := c.Param("roomId")
	player := c.Query("playerName")
	ctx := c.Request.Context()

	if _, err := s.Rooms.GetRoom(ctx, roomID); err != nil {
		handleRoomError(c, err)
		return
	}

	isHost, err := s.Rooms.IsHost(ctx, roomID, player)
	if err != nil {
		handleRoomError(c, err)
		return
	}
	isModerator, err := s.Rooms.IsModerator(ctx, roomID, player)
	if err != nil {
		handleRoomError(c, err)
		return
	}
	isDM, err := s.Rooms.IsDM(ctx, roomID, player)
	if err != nil {
		handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"is_host":      isHost,
		"is_moderator": isModerator,
		"is_dm":        isDM,
	})
}

type playerNameRequest struct {
	PlayerName string `json:"player_name"`
}

// addModerator handles POST /game/{roomId}/moderators.
func (s *Server) addModerator(c *gin.Context) {
	var req playerNameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerName == "" {
		errorJSON(c, http.StatusBadRequest, errMissingPlayerName)
		return
	}

	roomID := c.Param("roomId")
	r, err := s.Rooms.AddModerator(c.Request.Context(), roomID, req.PlayerName)
	if err != nil {
		handleRoomError(c, err)
		return
	}
	s.broadcastRoleChange(c.Request.Context(), roomID, "add_moderator", req.PlayerName, "System")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": req.PlayerName + " added as moderator", "moderators": r.Moderators})
}

// removeModerator handles DELETE /game/{roomId}/moderators.
func (s *Server) removeModerator(c *gin.Context) {
	var req playerNameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerName == "" {
		errorJSON(c, http.StatusBadRequest, errMissingPlayerName)
		return
	}

	roomID := c.Param("roomId")
	r, err := s.Rooms.RemoveModerator(c.Request.Context(), roomID, req.PlayerName)
	if err != nil {
		handleRoomError(c, err)
		return
	}
	s.broadcastRoleChange(c.Request.Context(), roomID, "remove_moderator", req.PlayerName, "System")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": req.PlayerName + " removed from moderators", "moderators": r.Moderators})
}

// setDM handles POST /game/{roomId}/dm.
func (s *Server) setDM(c *gin.Context) {
	var req playerNameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerName == "" {
		errorJSON(c, http.StatusBadRequest, errMissingPlayerName)
		return
	}

	roomID := c.Param("roomId")
	if _, err := s.Rooms.SetDM(c.Request.Context(), roomID, req.PlayerName); err != nil {
		handleRoomError(c, err)
		return
	}
	s.broadcastRoleChange(c.Request.Context(), roomID, "set_dm", req.PlayerName, "System")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": req.PlayerName + " set as Dungeon Master"})
}

// unsetDM handles DELETE /game/{roomId}/dm.
func (s *Server) unsetDM(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	r, err := s.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		handleRoomError(c, err)
		return
	}
	formerDM := r.DungeonMaster

	if _, err := s.Rooms.UnsetDM(ctx, roomID); err != nil {
		handleRoomError(c, err)
		return
	}
	s.broadcastRoleChange(ctx, roomID, "unset_dm", formerDM, "System")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Dungeon Master removed"})
}

func (s *Server) broadcastRoleChange(ctx context.Context, roomID, action, target, changedBy string) {
	s.Presence.Room(roomID).BroadcastToRoom(ctx, map[string]any{
		"event_type": "role_change",
		"data": map[string]any{
			"action":        action,
			"target_player": target,
			"changed_by":    changedBy,
		},
	})
}
