package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/gin-gonic/gin"
)

type assetSpec struct {
	AssetID  string `json:"asset_id"`
	Filename string `json:"filename"`
}

type sessionStartRequest struct {
	SessionID     string         `json:"session_id"`
	DMUsername    string         `json:"dm_username"`
	MaxPlayers    int            `json:"max_players"`
	CampaignID    string         `json:"campaign_id"`
	JoinedUserIDs []string       `json:"joined_user_ids"`
	Assets        []assetSpec    `json:"assets"`
	AudioConfig   map[string]any `json:"audio_config"`
}

// startSession handles POST /game/session/start: the api-site-driven
// entrypoint that seeds a minimal room for a catalog session.
func (s *Server) startSession(c *gin.Context) {
	var req sessionStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if req.MaxPlayers < 1 {
		req.MaxPlayers = 4
	}

	ctx := c.Request.Context()
	if _, err := s.Rooms.GetRoom(ctx, req.SessionID); err == nil {
		errorJSON(c, http.StatusConflict, errGameAlreadyExists)
		return
	}

	colors := make(map[string]string, req.MaxPlayers)
	for i := 0; i < req.MaxPlayers; i++ {
		colors[strconv.Itoa(i)] = types.DefaultSeatColors[i%len(types.DefaultSeatColors)]
	}

	_, err := s.Rooms.CreateRoom(ctx, req.SessionID, room.CreateSettings{
		MaxPlayers:    req.MaxPlayers,
		RoomHost:      req.DMUsername,
		DungeonMaster: req.DMUsername,
		SeatColors:    colors,
	})
	if err != nil {
		handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": req.SessionID,
		"message":    "Game created successfully for session",
	})
}

type sessionEndRequest struct {
	SessionID string `json:"session_id"`
}

// endSession handles POST /game/session/end?validate_only=: returns the
// final room state for api-site to persist. With validate_only=false
// (deprecated path) it also deletes the room in the same call.
func (s *Server) endSession(c *gin.Context) {
	var req sessionEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	validateOnly := c.Query("validate_only") == "true"

	ctx := c.Request.Context()
	r, err := s.Rooms.GetRoom(ctx, req.SessionID)
	if err != nil {
		errorJSON(c, http.StatusNotFound, errGameNotFoundForSession)
		return
	}

	var players []map[string]any
	for idx, seat := range r.SeatLayout {
		if seat == types.EmptySeat {
			continue
		}
		players = append(players, map[string]any{
			"player_name":  seat,
			"seat_position": idx,
			"seat_color":   r.SeatColors[strconv.Itoa(idx)],
		})
	}

	durationMinutes := float64(0)
	if r.CreatedAt > 0 {
		durationMinutes = time.Since(time.Unix(r.CreatedAt, 0)).Minutes()
	}

	logCount := 0
	if stats, err := s.Logs.Stats(ctx, req.SessionID); err == nil {
		logCount = stats.TotalLogs
	}

	// No active map is not an error here: most sessions end without one set.
	var mapState *types.ActiveMap
	if m, err := s.Maps.GetActiveMap(ctx, req.SessionID); err == nil {
		mapState = m
	}

	finalState := gin.H{
		"players": players,
		"session_stats": types.SessionStats{
			DurationMinutes: durationMinutes,
			TotalLogs:       logCount,
			MaxPlayers:      r.MaxPlayers,
		},
		"audio_state": r.AudioState,
		"map_state":   mapState,
	}

	message := "Final state retrieved"
	if !validateOnly {
		_ = s.Rooms.DeleteRoom(ctx, req.SessionID, true)
		message = "Session ended"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"final_state": finalState,
		"message":     message,
	})
}

// deleteSession handles DELETE /game/session/{roomId}?keep_logs=: the final
// phase of api-site's fail-safe two-phase commit, closing live sockets
// before tearing the room down.
func (s *Server) deleteSession(c *gin.Context) {
	roomID := c.Param("roomId")
	keepLogs := c.DefaultQuery("keep_logs", "true") == "true"
	ctx := c.Request.Context()

	if _, err := s.Rooms.GetRoom(ctx, roomID); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session already deleted"})
		return
	}

	s.Presence.CloseRoomConnections(roomID, "Session ended")

	if err := s.Rooms.DeleteRoom(ctx, roomID, keepLogs); err != nil {
		handleRoomError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session deleted successfully"})
}

