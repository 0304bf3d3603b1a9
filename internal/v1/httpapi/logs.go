package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/gin-gonic/gin"
)

// getLogs handles GET /game/{roomId}/logs?limit=&skip=.
func (s *Server) getLogs(c *gin.Context) {
	roomID := c.Param("roomId")
	limit := queryInt(c, "limit", 100)
	skip := queryInt(c, "skip", 0)

	logs, err := s.Logs.GetRoomLogs(c.Request.Context(), roomID, limit, skip)
	if err != nil {
		handleRoomError(c, err)
		return
	}

	stats, err := s.Logs.Stats(c.Request.Context(), roomID)
	total := 0
	if err == nil {
		total = stats.TotalLogs
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":           logs,
		"total_count":    total,
		"returned_count": len(logs),
	})
}

// getLogStats handles GET /game/{roomId}/logs/stats.
func (s *Server) getLogStats(c *gin.Context) {
	stats, err := s.Logs.Stats(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		handleRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type clearMessagesRequest struct {
	ClearedBy string `json:"cleared_by"`
}

// clearSystemMessages handles DELETE /game/{roomId}/logs/system.
func (s *Server) clearSystemMessages(c *gin.Context) {
	s.clearMessages(c, s.Logs.ClearSystemMessages)
}

// clearAllMessages handles DELETE /game/{roomId}/logs.
func (s *Server) clearAllMessages(c *gin.Context) {
	s.clearMessages(c, s.Logs.ClearAll)
}

func (s *Server) clearMessages(c *gin.Context, clear func(ctx context.Context, roomID string) (int, error)) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	var req clearMessagesRequest
	_ = c.ShouldBindJSON(&req)
	if req.ClearedBy == "" {
		req.ClearedBy = "Unknown"
	}

	if _, err := s.Rooms.GetRoom(ctx, roomID); err != nil {
		handleRoomError(c, err)
		return
	}

	deleted, err := clear(ctx, roomID)
	if err != nil {
		handleRoomError(c, err)
		return
	}

	msg := req.ClearedBy + " cleared " + strconv.Itoa(deleted) + " messages"
	_, _ = s.Logs.AddEntry(ctx, roomID, msg, types.LogSystem, req.ClearedBy, "", s.MaxLogs)

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"room_id":       roomID,
		"deleted_count": deleted,
		"cleared_by":    req.ClearedBy,
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
