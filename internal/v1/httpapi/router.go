package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires every REST endpoint of the game control plane onto
// router, grouped under /game the way the original app.py does.
func (s *Server) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", okHealth)

	game := router.Group("/game")
	rooms := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	messages := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	if s.Limiter != nil {
		game.Use(s.Limiter.GlobalMiddleware())
		rooms = s.Limiter.MiddlewareForEndpoint("rooms")
		messages = s.Limiter.MiddlewareForEndpoint("messages")
	}
	{
		game.POST("/", rooms, s.createRoom)
		game.POST("/:roomId", rooms, s.createRoomWithID)

		game.POST("/session/start", rooms, s.startSession)
		game.POST("/session/end", rooms, s.endSession)
		game.DELETE("/session/:roomId", rooms, s.deleteSession)

		game.GET("/:roomId", s.getRoom)
		game.GET("/:roomId/roles", s.getRoles)

		game.POST("/:roomId/moderators", rooms, s.addModerator)
		game.DELETE("/:roomId/moderators", rooms, s.removeModerator)
		game.POST("/:roomId/dm", rooms, s.setDM)
		game.DELETE("/:roomId/dm", rooms, s.unsetDM)

		game.PUT("/:roomId/seats", rooms, s.updateSeatCount)
		game.PUT("/:roomId/seat-layout", rooms, s.updateSeatLayout)
		game.PUT("/:roomId/colors", rooms, s.updateSeatColors)
		game.PUT("/:roomId/player/character", rooms, s.updatePlayerCharacter)

		game.GET("/:roomId/active-map", s.getActiveMap)
		game.PUT("/:roomId/map", rooms, s.updateMap)

		game.GET("/:roomId/logs", s.getLogs)
		game.GET("/:roomId/logs/stats", s.getLogStats)
		game.DELETE("/:roomId/logs", messages, s.clearAllMessages)
		game.DELETE("/:roomId/logs/system", messages, s.clearSystemMessages)
	}
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func okHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
