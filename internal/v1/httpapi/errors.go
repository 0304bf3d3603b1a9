package httpapi

import (
	"errors"
	"net/http"

	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/gin-gonic/gin"
)

var (
	errMissingPlayerName      = errors.New("player_name is required")
	errMissingMapFilename     = errors.New("complete map object with filename is required")
	errGameAlreadyExists      = errors.New("game already exists for this session")
	errGameNotFoundForSession = errors.New("game not found for session")
)

// handleRoomError maps a room service sentinel error to its HTTP status,
// per the not-found/validation/conflict taxonomy shared with the WebSocket
// error-frame path.
func handleRoomError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, room.ErrNotFound):
		errorJSON(c, http.StatusNotFound, err)
	case errors.Is(err, room.ErrValidation):
		errorJSON(c, http.StatusBadRequest, err)
	case errors.Is(err, room.ErrConflict):
		errorJSON(c, http.StatusConflict, err)
	default:
		errorJSON(c, http.StatusInternalServerError, err)
	}
}
