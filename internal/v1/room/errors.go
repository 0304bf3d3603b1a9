package room

import "errors"

// Sentinel errors surfaced by the room services. HTTP handlers translate
// these to status codes; WebSocket handlers translate them to error frames.
var (
	ErrNotFound   = errors.New("room: not found")
	ErrValidation = errors.New("room: validation failed")
	ErrConflict   = errors.New("room: conflict")
)
