package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tabletop-tavern/api-game/internal/v1/events"
	"github.com/gorilla/websocket"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var errSendBufferFull = errors.New("transport: client send buffer full")

// decodeEnvelope parses one inbound WebSocket frame into an events.Envelope.
// Returns ok=false for anything that isn't a well-formed {event_type, data}
// object so the caller can drop it without tearing down the connection.
func decodeEnvelope(raw []byte) (events.Envelope, bool) {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return events.Envelope{}, false
	}
	if env.EventType == "" {
		return events.Envelope{}, false
	}
	return env, true
}

// validateOrigin compares the request's Origin header against the
// configured allow list. An absent Origin header (non-browser clients,
// server-to-server calls) is always allowed.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return errors.New("invalid origin header")
	}
	originHost := parsed.Scheme + "://" + parsed.Host

	for _, allowed := range allowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || allowed == originHost {
			return nil
		}
	}
	return errors.New("origin not allowed")
}

// upgradeWebSocket upgrades an HTTP request to a WebSocket connection,
// wiring CheckOrigin to validateOrigin and a shared write buffer pool.
func upgradeWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

// normalizePlayerName lowercases and trims a player_name query param per
// the room's seat-name normalization contract.
func normalizePlayerName(raw string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(raw))
}
