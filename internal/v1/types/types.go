// Package types holds the wire- and storage-level data model shared across
// the room, store, events, transport and httpapi packages.
package types

import "encoding/json"

// PlaybackState is the discriminator for an AudioChannel's transport state.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackStopped PlaybackState = "stopped"
)

// ActiveDisplay is what a room's clients should primarily render.
type ActiveDisplay string

const (
	ActiveDisplayMap  ActiveDisplay = "map"
	ActiveDisplayNone ActiveDisplay = ""
)

// DefaultSeatColors is the fixed eight-color palette new rooms seed their
// seat_colors with, keyed by seat index once stringified.
var DefaultSeatColors = [8]string{
	"#3b82f6", "#ef4444", "#22c55e", "#f97316",
	"#a855f7", "#06b6d4", "#ec4899", "#65a30d",
}

// EmptySeat is the sentinel occupying an unassigned seat.
const EmptySeat = "empty"

// Room is the authoritative per-room document.
type Room struct {
	ID            string            `json:"id"`
	MaxPlayers    int               `json:"max_players"`
	SeatLayout    []string          `json:"seat_layout"`
	SeatColors    map[string]string `json:"seat_colors"`
	RoomHost      string            `json:"room_host"`
	DungeonMaster string            `json:"dungeon_master"`
	Moderators    []string          `json:"moderators"`
	AudioState    map[string]AudioChannel `json:"audio_state"`
	ActiveDisplay ActiveDisplay     `json:"active_display"`
	CreatedAt     int64             `json:"created_at"`
}

// AudioChannel is a single named audio slot's playback state.
type AudioChannel struct {
	Filename      string        `json:"filename,omitempty"`
	AssetID       *string       `json:"asset_id,omitempty"`
	S3URL         *string       `json:"s3_url,omitempty"`
	Volume        float64       `json:"volume"`
	Looping       bool          `json:"looping"`
	PlaybackState PlaybackState `json:"playback_state"`
	StartedAt     *float64      `json:"started_at,omitempty"`
	PausedElapsed *float64      `json:"paused_elapsed,omitempty"`
}

// GridConfig is a map's grid overlay.
type GridConfig struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Opacity  float64 `json:"opacity"`
	OffsetX  float64 `json:"offset_x"`
	OffsetY  float64 `json:"offset_y"`
}

// ActiveMap is a room's map document, keyed by (room_id, filename).
type ActiveMap struct {
	RoomID           string          `json:"room_id"`
	Filename         string          `json:"filename"`
	OriginalFilename string          `json:"original_filename"`
	FilePath         string          `json:"file_path"`
	AssetID          *string         `json:"asset_id,omitempty"`
	GridConfig       *GridConfig     `json:"grid_config,omitempty"`
	// MapImageConfig is never interpreted by the core; its shape is owned by
	// the client, so it is carried as opaque JSON rather than a typed struct.
	MapImageConfig json.RawMessage `json:"map_image_config,omitempty"`
	UploadedBy     string          `json:"uploaded_by"`
	Active         bool            `json:"active"`
}

// LogType enumerates the adventure log entry kinds in use.
type LogType string

const (
	LogSystem        LogType = "system"
	LogPlayerRoll     LogType = "player-roll"
	LogDungeonMaster LogType = "dungeon-master"
)

// LogEntry is a single append-only adventure log row.
type LogEntry struct {
	RoomID     string  `json:"room_id"`
	LogID      int64   `json:"log_id"`
	Message    string  `json:"message"`
	Type       LogType `json:"type"`
	Timestamp  int64   `json:"timestamp"`
	PlayerName string  `json:"player_name,omitempty"`
	PromptID   string  `json:"prompt_id,omitempty"`
}

// LogStats summarizes a room's adventure log.
type LogStats struct {
	TotalLogs int      `json:"total_logs"`
	Types     []string `json:"types"`
	Players   []string `json:"players"`
	OldestLog int64    `json:"oldest_log,omitempty"`
	NewestLog int64    `json:"newest_log,omitempty"`
}

// PresenceStatus is the connectedness of a tracked player.
type PresenceStatus string

const (
	StatusConnected    PresenceStatus = "connected"
	StatusDisconnecting PresenceStatus = "disconnecting"
)

// SessionStats is the summary body returned by POST /game/session/end.
type SessionStats struct {
	DurationMinutes float64 `json:"duration_minutes"`
	TotalLogs       int     `json:"total_logs"`
	MaxPlayers      int     `json:"max_players"`
}
