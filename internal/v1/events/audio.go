package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
)

type audioTrack struct {
	ChannelID string  `json:"channelId"`
	Filename  string  `json:"filename"`
	AssetID   *string `json:"asset_id,omitempty"`
	S3URL     *string `json:"s3_url,omitempty"`
	Volume    float64 `json:"volume"`
	Looping   bool    `json:"looping"`
}

type remoteAudioPlayData struct {
	TriggeredBy string       `json:"triggered_by"`
	Tracks      []audioTrack `json:"tracks"`
	TrackType   string       `json:"track_type"`
	AudioFile   string       `json:"audio_file"`
	Loop        *bool        `json:"loop"`
	Volume      *float64     `json:"volume"`
}

// handleRemoteAudioPlay sets each named channel to playing with started_at
// now, persisting best-effort: if the write fails the broadcast still goes
// out, since connected clients already have the authoritative command.
func handleRemoteAudioPlay(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body remoteAudioPlayData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal remote audio play: %w", err)
	}
	if body.TriggeredBy == "" {
		body.TriggeredBy = player
	}

	tracks := body.Tracks
	if len(tracks) == 0 {
		if body.TrackType == "" || body.AudioFile == "" {
			return nil, fmt.Errorf("remote_audio_play requires track_type and audio_file, or tracks")
		}
		looping := true
		if body.Loop != nil {
			looping = *body.Loop
		}
		volume := 1.0
		if body.Volume != nil {
			volume = *body.Volume
		}
		tracks = []audioTrack{{ChannelID: body.TrackType, Filename: body.AudioFile, Looping: looping, Volume: volume}}
	}

	now := float64(time.Now().Unix())
	for _, t := range tracks {
		volume := t.Volume
		if volume == 0 {
			volume = 0.8
		}
		channel := types.AudioChannel{
			Filename:      t.Filename,
			AssetID:       t.AssetID,
			S3URL:         t.S3URL,
			Volume:        volume,
			Looping:       t.Looping,
			PlaybackState: types.PlaybackPlaying,
			StartedAt:     &now,
		}
		if _, err := d.Rooms.UpdateAudioState(ctx, roomID, t.ChannelID, channel); err != nil {
			continue
		}
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "remote_audio_play",
			"data": map[string]any{
				"tracks":       tracks,
				"triggered_by": body.TriggeredBy,
			},
		},
	}, nil
}

type remoteAudioResumeData struct {
	TriggeredBy string       `json:"triggered_by"`
	Tracks      []audioTrack `json:"tracks"`
	TrackType   string       `json:"track_type"`
}

// handleRemoteAudioResume recomputes started_at := now - paused_elapsed for
// each named channel.
func handleRemoteAudioResume(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body remoteAudioResumeData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal remote audio resume: %w", err)
	}
	if body.TriggeredBy == "" {
		body.TriggeredBy = player
	}

	channelIDs := make([]string, 0, len(body.Tracks)+1)
	for _, t := range body.Tracks {
		channelIDs = append(channelIDs, t.ChannelID)
	}
	if len(channelIDs) == 0 && body.TrackType != "" {
		channelIDs = append(channelIDs, body.TrackType)
	}
	if len(channelIDs) == 0 {
		return nil, fmt.Errorf("remote_audio_resume requires track_type or tracks")
	}

	r, err := d.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return errorResult(player, err), nil
	}

	now := float64(time.Now().Unix())
	for _, id := range channelIDs {
		ch, ok := r.AudioState[id]
		if !ok {
			continue
		}
		elapsed := 0.0
		if ch.PausedElapsed != nil {
			elapsed = *ch.PausedElapsed
		}
		started := now - elapsed
		ch.PlaybackState = types.PlaybackPlaying
		ch.StartedAt = &started
		ch.PausedElapsed = nil
		if _, err := d.Rooms.UpdateAudioState(ctx, roomID, id, ch); err != nil {
			continue
		}
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "remote_audio_resume",
			"data": map[string]any{
				"tracks":       body.Tracks,
				"triggered_by": body.TriggeredBy,
				"track_type":   body.TrackType,
			},
		},
	}, nil
}

type batchOperation struct {
	TrackID   string   `json:"trackId"`
	Operation string   `json:"operation"`
	Filename  string   `json:"filename,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Looping   *bool    `json:"looping,omitempty"`
	AssetID   *string  `json:"asset_id,omitempty"`
	S3URL     *string  `json:"s3_url,omitempty"`
}

type remoteAudioBatchData struct {
	Operations   []batchOperation `json:"operations"`
	TriggeredBy  string           `json:"triggered_by"`
	FadeDuration *float64         `json:"fade_duration,omitempty"`
}

var validBatchOps = map[string]bool{
	"play": true, "stop": true, "pause": true, "resume": true,
	"volume": true, "loop": true, "load": true,
}

// handleRemoteAudioBatch validates and applies a sequence of per-track
// operations with read-modify-write semantics against one pre-fetched
// audio_state snapshot, then issues a single broadcast for the whole batch.
func handleRemoteAudioBatch(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body remoteAudioBatchData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal remote audio batch: %w", err)
	}
	if body.TriggeredBy == "" {
		body.TriggeredBy = player
	}
	if len(body.Operations) == 0 {
		return nil, fmt.Errorf("remote_audio_batch requires a non-empty operations array")
	}
	for i, op := range body.Operations {
		if op.TrackID == "" || op.Operation == "" || !validBatchOps[op.Operation] {
			return nil, fmt.Errorf("invalid batch operation %d: %q", i, op.Operation)
		}
		switch op.Operation {
		case "play", "load":
			if op.Filename == "" {
				return nil, fmt.Errorf("batch operation %d (%s) missing filename", i, op.Operation)
			}
		case "volume":
			if op.Volume == nil {
				return nil, fmt.Errorf("batch operation %d (volume) missing volume", i)
			}
		case "loop":
			if op.Looping == nil {
				return nil, fmt.Errorf("batch operation %d (loop) missing looping", i)
			}
		}
	}

	r, err := d.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return errorResult(player, err), nil
	}
	now := float64(time.Now().Unix())

	// Clone before mutating: r came from the shared read-through cache and
	// must not be written into in place (see room.RoomService.GetRoom).
	channels := make(map[string]types.AudioChannel, len(r.AudioState))
	for k, v := range r.AudioState {
		channels[k] = v
	}

	for _, op := range body.Operations {
		ch := channels[op.TrackID]
		switch op.Operation {
		case "play":
			volume := 0.8
			if op.Volume != nil {
				volume = *op.Volume
			}
			ch = types.AudioChannel{
				Filename: op.Filename, AssetID: op.AssetID, S3URL: op.S3URL,
				Volume: volume, Looping: op.Looping == nil || *op.Looping,
				PlaybackState: types.PlaybackPlaying, StartedAt: &now,
			}
		case "stop":
			ch.PlaybackState = types.PlaybackStopped
			ch.StartedAt, ch.PausedElapsed = nil, nil
		case "pause":
			elapsed := 0.0
			if ch.StartedAt != nil {
				elapsed = now - *ch.StartedAt
			}
			ch.PlaybackState = types.PlaybackPaused
			ch.PausedElapsed = &elapsed
			ch.StartedAt = nil
		case "resume":
			elapsed := 0.0
			if ch.PausedElapsed != nil {
				elapsed = *ch.PausedElapsed
			}
			started := now - elapsed
			ch.PlaybackState = types.PlaybackPlaying
			ch.StartedAt = &started
			ch.PausedElapsed = nil
		case "volume":
			ch.Volume = *op.Volume
		case "loop":
			ch.Looping = *op.Looping
		case "load":
			volume := 0.8
			if op.Volume != nil {
				volume = *op.Volume
			}
			ch = types.AudioChannel{
				Filename: op.Filename, AssetID: op.AssetID, S3URL: op.S3URL,
				Volume: volume, Looping: op.Looping == nil || *op.Looping,
				PlaybackState: types.PlaybackStopped,
			}
		}
		if _, err := d.Rooms.UpdateAudioState(ctx, roomID, op.TrackID, ch); err != nil {
			continue
		}
		channels[op.TrackID] = ch
	}

	broadcastData := map[string]any{
		"operations":   body.Operations,
		"triggered_by": body.TriggeredBy,
	}
	if body.FadeDuration != nil {
		broadcastData["fade_duration"] = *body.FadeDuration
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "remote_audio_batch",
			"data":       broadcastData,
		},
	}, nil
}
