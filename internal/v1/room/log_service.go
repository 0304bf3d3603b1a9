package room

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/store"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
)

// DefaultMaxLogs is the retention window used when a caller doesn't supply
// one explicitly.
const DefaultMaxLogs = 200

// lastLogID is the most recently issued log_id in this process.
var lastLogID atomic.Int64

// LogService is a bounded, per-room, append-only adventure log.
type LogService struct {
	store *store.Client
}

// NewLogService constructs a LogService over a document store client.
func NewLogService(s *store.Client) *LogService {
	return &LogService{store: s}
}

// AddEntry inserts a log entry and retains only the newest maxLogs for the
// room. log_id is the current time in microseconds, bumped past the last
// issued id when needed so ids are strictly increasing within the process,
// matching the original service's ordering scheme.
func (l *LogService) AddEntry(ctx context.Context, roomID, message string, logType types.LogType, playerName, promptID string, maxLogs int) (*types.LogEntry, error) {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	logID := time.Now().UnixMicro()
	for {
		last := lastLogID.Load()
		if logID <= last {
			logID = last + 1
		}
		if lastLogID.CompareAndSwap(last, logID) {
			break
		}
	}
	entry := &types.LogEntry{
		RoomID:     roomID,
		LogID:      logID,
		Message:    message,
		Type:       logType,
		Timestamp:  time.Now().Unix(),
		PlayerName: playerName,
		PromptID:   promptID,
	}

	if err := l.store.AddLogEntry(ctx, entry, maxLogs); err != nil {
		return nil, fmt.Errorf("add log entry: %w", err)
	}
	return entry, nil
}

// GetRoomLogs returns up to limit entries, newest-first, skipping skip.
func (l *LogService) GetRoomLogs(ctx context.Context, roomID string, limit, skip int) ([]*types.LogEntry, error) {
	entries, err := l.store.GetRoomLogs(ctx, roomID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("get room logs: %w", err)
	}
	return entries, nil
}

// RemoveByPromptID removes the single entry linked to promptID.
func (l *LogService) RemoveByPromptID(ctx context.Context, roomID, promptID string) (int, error) {
	n, err := l.store.RemoveLogByPromptID(ctx, roomID, promptID)
	if err != nil {
		return 0, fmt.Errorf("remove log by prompt id: %w", err)
	}
	return n, nil
}

// ClearSystemMessages deletes every system-typed entry for a room.
func (l *LogService) ClearSystemMessages(ctx context.Context, roomID string) (int, error) {
	n, err := l.store.ClearSystemMessages(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("clear system messages: %w", err)
	}
	return n, nil
}

// ClearAll deletes every entry for a room.
func (l *LogService) ClearAll(ctx context.Context, roomID string) (int, error) {
	n, err := l.store.ClearAll(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("clear all messages: %w", err)
	}
	return n, nil
}

// Stats summarizes a room's adventure log.
func (l *LogService) Stats(ctx context.Context, roomID string) (*types.LogStats, error) {
	stats, err := l.store.LogStats(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("log stats: %w", err)
	}
	return stats, nil
}
