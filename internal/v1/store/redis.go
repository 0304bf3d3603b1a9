// Package store persists rooms, active maps and adventure logs to Redis
// behind a circuit breaker. It is the document store referenced throughout
// the room package: opaque-ID lookups, atomic per-key updates, no
// cross-document transactions.
//
// Key scheme:
//   - room:{id}                 -> JSON-encoded types.Room
//   - room:{id}:maps            -> set of filenames known for the room
//   - room:{id}:map:{filename}  -> JSON-encoded types.ActiveMap
//   - room:{id}:active_map      -> string, the active filename (absent if none)
//   - room:{id}:logs            -> sorted set, member=log_id, score=log_id
//   - room:{id}:logs:data       -> hash, field=log_id, value=JSON-encoded types.LogEntry
//   - room:{id}:logs:by_prompt  -> hash, field=prompt_id, value=log_id
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/logging"
	"github.com/tabletop-tavern/api-game/internal/v1/metrics"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a keyed lookup has no document.
var ErrNotFound = errors.New("store: document not found")

// SelectionTimeout bounds acquiring a connection/command slot; OperationTimeout
// bounds the full round trip of a store call, per the concurrency model's
// 5s/10s budget.
const (
	SelectionTimeout = 5 * time.Second
	OperationTimeout = 10 * time.Second
)

// Client wraps a Redis connection with a circuit breaker, mirroring the
// connection-pool-plus-breaker shape used for the bus in the ambient stack,
// repurposed here from pub/sub fan-out to keyed document storage.
type Client struct {
	rdb *redis.Client
	cb  *gobreaker.CircuitBreaker
}

// NewClient creates a document store client and verifies connectivity.
func NewClient(addr, password string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  OperationTimeout,
		WriteTimeout: OperationTimeout,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), SelectionTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "document_store",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("document_store").Set(stateVal)
		},
	}

	return &Client{rdb: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// Ping verifies connectivity, used by the readiness handler.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.rdb.Ping(ctx).Err()
	})
	return err
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func roomKey(id string) string          { return "room:" + id }
func mapsSetKey(id string) string       { return "room:" + id + ":maps" }
func mapKey(id, filename string) string { return "room:" + id + ":map:" + filename }
func activeMapKey(id string) string     { return "room:" + id + ":active_map" }
func logsZSetKey(id string) string      { return "room:" + id + ":logs" }
func logsDataKey(id string) string      { return "room:" + id + ":logs:data" }
func logsByPromptKey(id string) string  { return "room:" + id + ":logs:by_prompt" }

func (c *Client) execute(ctx context.Context, op string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	res, err := c.cb.Execute(fn)
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues("document_store").Inc()
			logging.Warn(ctx, "document store circuit open", zap.String("op", op))
		}
	}
	metrics.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	return res, err
}

// SaveRoom writes the full room document.
func (c *Client) SaveRoom(ctx context.Context, room *types.Room) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	_, err = c.execute(ctx, "save_room", func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, roomKey(room.ID), data, 0).Err()
	})
	return err
}

// GetRoom reads a room document. Returns ErrNotFound if absent.
func (c *Client) GetRoom(ctx context.Context, id string) (*types.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	res, err := c.execute(ctx, "get_room", func() (interface{}, error) {
		return c.rdb.Get(ctx, roomKey(id)).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var room types.Room
	if err := json.Unmarshal(res.([]byte), &room); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	return &room, nil
}

// DeleteRoom removes a room document and, optionally, its logs and maps.
func (c *Client) DeleteRoom(ctx context.Context, id string, keepLogs bool) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	_, err := c.execute(ctx, "delete_room", func() (interface{}, error) {
		pipe := c.rdb.TxPipeline()
		pipe.Del(ctx, roomKey(id))
		pipe.Del(ctx, activeMapKey(id))

		filenames, ferr := c.rdb.SMembers(ctx, mapsSetKey(id)).Result()
		if ferr == nil {
			for _, fn := range filenames {
				pipe.Del(ctx, mapKey(id, fn))
			}
		}
		pipe.Del(ctx, mapsSetKey(id))

		if !keepLogs {
			pipe.Del(ctx, logsZSetKey(id))
			pipe.Del(ctx, logsDataKey(id))
			pipe.Del(ctx, logsByPromptKey(id))
		}

		_, perr := pipe.Exec(ctx)
		return nil, perr
	})
	return err
}

// SaveMap writes a map document and maintains the room's filename set. If
// active is true, every other map in the room is deactivated first.
func (c *Client) SaveMap(ctx context.Context, m *types.ActiveMap) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	_, err := c.execute(ctx, "save_map", func() (interface{}, error) {
		if m.Active {
			if err := c.deactivateAllMapsLocked(ctx, m.RoomID); err != nil {
				return nil, err
			}
		}

		data, merr := json.Marshal(m)
		if merr != nil {
			return nil, fmt.Errorf("marshal map: %w", merr)
		}

		pipe := c.rdb.TxPipeline()
		pipe.Set(ctx, mapKey(m.RoomID, m.Filename), data, 0)
		pipe.SAdd(ctx, mapsSetKey(m.RoomID), m.Filename)
		if m.Active {
			pipe.Set(ctx, activeMapKey(m.RoomID), m.Filename, 0)
		}
		_, perr := pipe.Exec(ctx)
		return nil, perr
	})
	return err
}

func (c *Client) deactivateAllMapsLocked(ctx context.Context, roomID string) error {
	filenames, err := c.rdb.SMembers(ctx, mapsSetKey(roomID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, fn := range filenames {
		raw, gerr := c.rdb.Get(ctx, mapKey(roomID, fn)).Bytes()
		if gerr != nil {
			continue
		}
		var existing types.ActiveMap
		if err := json.Unmarshal(raw, &existing); err != nil {
			continue
		}
		if !existing.Active {
			continue
		}
		existing.Active = false
		data, merr := json.Marshal(&existing)
		if merr != nil {
			continue
		}
		if err := c.rdb.Set(ctx, mapKey(roomID, fn), data, 0).Err(); err != nil {
			return err
		}
	}
	return c.rdb.Del(ctx, activeMapKey(roomID)).Err()
}

// GetMap returns a room's map document for a given filename, if any.
func (c *Client) GetMap(ctx context.Context, roomID, filename string) (*types.ActiveMap, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	res, err := c.execute(ctx, "get_map", func() (interface{}, error) {
		return c.rdb.Get(ctx, mapKey(roomID, filename)).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var m types.ActiveMap
	if err := json.Unmarshal(res.([]byte), &m); err != nil {
		return nil, fmt.Errorf("unmarshal map: %w", err)
	}
	return &m, nil
}

// GetActiveMap returns the unique map with active=true for a room, if any.
func (c *Client) GetActiveMap(ctx context.Context, roomID string) (*types.ActiveMap, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	res, err := c.execute(ctx, "get_active_map", func() (interface{}, error) {
		filename, ferr := c.rdb.Get(ctx, activeMapKey(roomID)).Result()
		if ferr != nil {
			return nil, ferr
		}
		return c.rdb.Get(ctx, mapKey(roomID, filename)).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var m types.ActiveMap
	if err := json.Unmarshal(res.([]byte), &m); err != nil {
		return nil, fmt.Errorf("unmarshal map: %w", err)
	}
	return &m, nil
}

// ClearActiveMap deactivates every map row for a room.
func (c *Client) ClearActiveMap(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	_, err := c.execute(ctx, "clear_active_map", func() (interface{}, error) {
		return nil, c.deactivateAllMapsLocked(ctx, roomID)
	})
	return err
}

// AddLogEntry inserts a log entry, retaining only the newest maxLogs for the
// room (insert-then-prune, per the accepted log-retention tradeoff).
func (c *Client) AddLogEntry(ctx context.Context, entry *types.LogEntry, maxLogs int) error {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	idStr := strconv.FormatInt(entry.LogID, 10)

	_, err = c.execute(ctx, "add_log_entry", func() (interface{}, error) {
		pipe := c.rdb.TxPipeline()
		pipe.ZAdd(ctx, logsZSetKey(entry.RoomID), redis.Z{Score: float64(entry.LogID), Member: idStr})
		pipe.HSet(ctx, logsDataKey(entry.RoomID), idStr, data)
		if entry.PromptID != "" {
			pipe.HSet(ctx, logsByPromptKey(entry.RoomID), entry.PromptID, idStr)
		}
		// Keep only the newest maxLogs members: drop everything below rank
		// (count - maxLogs), i.e. the lowest-scored (oldest) excess entries.
		pipe.ZRemRangeByRank(ctx, logsZSetKey(entry.RoomID), 0, int64(-maxLogs-1))
		_, perr := pipe.Exec(ctx)
		return nil, perr
	})
	if err != nil {
		return err
	}

	return c.pruneOrphanedLogData(ctx, entry.RoomID)
}

// pruneOrphanedLogData removes hash/index entries for log_ids that were
// trimmed from the sorted set by the retention step above.
func (c *Client) pruneOrphanedLogData(ctx context.Context, roomID string) error {
	ids, err := c.rdb.ZRange(ctx, logsZSetKey(roomID), 0, -1).Result()
	if err != nil {
		return err
	}
	kept := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		kept[id] = struct{}{}
	}

	allFields, err := c.rdb.HKeys(ctx, logsDataKey(roomID)).Result()
	if err != nil {
		return err
	}
	var stale []string
	for _, f := range allFields {
		if _, ok := kept[f]; !ok {
			stale = append(stale, f)
		}
	}
	if len(stale) > 0 {
		if err := c.rdb.HDel(ctx, logsDataKey(roomID), stale...).Err(); err != nil {
			return err
		}
	}

	byPrompt, err := c.rdb.HGetAll(ctx, logsByPromptKey(roomID)).Result()
	if err != nil {
		return err
	}
	var stalePrompts []string
	for promptID, logID := range byPrompt {
		if _, ok := kept[logID]; !ok {
			stalePrompts = append(stalePrompts, promptID)
		}
	}
	if len(stalePrompts) > 0 {
		if err := c.rdb.HDel(ctx, logsByPromptKey(roomID), stalePrompts...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// GetRoomLogs returns up to limit log entries, newest-first, skipping skip.
func (c *Client) GetRoomLogs(ctx context.Context, roomID string, limit, skip int) ([]*types.LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	res, err := c.execute(ctx, "get_room_logs", func() (interface{}, error) {
		start := int64(skip)
		stop := int64(skip + limit - 1)
		if limit <= 0 {
			stop = -1
		}
		return c.rdb.ZRevRange(ctx, logsZSetKey(roomID), start, stop).Result()
	})
	if err != nil {
		return nil, err
	}
	ids, _ := res.([]string)
	if len(ids) == 0 {
		return []*types.LogEntry{}, nil
	}

	raws, err := c.rdb.HMGet(ctx, logsDataKey(roomID), ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*types.LogEntry, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var entry types.LogEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// RemoveLogByPromptID removes the single entry linked to promptID, returning
// the number of entries deleted (0 or 1).
func (c *Client) RemoveLogByPromptID(ctx context.Context, roomID, promptID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	res, err := c.execute(ctx, "remove_log_by_prompt", func() (interface{}, error) {
		logID, gerr := c.rdb.HGet(ctx, logsByPromptKey(roomID), promptID).Result()
		if gerr != nil {
			if errors.Is(gerr, redis.Nil) {
				return 0, nil
			}
			return nil, gerr
		}

		pipe := c.rdb.TxPipeline()
		pipe.ZRem(ctx, logsZSetKey(roomID), logID)
		pipe.HDel(ctx, logsDataKey(roomID), logID)
		pipe.HDel(ctx, logsByPromptKey(roomID), promptID)
		_, perr := pipe.Exec(ctx)
		if perr != nil {
			return nil, perr
		}
		return 1, nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := res.(int)
	return n, nil
}

// ClearSystemMessages deletes every system-typed log entry for a room.
func (c *Client) ClearSystemMessages(ctx context.Context, roomID string) (int, error) {
	return c.clearLogsMatching(ctx, roomID, "clear_system_messages", func(e *types.LogEntry) bool {
		return e.Type == types.LogSystem
	})
}

// ClearAll deletes every log entry for a room.
func (c *Client) ClearAll(ctx context.Context, roomID string) (int, error) {
	return c.clearLogsMatching(ctx, roomID, "clear_all_messages", func(*types.LogEntry) bool {
		return true
	})
}

func (c *Client) clearLogsMatching(ctx context.Context, roomID, op string, match func(*types.LogEntry) bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	res, err := c.execute(ctx, op, func() (interface{}, error) {
		entries, gerr := c.allLogEntries(ctx, roomID)
		if gerr != nil {
			return nil, gerr
		}

		pipe := c.rdb.TxPipeline()
		deleted := 0
		for _, e := range entries {
			if !match(e) {
				continue
			}
			idStr := strconv.FormatInt(e.LogID, 10)
			pipe.ZRem(ctx, logsZSetKey(roomID), idStr)
			pipe.HDel(ctx, logsDataKey(roomID), idStr)
			if e.PromptID != "" {
				pipe.HDel(ctx, logsByPromptKey(roomID), e.PromptID)
			}
			deleted++
		}
		if deleted > 0 {
			if _, perr := pipe.Exec(ctx); perr != nil {
				return nil, perr
			}
		}
		return deleted, nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := res.(int)
	return n, nil
}

func (c *Client) allLogEntries(ctx context.Context, roomID string) ([]*types.LogEntry, error) {
	raws, err := c.rdb.HGetAll(ctx, logsDataKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]*types.LogEntry, 0, len(raws))
	for _, raw := range raws {
		var entry types.LogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// LogStats aggregates a room's log collection.
func (c *Client) LogStats(ctx context.Context, roomID string) (*types.LogStats, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	res, err := c.execute(ctx, "log_stats", func() (interface{}, error) {
		return c.allLogEntries(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	entries, _ := res.([]*types.LogEntry)

	stats := &types.LogStats{TotalLogs: len(entries)}
	typeSet := map[string]struct{}{}
	playerSet := map[string]struct{}{}
	for i, e := range entries {
		typeSet[string(e.Type)] = struct{}{}
		if e.PlayerName != "" {
			playerSet[e.PlayerName] = struct{}{}
		}
		if i == 0 || e.Timestamp < stats.OldestLog {
			stats.OldestLog = e.Timestamp
		}
		if i == 0 || e.Timestamp > stats.NewestLog {
			stats.NewestLog = e.Timestamp
		}
	}
	for t := range typeSet {
		stats.Types = append(stats.Types, t)
	}
	for p := range playerSet {
		stats.Players = append(stats.Players, p)
	}
	sort.Strings(stats.Types)
	sort.Strings(stats.Players)
	return stats, nil
}
