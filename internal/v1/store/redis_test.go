package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "test"})

	return &Client{rdb: rdb, cb: cb}, mr
}

func TestSaveAndGetRoom(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	room := &types.Room{ID: "r1", MaxPlayers: 4, SeatLayout: []string{"empty", "empty", "empty", "empty"}}
	require.NoError(t, c.SaveRoom(context.Background(), room))

	got, err := c.GetRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, room.MaxPlayers, got.MaxPlayers)
}

func TestGetRoom_NotFound(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	_, err := c.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRoom(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	ctx := context.Background()
	room := &types.Room{ID: "r1", MaxPlayers: 4}
	require.NoError(t, c.SaveRoom(ctx, room))
	require.NoError(t, c.DeleteRoom(ctx, "r1", false))

	_, err := c.GetRoom(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveMap_SingleActive(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	ctx := context.Background()
	m1 := &types.ActiveMap{RoomID: "r1", Filename: "a.png", Active: true}
	require.NoError(t, c.SaveMap(ctx, m1))

	m2 := &types.ActiveMap{RoomID: "r1", Filename: "b.png", Active: true}
	require.NoError(t, c.SaveMap(ctx, m2))

	active, err := c.GetActiveMap(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "b.png", active.Filename)

	prior, err := c.GetMap(ctx, "r1", "a.png")
	require.NoError(t, err)
	assert.False(t, prior.Active)
}

func TestClearActiveMap(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.SaveMap(ctx, &types.ActiveMap{RoomID: "r1", Filename: "a.png", Active: true}))
	require.NoError(t, c.ClearActiveMap(ctx, "r1"))

	_, err := c.GetActiveMap(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddLogEntry_RetentionBound(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	ctx := context.Background()
	for i := int64(0); i < 10; i++ {
		err := c.AddLogEntry(ctx, &types.LogEntry{
			RoomID:    "r1",
			LogID:     i,
			Message:   "m",
			Type:      types.LogSystem,
			Timestamp: i,
		}, 5)
		require.NoError(t, err)
	}

	logs, err := c.GetRoomLogs(ctx, "r1", 0, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(logs), 5)
}

func TestRemoveLogByPromptID(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.AddLogEntry(ctx, &types.LogEntry{
		RoomID: "r1", LogID: 1, Message: "prompt", Type: types.LogDungeonMaster, PromptID: "p1",
	}, 200))

	n, err := c.RemoveLogByPromptID(ctx, "r1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.RemoveLogByPromptID(ctx, "r1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClearSystemMessages(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.AddLogEntry(ctx, &types.LogEntry{RoomID: "r1", LogID: 1, Type: types.LogSystem}, 200))
	require.NoError(t, c.AddLogEntry(ctx, &types.LogEntry{RoomID: "r1", LogID: 2, Type: types.LogPlayerRoll}, 200))

	n, err := c.ClearSystemMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs, err := c.GetRoomLogs(ctx, "r1", 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.LogPlayerRoll, logs[0].Type)
}

func TestLogStats(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.AddLogEntry(ctx, &types.LogEntry{RoomID: "r1", LogID: 1, Type: types.LogSystem, Timestamp: 10}, 200))
	require.NoError(t, c.AddLogEntry(ctx, &types.LogEntry{RoomID: "r1", LogID: 2, Type: types.LogPlayerRoll, PlayerName: "alice", Timestamp: 20}, 200))

	stats, err := c.LogStats(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLogs)
	assert.Contains(t, stats.Players, "alice")
	assert.Equal(t, int64(10), stats.OldestLog)
	assert.Equal(t, int64(20), stats.NewestLog)
}

func TestPing_NilClient(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Ping(context.Background()))
}
