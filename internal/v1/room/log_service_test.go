package room

import (
	"context"
	"fmt"
	"testing"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEntry_DefaultsMaxLogs(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ls := NewLogService(s)
	entry, err := ls.AddEntry(context.Background(), "r1", "hello", types.LogSystem, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, types.LogSystem, entry.Type)
	assert.NotZero(t, entry.LogID)
}

func TestAddEntry_RetentionBound(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ls := NewLogService(s)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := ls.AddEntry(ctx, "r1", fmt.Sprintf("msg-%d", i), types.LogSystem, "", "", 5)
		require.NoError(t, err)
	}

	logs, err := ls.GetRoomLogs(ctx, "r1", 100, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(logs), 5)
}

func TestRemoveByPromptID(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ls := NewLogService(s)
	ctx := context.Background()
	_, err := ls.AddEntry(ctx, "r1", "roll requested", types.LogPlayerRoll, "alice", "prompt-1", 0)
	require.NoError(t, err)

	n, err := ls.RemoveByPromptID(ctx, "r1", "prompt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ls.RemoveByPromptID(ctx, "r1", "prompt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClearSystemMessages(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ls := NewLogService(s)
	ctx := context.Background()
	_, err := ls.AddEntry(ctx, "r1", "sys", types.LogSystem, "", "", 0)
	require.NoError(t, err)
	_, err = ls.AddEntry(ctx, "r1", "roll", types.LogPlayerRoll, "alice", "", 0)
	require.NoError(t, err)

	n, err := ls.ClearSystemMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs, err := ls.GetRoomLogs(ctx, "r1", 100, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.LogPlayerRoll, logs[0].Type)
}

func TestLogStats(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ls := NewLogService(s)
	ctx := context.Background()
	_, err := ls.AddEntry(ctx, "r1", "sys", types.LogSystem, "", "", 0)
	require.NoError(t, err)
	_, err = ls.AddEntry(ctx, "r1", "roll", types.LogPlayerRoll, "alice", "", 0)
	require.NoError(t, err)

	stats, err := ls.Stats(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLogs)
	assert.Contains(t, stats.Players, "alice")
	assert.NotZero(t, stats.OldestLog)
	assert.NotZero(t, stats.NewestLog)
}
