package room

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetActiveMap_DeactivatesPrior(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ms := NewMapService(s)
	ctx := context.Background()

	first := &types.ActiveMap{RoomID: "r1", Filename: "dungeon.png", UploadedBy: "dm"}
	_, err := ms.SetActiveMap(ctx, first)
	require.NoError(t, err)

	second := &types.ActiveMap{RoomID: "r1", Filename: "tavern.png", UploadedBy: "dm"}
	_, err = ms.SetActiveMap(ctx, second)
	require.NoError(t, err)

	active, err := ms.GetActiveMap(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "tavern.png", active.Filename)

	stale, err := s.GetMap(ctx, "r1", "dungeon.png")
	require.NoError(t, err)
	assert.False(t, stale.Active)
}

func TestSetActiveMap_PreservesGridConfigOnReload(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ms := NewMapService(s)
	ctx := context.Background()

	grid := &types.GridConfig{Width: 32, Height: 32, Opacity: 0.5}
	_, err := ms.SetActiveMap(ctx, &types.ActiveMap{RoomID: "r1", Filename: "dungeon.png", GridConfig: grid})
	require.NoError(t, err)

	reloaded, err := ms.SetActiveMap(ctx, &types.ActiveMap{RoomID: "r1", Filename: "dungeon.png"})
	require.NoError(t, err)
	require.NotNil(t, reloaded.GridConfig)
	assert.Equal(t, 32.0, reloaded.GridConfig.Width)
}

func TestGetActiveMap_NotFound(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ms := NewMapService(s)
	_, err := ms.GetActiveMap(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMapConfig_OmittedVsNull(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ms := NewMapService(s)
	ctx := context.Background()

	grid := &types.GridConfig{Width: 10, Height: 10, Opacity: 1}
	_, err := ms.SetActiveMap(ctx, &types.ActiveMap{
		RoomID:         "r1",
		Filename:       "dungeon.png",
		GridConfig:     grid,
		MapImageConfig: json.RawMessage(`{"zoom":1}`),
	})
	require.NoError(t, err)

	updated, err := ms.UpdateMapConfig(ctx, "r1", "dungeon.png", json.RawMessage(`{"grid_config":{"width":20,"height":20,"opacity":1}}`))
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.GridConfig.Width)
	assert.JSONEq(t, `{"zoom":1}`, string(updated.MapImageConfig))

	cleared, err := ms.UpdateMapConfig(ctx, "r1", "dungeon.png", json.RawMessage(`{"map_image_config":null}`))
	require.NoError(t, err)
	assert.Nil(t, cleared.MapImageConfig)
	require.NotNil(t, cleared.GridConfig)
	assert.Equal(t, 20.0, cleared.GridConfig.Width)
}

func TestClearActiveMap(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	ms := NewMapService(s)
	ctx := context.Background()

	_, err := ms.SetActiveMap(ctx, &types.ActiveMap{RoomID: "r1", Filename: "dungeon.png"})
	require.NoError(t, err)

	require.NoError(t, ms.ClearActiveMap(ctx, "r1"))

	_, err = ms.GetActiveMap(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}
