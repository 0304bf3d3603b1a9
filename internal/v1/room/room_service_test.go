package room

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/tabletop-tavern/api-game/internal/v1/store"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*store.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	c, err := store.NewClient(mr.Addr(), "")
	require.NoError(t, err)
	return c, mr.Close
}

func TestCreateRoom_SeedsSeatsAndColors(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	r, err := rs.CreateRoom(context.Background(), "", CreateSettings{
		MaxPlayers: 4,
		RoomHost:   "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", r.RoomHost)
	assert.Len(t, r.SeatLayout, 4)
	for _, seat := range r.SeatLayout {
		assert.Equal(t, types.EmptySeat, seat)
	}
	assert.Len(t, r.SeatColors, 4)
}

func TestCreateRoom_InvalidMaxPlayers(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	_, err := rs.CreateRoom(context.Background(), "", CreateSettings{MaxPlayers: 9})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateSeatLayout_LowercasesAndBoundsLength(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	r, err := rs.CreateRoom(context.Background(), "", CreateSettings{MaxPlayers: 2})
	require.NoError(t, err)

	updated, err := rs.UpdateSeatLayout(context.Background(), r.ID, []string{"ALICE", "Bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, updated.SeatLayout)

	_, err = rs.UpdateSeatLayout(context.Background(), r.ID, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateSeatCount_KeepsSurvivorsInPlace(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	r, err := rs.CreateRoom(context.Background(), "", CreateSettings{MaxPlayers: 4})
	require.NoError(t, err)
	_, err = rs.UpdateSeatLayout(context.Background(), r.ID, []string{"alice", "bob", "carol", "dan"})
	require.NoError(t, err)

	updated, err := rs.UpdateSeatCount(context.Background(), r.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, updated.SeatLayout)
	assert.Equal(t, 2, updated.MaxPlayers)
}

func TestUpdateSeatColors_RejectsInvalidHex(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	r, err := rs.CreateRoom(context.Background(), "", CreateSettings{MaxPlayers: 2})
	require.NoError(t, err)

	_, err = rs.UpdateSeatColors(context.Background(), r.ID, map[string]string{"0": "not-a-color"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = rs.UpdateSeatColors(context.Background(), r.ID, map[string]string{"0": "#abcdef"})
	assert.NoError(t, err)
}

func TestRoleChecks(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	r, err := rs.CreateRoom(context.Background(), "", CreateSettings{MaxPlayers: 2, RoomHost: "alice", DungeonMaster: "bob"})
	require.NoError(t, err)

	ctx := context.Background()
	host, err := rs.IsHost(ctx, r.ID, "ALICE")
	require.NoError(t, err)
	assert.True(t, host)

	dm, err := rs.IsDM(ctx, r.ID, "bob")
	require.NoError(t, err)
	assert.True(t, dm)

	mod, err := rs.IsModerator(ctx, r.ID, "alice")
	require.NoError(t, err)
	assert.True(t, mod, "host is always a moderator")

	mod, err = rs.IsModerator(ctx, r.ID, "carol")
	require.NoError(t, err)
	assert.False(t, mod)

	_, err = rs.AddModerator(ctx, r.ID, "Carol")
	require.NoError(t, err)
	mod, err = rs.IsModerator(ctx, r.ID, "carol")
	require.NoError(t, err)
	assert.True(t, mod)

	_, err = rs.RemoveModerator(ctx, r.ID, "carol")
	require.NoError(t, err)
	mod, err = rs.IsModerator(ctx, r.ID, "carol")
	require.NoError(t, err)
	assert.False(t, mod)
}

func TestUpdateAudioState_ReplacesChannel(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	r, err := rs.CreateRoom(context.Background(), "", CreateSettings{MaxPlayers: 2})
	require.NoError(t, err)

	started := 100.0
	updated, err := rs.UpdateAudioState(context.Background(), r.ID, "bgm", types.AudioChannel{
		Filename:      "boss.mp3",
		Volume:        0.8,
		Looping:       true,
		PlaybackState: types.PlaybackPlaying,
		StartedAt:     &started,
	})
	require.NoError(t, err)
	require.Contains(t, updated.AudioState, "bgm")
	assert.Equal(t, types.PlaybackPlaying, updated.AudioState["bgm"].PlaybackState)
}

func TestGetRoom_NotFound(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	rs := NewRoomService(s)
	_, err := rs.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
