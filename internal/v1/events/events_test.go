package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/tabletop-tavern/api-game/internal/v1/store"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSocket) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSocket) Close(string) error { return nil }

func (f *fakeSocket) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, frame := range f.frames {
		var env struct {
			EventType string `json:"event_type"`
		}
		_ = json.Unmarshal(frame, &env)
		out[i] = env.EventType
	}
	return out
}

func newTestSetup(t *testing.T) (*Dispatcher, *presence.Room, *fakeSocket, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	s, err := store.NewClient(mr.Addr(), "")
	require.NoError(t, err)

	deps := &Deps{
		Rooms:   room.NewRoomService(s),
		Maps:    room.NewMapService(s),
		Logs:    room.NewLogService(s),
		MaxLogs: 200,
	}
	_, err = deps.Rooms.CreateRoom(context.Background(), "r1", room.CreateSettings{MaxPlayers: 4})
	require.NoError(t, err)

	mgr := presence.NewManager(30 * time.Second)
	r := mgr.Room("r1")
	sock := &fakeSocket{}
	r.Accept(context.Background(), "alice", sock)

	return NewDispatcher(deps), r, sock, mr.Close
}

func TestDispatch_SeatChange(t *testing.T) {
	dispatcher, r, sock, cleanup := newTestSetup(t)
	defer cleanup()

	handled, err := dispatcher.Dispatch(context.Background(), r, "alice", Envelope{
		EventType: "seat_change",
		Data:      json.RawMessage(`["alice","empty","empty","empty"]`),
	})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, sock.events(), "seat_change")
}

func TestDispatch_UnknownEventIsNoop(t *testing.T) {
	dispatcher, r, _, cleanup := newTestSetup(t)
	defer cleanup()

	handled, err := dispatcher.Dispatch(context.Background(), r, "alice", Envelope{EventType: "not_a_real_event"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestDispatch_PromptRollPairing(t *testing.T) {
	dispatcher, r, sock, cleanup := newTestSetup(t)
	defer cleanup()
	ctx := context.Background()

	_, err := dispatcher.Dispatch(ctx, r, "dm", Envelope{
		EventType: "dice_prompt",
		Data:      json.RawMessage(`{"prompted_player":"bob","roll_type":"dex save","prompted_by":"dm","prompt_id":"p1"}`),
	})
	require.NoError(t, err)

	logs, err := dispatcher.deps.Logs.GetRoomLogs(ctx, "r1", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "p1", logs[0].PromptID)

	_, err = dispatcher.Dispatch(ctx, r, "bob", Envelope{
		EventType: "dice_roll",
		Data:      json.RawMessage(`{"player":"bob","diceNotation":"1d20","results":[17],"modifier":2,"total":19,"prompt_id":"p1"}`),
	})
	require.NoError(t, err)

	assert.Contains(t, sock.events(), "dice_roll")

	require.Eventually(t, func() bool {
		logs, err := dispatcher.deps.Logs.GetRoomLogs(ctx, "r1", 10, 0)
		return err == nil && len(logs) == 1 && logs[0].Type == "player-roll"
	}, 2*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		evs := sock.events()
		return containsAll(evs, "dice_roll", "adventure_log_removed", "dice_prompt_clear")
	}, 2*time.Second, 50*time.Millisecond)
}

func containsAll(haystack []string, needles ...string) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestFormatDiceRollMessage(t *testing.T) {
	msg := formatDiceRollMessage(diceRollData{
		DiceNotation: "1d20",
		Results:      []int{17},
		Modifier:     2,
		Total:        19,
		Context:      "dex save",
		Advantage:    "advantage",
	})
	assert.Equal(t, "[dex save]: 1d20: [17] +2 = 19 (Advantage)", msg)
}

func TestDispatch_RoleChange(t *testing.T) {
	dispatcher, r, sock, cleanup := newTestSetup(t)
	defer cleanup()

	_, err := dispatcher.Dispatch(context.Background(), r, "host", Envelope{
		EventType: "role_change",
		Data:      json.RawMessage(`{"action":"set_dm","target_player":"bob"}`),
	})
	require.NoError(t, err)

	isDM, err := dispatcher.deps.Rooms.IsDM(context.Background(), "r1", "bob")
	require.NoError(t, err)
	assert.True(t, isDM)
	assert.Contains(t, sock.events(), "role_change")
}

func TestDispatch_MapLoadPreservesGridOnReload(t *testing.T) {
	dispatcher, r, _, cleanup := newTestSetup(t)
	defer cleanup()
	ctx := context.Background()

	_, err := dispatcher.deps.Maps.SetActiveMap(ctx, &types.ActiveMap{
		RoomID:     "r1",
		Filename:   "dungeon.png",
		GridConfig: &types.GridConfig{Width: 40, Height: 30, Opacity: 0.5},
	})
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(ctx, r, "dm", Envelope{
		EventType: "map_load",
		Data:      json.RawMessage(`{"map_data":{"filename":"dungeon.png"}}`),
	})
	require.NoError(t, err)

	active, err := dispatcher.deps.Maps.GetActiveMap(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, active.GridConfig)
	assert.Equal(t, 40.0, active.GridConfig.Width)
}
