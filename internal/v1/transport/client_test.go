package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/tabletop-tavern/api-game/internal/v1/events"
	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/tabletop-tavern/api-game/internal/v1/room"
	"github.com/tabletop-tavern/api-game/internal/v1/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain confirms readPump/writePump always exit once a connection
// closes, rather than leaking a goroutine per dropped client.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConn implements wsConnection with an in-memory queue of inbound
// frames and a record of outbound writes.
type fakeConn struct {
	mu       sync.Mutex
	inbound  [][]byte
	idx      int
	outbound [][]byte
	closed   bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.inbound) {
		// Block briefly then report closed, mimicking a drained connection.
		for f.idx >= len(f.inbound) && !f.closed {
			f.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			f.mu.Lock()
		}
		if f.closed {
			return 0, nil, errors.New("connection closed")
		}
	}
	msg := f.inbound[f.idx]
	f.idx++
	return 1, msg, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func newDispatcherForTest(t *testing.T, roomID string) *events.Dispatcher {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := store.NewClient(mr.Addr(), "")
	require.NoError(t, err)

	deps := &events.Deps{
		Rooms:   room.NewRoomService(s),
		Maps:    room.NewMapService(s),
		Logs:    room.NewLogService(s),
		MaxLogs: 200,
	}
	_, err = deps.Rooms.CreateRoom(context.Background(), roomID, room.CreateSettings{MaxPlayers: 4})
	require.NoError(t, err)

	return events.NewDispatcher(deps)
}

func TestClient_ReadPumpDispatchesAndBroadcasts(t *testing.T) {
	dispatcher := newDispatcherForTest(t, "r1")
	mgr := presence.NewManager(30 * time.Second)
	presenceRoom := mgr.Room("r1")

	conn := &fakeConn{inbound: [][]byte{
		[]byte(`{"event_type":"seat_change","data":["alice","empty","empty","empty"]}`),
	}}
	client := NewClient(conn, presenceRoom, dispatcher, "alice")
	presenceRoom.Accept(context.Background(), "alice", client)

	done := make(chan struct{})
	go func() {
		client.readPump(context.Background())
		close(done)
	}()
	go client.writePump()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.outbound) > 0
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readPump did not exit after connection close")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	var sawSeatChange bool
	for _, frame := range conn.outbound {
		var env struct {
			EventType string `json:"event_type"`
		}
		require.NoError(t, json.Unmarshal(frame, &env))
		if env.EventType == "seat_change" {
			sawSeatChange = true
		}
	}
	assert.True(t, sawSeatChange)
}

func TestClient_MalformedFrameIsDropped(t *testing.T) {
	dispatcher := newDispatcherForTest(t, "r2")
	mgr := presence.NewManager(30 * time.Second)
	presenceRoom := mgr.Room("r2")

	conn := &fakeConn{inbound: [][]byte{[]byte(`not json`)}}
	client := NewClient(conn, presenceRoom, dispatcher, "bob")
	presenceRoom.Accept(context.Background(), "bob", client)

	done := make(chan struct{})
	go func() {
		client.readPump(context.Background())
		close(done)
	}()
	go client.writePump()

	time.Sleep(20 * time.Millisecond)
	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readPump did not exit after connection close")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	_, ok := decodeEnvelope([]byte(`{"event_type":"x","data":{}}`))
	assert.True(t, ok)

	_, ok = decodeEnvelope([]byte(`{}`))
	assert.False(t, ok)

	_, ok = decodeEnvelope([]byte(`not json`))
	assert.False(t, ok)
}
