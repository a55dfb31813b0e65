// internal/room/room_test.go
package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(name string) *RoomConnection {
	return &RoomConnection{
		PlayerID: uuid.New(),
		Name:     name,
		OutChan:  make(chan map[string]interface{}, 32),
	}
}

func seat(t *testing.T, r *Room, name string) *RoomConnection {
	t.Helper()
	conn := newTestConn(name)
	require.NoError(t, r.AddConnection(conn.PlayerID, conn))
	return conn
}

func TestJoinCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := NewJoinCode()
		assert.Len(t, code, 6)
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90, "codes should rarely collide")
}

func TestAddConnectionCapacity(t *testing.T) {
	host := uuid.New()
	r := NewRoom("crowded", host)

	for i := 0; i < MaxPlayers; i++ {
		seat(t, r, fmt.Sprintf("p%d", i))
	}
	extra := newTestConn("overflow")
	err := r.AddConnection(extra.PlayerID, extra)
	assert.Error(t, err, "ninth player is rejected")
}

func TestRejoinReplacesConnection(t *testing.T) {
	r := NewRoom("", uuid.New())
	first := seat(t, r, "alice")
	time.Sleep(10 * time.Millisecond) // let the join payload flush

	second := &RoomConnection{
		PlayerID: first.PlayerID,
		Name:     "alice",
		OutChan:  make(chan map[string]interface{}, 32),
	}
	require.NoError(t, r.AddConnection(second.PlayerID, second))

	r.Mu.Lock()
	assert.Same(t, second, r.Connections[first.PlayerID])
	assert.Len(t, r.Connections, 1)
	r.Mu.Unlock()

	// The replaced connection's channel drains its backlog and closes.
	for {
		_, open := <-first.OutChan
		if !open {
			break
		}
	}
}

func TestWriteAfterCloseIsDropped(t *testing.T) {
	conn := newTestConn("ghost")
	conn.Close()

	assert.NotPanics(t, func() {
		conn.Write(map[string]interface{}{"type": "chat"})
	})

	_, open := <-conn.OutChan
	assert.False(t, open)
}

func TestConcurrentBroadcastAndLeave(t *testing.T) {
	r := NewRoom("", uuid.New())
	a := seat(t, r, "a")
	seat(t, r, "b")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			r.BroadcastAll(map[string]interface{}{"type": "chat", "n": i})
		}
	}()

	// Departure while broadcasts are in flight must not panic the sender.
	r.RemovePlayer(a.PlayerID)
	<-done
}

func TestReadyCountdownAndCancel(t *testing.T) {
	r := NewRoom("", uuid.New())
	a := seat(t, r, "a")
	b := seat(t, r, "b")

	fired := make(chan struct{}, 1)

	r.Mu.Lock()
	assert.False(t, r.MarkPlayerReadyUnsafe(a.PlayerID), "one ready player is not enough")
	start := r.MarkPlayerReadyUnsafe(b.PlayerID)
	require.True(t, start, "all ready should request a countdown")
	require.True(t, r.StartCountdownUnsafe(CountdownSeconds, func(*Room) { fired <- struct{}{} }))
	require.NotNil(t, r.CountdownTimer)

	// Unready cancels before it fires.
	r.MarkPlayerUnreadyUnsafe(a.PlayerID)
	assert.Nil(t, r.CountdownTimer)
	r.Mu.Unlock()

	select {
	case <-fired:
		t.Fatal("cancelled countdown must not fire")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCountdownFires(t *testing.T) {
	r := NewRoom("", uuid.New())
	seat(t, r, "a")
	seat(t, r, "b")

	fired := make(chan struct{}, 1)
	r.Mu.Lock()
	require.True(t, r.StartCountdownUnsafe(0, func(*Room) { fired <- struct{}{} }))
	r.Mu.Unlock()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("countdown callback never ran")
	}
}

func TestLeaveCancelsCountdownAndOnEmpty(t *testing.T) {
	store := NewRoomStore()
	r := NewRoom("", uuid.New())
	r.OnEmpty = func(id uuid.UUID) { store.DeleteRoom(id) }
	store.AddRoom(r)

	a := seat(t, r, "a")
	b := seat(t, r, "b")

	r.Mu.Lock()
	r.MarkPlayerReadyUnsafe(a.PlayerID)
	r.MarkPlayerReadyUnsafe(b.PlayerID)
	r.StartCountdownUnsafe(CountdownSeconds, func(*Room) {})
	r.Mu.Unlock()

	r.RemovePlayer(a.PlayerID)
	r.Mu.Lock()
	assert.Nil(t, r.CountdownTimer, "departure cancels the countdown")
	r.Mu.Unlock()

	r.RemovePlayer(b.PlayerID)
	_, ok := store.GetRoom(r.ID)
	assert.False(t, ok, "empty room is released from the store")
}

func TestStoreLookupByCode(t *testing.T) {
	store := NewRoomStore()
	r := NewRoom("friday night", uuid.New())
	store.AddRoom(r)

	found, ok := store.GetRoomByCode(r.Code)
	require.True(t, ok)
	assert.Equal(t, r.ID, found.ID)

	_, ok = store.GetRoomByCode("XXXXXX")
	assert.False(t, ok)

	store.DeleteRoom(r.ID)
	_, ok = store.GetRoomByCode(r.Code)
	assert.False(t, ok, "code mapping is released with the room")
}

func TestSummarize(t *testing.T) {
	r := NewRoom("night game", uuid.New())
	seat(t, r, "a")
	seat(t, r, "b")

	s := r.Summarize()
	assert.Equal(t, "night game", s.Name)
	assert.Equal(t, 2, s.PlayerCount)
	assert.Equal(t, MaxPlayers, s.MaxPlayers)
	assert.False(t, s.InGame)
	assert.Len(t, s.Code, 6)
}
