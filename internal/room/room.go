// internal/room/room.go
package room

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxPlayers caps the number of seats in a room.
	MaxPlayers = 8
	// MinPlayers is the minimum number of connected players needed to start.
	MinPlayers = 2
	// CountdownSeconds is the auto-start delay once everyone is ready.
	CountdownSeconds = 5
)

// codeAlphabet omits the lookalike characters 0/O and 1/I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var codeRng = rand.New(rand.NewSource(time.Now().UnixNano()))
var codeRngMu sync.Mutex

// NewJoinCode generates a six-character human-typeable join code.
func NewJoinCode() string {
	codeRngMu.Lock()
	defer codeRngMu.Unlock()
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[codeRng.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// Room is an ephemeral grouping of players with chat, ready states and an
// auto-start countdown. Rooms exist only in memory and disappear when the
// last player leaves.
type Room struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	HostPlayerID uuid.UUID `json:"hostPlayerId"`

	// Connections holds the live presences of joined players.
	Connections map[uuid.UUID]*RoomConnection `json:"-"`
	// ReadyStates holds playerID -> "is ready".
	ReadyStates map[uuid.UUID]bool `json:"-"`

	InGame bool      `json:"inGame"`
	GameID uuid.UUID `json:"gameId,omitempty"`

	CountdownTimer *time.Timer `json:"-"`

	// OnEmpty is called after the last player leaves, typically wired to the
	// store's delete:
	//   r.OnEmpty = func(roomID uuid.UUID) { store.DeleteRoom(roomID) }
	OnEmpty func(roomID uuid.UUID) `json:"-"`

	Mu sync.Mutex
}

// RoomConnection is a single player's presence in the room.
type RoomConnection struct {
	PlayerID uuid.UUID
	Name     string
	Cancel   func()
	OutChan  chan map[string]interface{}
	IsHost   bool

	mu     sync.Mutex
	closed bool
}

// Write pushes a message onto the player's OutChan non-blockingly. Messages
// to a closed or backed-up connection are dropped.
func (conn *RoomConnection) Write(msg map[string]interface{}) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		return
	}
	select {
	case conn.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("RoomConnection: OutChan for player %s full, dropped message type '%s'", conn.PlayerID, msgType)
	}
}

// Close shuts the connection down exactly once: further Writes become no-ops,
// the OutChan is closed so the write pump drains out, and the connection's
// context is cancelled.
func (conn *RoomConnection) Close() {
	conn.mu.Lock()
	if !conn.closed {
		conn.closed = true
		close(conn.OutChan)
	}
	conn.mu.Unlock()
	if conn.Cancel != nil {
		conn.Cancel()
	}
}

// WriteError is a convenience to send an error object.
func (conn *RoomConnection) WriteError(msg string) {
	conn.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// NewRoom creates an empty room with a fresh join code.
func NewRoom(name string, hostID uuid.UUID) *Room {
	roomID, _ := uuid.NewRandom()
	if name == "" {
		name = fmt.Sprintf("Room %s", roomID.String()[:4])
	}
	return &Room{
		ID:           roomID,
		Name:         name,
		Code:         NewJoinCode(),
		HostPlayerID: hostID,
		Connections:  make(map[uuid.UUID]*RoomConnection),
		ReadyStates:  make(map[uuid.UUID]bool),
	}
}

// AddConnection seats a player in the room, replacing any previous connection
// for the same player. Acquires lock.
func (r *Room) AddConnection(playerID uuid.UUID, conn *RoomConnection) error {
	r.Mu.Lock()

	if _, rejoining := r.Connections[playerID]; !rejoining && len(r.Connections) >= MaxPlayers {
		r.Mu.Unlock()
		return fmt.Errorf("room %s is full (%d players)", r.ID, MaxPlayers)
	}

	if oldConn, ok := r.Connections[playerID]; ok && oldConn != conn {
		oldConn.Close()
	}

	conn.IsHost = playerID == r.HostPlayerID
	r.Connections[playerID] = conn
	r.ReadyStates[playerID] = false

	log.Printf("room %s: player %s (%s) connected", r.ID, playerID, conn.Name)

	statePayload := r.getRoomStatePayloadUnsafe(playerID)
	joinPayload := map[string]interface{}{
		"type":        "room_update",
		"player_join": playerID.String(),
		"name":        conn.Name,
		"is_host":     conn.IsHost,
		"room_status": r.GetRoomStatusPayloadUnsafe(),
	}
	r.Mu.Unlock()

	go func() {
		conn.Write(statePayload)
		r.BroadcastAll(joinPayload)
	}()
	return nil
}

// RemovePlayer drops a player's presence. If the room becomes empty the
// OnEmpty callback runs. Acquires lock.
func (r *Room) RemovePlayer(playerID uuid.UUID) {
	r.Mu.Lock()

	conn, ok := r.Connections[playerID]
	if !ok {
		r.Mu.Unlock()
		return
	}

	log.Printf("room %s: removing player %s", r.ID, playerID)

	conn.Close()

	delete(r.Connections, playerID)
	delete(r.ReadyStates, playerID)

	// A departure always invalidates a running countdown: the remaining
	// ready set has changed.
	r.CancelCountdownUnsafe()

	leavePayload := map[string]interface{}{
		"type":        "room_update",
		"player_left": playerID.String(),
		"name":        conn.Name,
		"room_status": r.GetRoomStatusPayloadUnsafe(),
	}
	isEmpty := len(r.Connections) == 0
	onEmpty := r.OnEmpty
	r.Mu.Unlock()

	r.BroadcastAll(leavePayload)

	if isEmpty && onEmpty != nil {
		log.Printf("room %s is now empty, releasing", r.ID)
		onEmpty(r.ID)
	}
}

// MarkPlayerReadyUnsafe sets a player's ready state to true and reports
// whether the auto-start countdown should begin.
// Assumes lock is held.
func (r *Room) MarkPlayerReadyUnsafe(playerID uuid.UUID) bool {
	conn, ok := r.Connections[playerID]
	if !ok || r.ReadyStates[playerID] {
		return false
	}
	r.ReadyStates[playerID] = true

	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":      "ready_update",
		"player_id": playerID.String(),
		"name":      conn.Name,
		"is_ready":  true,
	})

	return r.AreAllReadyUnsafe() && !r.InGame
}

// MarkPlayerUnreadyUnsafe sets a player's ready state to false and cancels
// any running countdown.
// Assumes lock is held.
func (r *Room) MarkPlayerUnreadyUnsafe(playerID uuid.UUID) {
	conn, ok := r.Connections[playerID]
	if !ok || !r.ReadyStates[playerID] {
		return
	}
	r.ReadyStates[playerID] = false

	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":      "ready_update",
		"player_id": playerID.String(),
		"name":      conn.Name,
		"is_ready":  false,
	})

	r.CancelCountdownUnsafe()
}

// AreAllReadyUnsafe reports whether every seated player is ready and the
// minimum seat count is met.
// Assumes lock is held.
func (r *Room) AreAllReadyUnsafe() bool {
	if len(r.Connections) < MinPlayers {
		return false
	}
	for playerID := range r.Connections {
		if !r.ReadyStates[playerID] {
			return false
		}
	}
	return true
}

// StartCountdownUnsafe begins the auto-start countdown. The callback runs
// once the countdown elapses, outside the lock; a countdown cancelled in the
// meantime never fires.
// Assumes lock is held.
func (r *Room) StartCountdownUnsafe(seconds int, callback func(*Room)) bool {
	if r.InGame || r.CountdownTimer != nil {
		return false
	}
	if len(r.Connections) < MinPlayers {
		return false
	}

	log.Printf("room %s: starting %d second countdown", r.ID, seconds)
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "room_countdown_start",
		"seconds": seconds,
	})

	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		r.Mu.Lock()
		if r.CountdownTimer != timer {
			r.Mu.Unlock()
			log.Printf("room %s: stale countdown timer fired, ignoring", r.ID)
			return
		}
		r.CountdownTimer = nil
		r.Mu.Unlock()
		callback(r)
	})
	r.CountdownTimer = timer
	return true
}

// CancelCountdownUnsafe stops a running countdown, if any.
// Assumes lock is held.
func (r *Room) CancelCountdownUnsafe() {
	if r.CountdownTimer == nil {
		return
	}
	if r.CountdownTimer.Stop() {
		r.BroadcastAllUnsafe(map[string]interface{}{
			"type": "room_countdown_cancel",
		})
	}
	r.CountdownTimer = nil
}

// BroadcastAllUnsafe sends msg to every seated player.
// Assumes lock is held; the per-connection Write never blocks.
func (r *Room) BroadcastAllUnsafe(msg map[string]interface{}) {
	for _, conn := range r.Connections {
		conn.Write(msg)
	}
}

// BroadcastAll sends msg to every seated player. Acquires lock.
func (r *Room) BroadcastAll(msg map[string]interface{}) {
	r.Mu.Lock()
	conns := make([]*RoomConnection, 0, len(r.Connections))
	for _, conn := range r.Connections {
		conns = append(conns, conn)
	}
	r.Mu.Unlock()
	for _, conn := range conns {
		conn.Write(msg)
	}
}

// BroadcastChatUnsafe relays a chat message from the sender to the room.
// Assumes lock is held.
func (r *Room) BroadcastChatUnsafe(sender *RoomConnection, msg string) {
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":      "chat",
		"player_id": sender.PlayerID.String(),
		"name":      sender.Name,
		"msg":       msg,
		"ts":        time.Now().Unix(),
	})
}

// GetRoomStatusPayloadUnsafe gathers current seat status.
// Assumes lock is held.
func (r *Room) GetRoomStatusPayloadUnsafe() map[string]interface{} {
	players := []map[string]interface{}{}
	for playerID, conn := range r.Connections {
		players = append(players, map[string]interface{}{
			"id":       playerID.String(),
			"name":     conn.Name,
			"is_host":  conn.IsHost,
			"is_ready": r.ReadyStates[playerID],
		})
	}
	return map[string]interface{}{
		"players": players,
	}
}

// getRoomStatePayloadUnsafe prepares the full private state message sent to
// a player on join.
// Assumes lock is held.
func (r *Room) getRoomStatePayloadUnsafe(playerID uuid.UUID) map[string]interface{} {
	gameIDStr := ""
	if r.GameID != uuid.Nil {
		gameIDStr = r.GameID.String()
	}
	isHost := false
	if conn, ok := r.Connections[playerID]; ok {
		isHost = conn.IsHost
	}
	return map[string]interface{}{
		"type":         "room_state",
		"room_id":      r.ID.String(),
		"room_name":    r.Name,
		"join_code":    r.Code,
		"host_id":      r.HostPlayerID.String(),
		"your_id":      playerID.String(),
		"your_is_host": isHost,
		"in_game":      r.InGame,
		"game_id":      gameIDStr,
		"max_players":  MaxPlayers,
		"room_status":  r.GetRoomStatusPayloadUnsafe(),
	}
}

// SendRoomState sends the full current room state to a specific player.
// Assumes lock is held.
func (r *Room) SendRoomState(playerID uuid.UUID) {
	conn, ok := r.Connections[playerID]
	if !ok {
		return
	}
	conn.Write(r.getRoomStatePayloadUnsafe(playerID))
}

// Summary is the directory listing entry for a room.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	PlayerCount int       `json:"playerCount"`
	MaxPlayers  int       `json:"maxPlayers"`
	InGame      bool      `json:"inGame"`
}

// Summarize snapshots public directory info. Acquires lock.
func (r *Room) Summarize() Summary {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return Summary{
		ID:          r.ID,
		Name:        r.Name,
		Code:        r.Code,
		PlayerCount: len(r.Connections),
		MaxPlayers:  MaxPlayers,
		InGame:      r.InGame,
	}
}
