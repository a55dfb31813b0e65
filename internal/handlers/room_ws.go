// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/unoroom/unoroom/internal/room"
)

// RoomWSHandler upgrades the HTTP connection to WebSocket for the room phase:
// ready states, chat, the auto-start countdown, and the host force-start.
func RoomWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room_id", http.StatusBadRequest)
			return
		}
		roomID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid room_id", http.StatusBadRequest)
			return
		}

		// Establish identity before the upgrade; cookies cannot be set once
		// the connection is hijacked.
		playerID, name, err := EnsureGuestSession(w, r)
		if err != nil {
			logger.Warnf("session setup failed for room %s: %v", roomID, err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		rm, exists := gs.RoomStore.GetRoom(roomID)
		if !exists {
			c.Close(InvalidRoomIDError, "room does not exist")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &room.RoomConnection{
			PlayerID: playerID,
			Name:     name,
			Cancel:   cancel,
			OutChan:  make(chan map[string]interface{}, 10),
		}

		if err := rm.AddConnection(playerID, conn); err != nil {
			logger.Warnf("failed AddConnection: %v", err)
			c.Close(websocket.StatusPolicyViolation, fmt.Sprintf("AddConnection error: %v", err))
			cancel()
			return
		}

		logger.Infof("Player %v (%s) connected to room %v", playerID, remoteAddr, roomID)

		go roomWritePump(ctx, c, conn, logger)
		roomReadPump(ctx, c, rm, conn, logger, gs)

		logger.Infof("Player %v readPump exited for room %v, cleaning up", playerID, roomID)
		rm.RemovePlayer(playerID)
	}
}

// roomReadPump handles incoming messages from the room websocket. It acquires
// the room lock around each message.
func roomReadPump(ctx context.Context, c *websocket.Conn, rm *room.Room, conn *room.RoomConnection, logger *logrus.Logger, gs *GameServer) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("room %s: websocket closed normally for player %v", rm.ID, conn.PlayerID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("room %s: read error for player %v: %v", rm.ID, conn.PlayerID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Warnf("room %s: invalid json from player %v: %v", rm.ID, conn.PlayerID, err)
			conn.WriteError("Invalid JSON format")
			continue
		}

		lockReleasedByHandler := false
		shouldStartCountdown := false

		rm.Mu.Lock()

		// Stale connection instances never act.
		currentConn, stillConnected := rm.Connections[conn.PlayerID]
		if !stillConnected || currentConn != conn {
			rm.Mu.Unlock()
			continue
		}

		handleRoomMessage(packet, rm, conn, logger, gs, &shouldStartCountdown, func() {
			rm.Mu.Unlock()
			lockReleasedByHandler = true
		})

		if !lockReleasedByHandler {
			rm.Mu.Unlock()
		}

		if shouldStartCountdown {
			rm.Mu.Lock()
			rm.StartCountdownUnsafe(room.CountdownSeconds, func(r *room.Room) {
				logger.Infof("room %s: auto-start countdown finished", r.ID)
				startRoomGame(r, gs, logger)
			})
			rm.Mu.Unlock()
		}
	}
}

// handleRoomMessage interprets the "type" field of a room packet.
// Assumes the room lock is HELD by the caller; unlockCallback releases it for
// handlers that must run without it.
func handleRoomMessage(packet map[string]interface{}, rm *room.Room, senderConn *room.RoomConnection, logger *logrus.Logger, gs *GameServer, shouldStartCountdown *bool, unlockCallback func()) {
	action, _ := packet["type"].(string)

	switch action {
	case "ready":
		if rm.MarkPlayerReadyUnsafe(senderConn.PlayerID) {
			*shouldStartCountdown = true
		}
	case "unready":
		rm.MarkPlayerUnreadyUnsafe(senderConn.PlayerID)
	case "leave_room":
		playerID := senderConn.PlayerID
		unlockCallback()
		rm.RemovePlayer(playerID)
	case "chat":
		msg, _ := packet["msg"].(string)
		if msg != "" {
			rm.BroadcastChatUnsafe(senderConn, msg)
		}
	case "room_state":
		rm.SendRoomState(senderConn.PlayerID)
	case "start_game":
		if !senderConn.IsHost {
			senderConn.WriteError("Only the host can force start")
			return
		}
		if rm.InGame {
			senderConn.WriteError("Game already in progress")
			return
		}
		if !rm.AreAllReadyUnsafe() {
			senderConn.WriteError("Not all players are ready")
			return
		}
		rm.CancelCountdownUnsafe()
		unlockCallback()
		startRoomGame(rm, gs, logger)
	default:
		logger.Warnf("room %s: unknown action '%s' from player %v", rm.ID, action, senderConn.PlayerID)
		senderConn.WriteError(fmt.Sprintf("Unknown action type: %s", action))
	}
}

// startRoomGame creates and starts a game from the room's current seats and
// broadcasts the handoff. Safe to call without the room lock.
func startRoomGame(rm *room.Room, gs *GameServer, logger *logrus.Logger) {
	rm.Mu.Lock()
	if rm.InGame {
		rm.Mu.Unlock()
		return
	}
	seats := make([]*room.RoomConnection, 0, len(rm.Connections))
	for _, conn := range rm.Connections {
		seats = append(seats, conn)
	}
	rm.Mu.Unlock()

	g := gs.CreateGameInstance(rm.ID, seats)
	if g == nil {
		logger.Errorf("room %s: failed to create game instance", rm.ID)
		return
	}

	rm.Mu.Lock()
	if rm.InGame {
		// Lost the race against another starter.
		rm.Mu.Unlock()
		gs.GameStore.DeleteGame(g.ID)
		return
	}
	rm.InGame = true
	rm.GameID = g.ID
	rm.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "game_start",
		"game_id": g.ID.String(),
	})
	rm.Mu.Unlock()
	logger.Infof("room %s: broadcasted game_start for game %s", rm.ID, g.ID)
}

// roomWritePump drains the connection's OutChan onto the websocket and keeps
// the connection alive with periodic pings.
func roomWritePump(ctx context.Context, c *websocket.Conn, conn *room.RoomConnection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer func() {
		_ = c.Close(websocket.StatusGoingAway, "Write pump stopping")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("room: failed to marshal outgoing msg for player %v: %v", conn.PlayerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("room: failed to write to websocket for player %v: %v", conn.PlayerID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("room: ping failed for player %v: %v, assuming disconnect", conn.PlayerID, err)
				return
			}
		}
	}
}
