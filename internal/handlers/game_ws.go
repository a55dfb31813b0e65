// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/unoroom/unoroom/internal/game"
	"github.com/unoroom/unoroom/internal/models"
)

// GameMessage represents the structure for incoming WebSocket messages during
// the game phase.
type GameMessage struct {
	Type string `json:"type"`

	// CardID identifies the hand card for play and defend actions.
	CardID string `json:"card_id,omitempty"`

	// Color carries the declared color when playing a wild.
	Color string `json:"color,omitempty"`

	// Count is the number of cards for a voluntary draw; 0 means one.
	Count int `json:"count,omitempty"`
}

// GameWSHandler upgrades the HTTP connection to WebSocket for a specific game
// instance. It authenticates the player, verifies they are seated in the
// game, registers the connection, and runs the read loop.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "Missing game_id in path (/game/ws/{game_id})", http.StatusBadRequest)
			return
		}
		gameID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "Invalid game_id format", http.StatusBadRequest)
			return
		}

		g, ok := gs.GameStore.GetGame(gameID)
		if !ok {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		if g.GameOver {
			http.Error(w, "Game has already ended", http.StatusGone)
			return
		}

		// Establish identity before the upgrade; cookies cannot be set once
		// the connection is hijacked.
		playerID, _, err := EnsureGuestSession(w, r)
		if err != nil {
			logger.Warnf("Session setup failed for game %s: %v", gameID, err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'game' subprotocol.")
			return
		}
		logger.Infof("WebSocket connection established for game %s from %s", gameID, r.RemoteAddr)

		// Verify the player has a seat in this specific game.
		isSeated := false
		g.Mu.Lock()
		for _, p := range g.Players {
			if p.ID == playerID {
				isSeated = true
				break
			}
		}
		// Register broadcast functions once per game instance.
		if g.BroadcastFn == nil {
			g.BroadcastFn = createBroadcastFunc(g, logger)
		}
		if g.BroadcastToPlayerFn == nil {
			g.BroadcastToPlayerFn = createBroadcastToPlayerFunc(g, logger)
		}
		g.Mu.Unlock()

		if !isSeated {
			logger.Warnf("Player %s is not seated in game %s, closing", playerID, gameID)
			c.Close(websocket.StatusPolicyViolation, "You are not a player in this game.")
			return
		}

		// Attach the connection and push the full private state.
		g.Reconnect(playerID, func(p *models.Player) { p.Conn = c })

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readGameMessages(ctx, c, g, playerID, logger)

		logger.Infof("Player %s WebSocket read loop exited for game %s", playerID, gameID)
		g.HandleDisconnect(playerID)
	}
}

// createBroadcastFunc returns a function suitable for UnoGame.BroadcastFn.
// It is invoked while the game lock is held: it snapshots the connected
// players synchronously, then marshals and sends asynchronously so the game
// logic is never blocked on a slow socket.
func createBroadcastFunc(g *game.UnoGame, logger *logrus.Logger) func(ev game.GameEvent) {
	return func(ev game.GameEvent) {
		playersToSend := make([]*models.Player, 0, len(g.Players))
		for _, p := range g.Players {
			if p.Connected && p.Conn != nil {
				playersToSend = append(playersToSend, p)
			}
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast event (%s) for game %s: %v", ev.Type, g.ID, err)
			return
		}

		go func(players []*models.Player, data []byte, gameID uuid.UUID) {
			for _, pl := range players {
				if pl.Conn != nil {
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					err := pl.Conn.Write(ctx, websocket.MessageText, data)
					cancel()
					if err != nil {
						logger.Warnf("Failed to write broadcast message to player %s in game %s: %v", pl.ID, gameID, err)
					}
				}
			}
		}(playersToSend, msgBytes, g.ID)
	}
}

// createBroadcastToPlayerFunc returns a function suitable for
// UnoGame.BroadcastToPlayerFn. Also invoked while the game lock is held.
func createBroadcastToPlayerFunc(g *game.UnoGame, logger *logrus.Logger) func(targetPlayerID uuid.UUID, ev game.GameEvent) {
	return func(targetPlayerID uuid.UUID, ev game.GameEvent) {
		var targetConn *websocket.Conn
		for _, pl := range g.Players {
			if pl.ID == targetPlayerID {
				if pl.Connected && pl.Conn != nil {
					targetConn = pl.Conn
				}
				break
			}
		}
		if targetConn == nil {
			return
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal private event (%s) for player %s in game %s: %v", ev.Type, targetPlayerID, g.ID, err)
			return
		}
		go func(conn *websocket.Conn, data []byte, playerID uuid.UUID, gameID uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write private message to player %s in game %s: %v", playerID, gameID, err)
			}
		}(targetConn, msgBytes, targetPlayerID, g.ID)
	}
}

// readGameMessages continuously reads messages from a client's WebSocket
// connection and routes them to the game command methods. The commands
// serialize on the game's own mutex; a rejected command only answers the
// sender and never mutates shared state.
func readGameMessages(ctx context.Context, c *websocket.Conn, g *game.UnoGame, playerID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for player %s in game %s", playerID, g.ID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("Error reading from WebSocket for player %s in game %s: %v (Status: %d)", playerID, g.ID, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON received from player %s in game %s: %v", playerID, g.ID, err)
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		logger.Debugf("Received action '%s' from player %s in game %s", msg.Type, playerID, g.ID)

		var cmdErr error
		switch msg.Type {
		case "action_play_card":
			cardID, parseErr := uuid.Parse(msg.CardID)
			if parseErr != nil {
				sendWsError(ctx, c, "Invalid card_id.")
				continue
			}
			_, cmdErr = g.PlayCard(playerID, cardID, models.Color(msg.Color))

		case "action_draw_card":
			_, cmdErr = g.DrawCard(playerID, msg.Count)

		case "action_defend":
			cardID, parseErr := uuid.Parse(msg.CardID)
			if parseErr != nil {
				sendWsError(ctx, c, "Invalid card_id.")
				continue
			}
			_, cmdErr = g.Defend(playerID, cardID, models.Color(msg.Color))

		case "action_accept_penalty":
			_, cmdErr = g.AcceptPenalty(playerID)

		case "action_call_uno":
			_, cmdErr = g.CallUno(playerID)

		case "action_sync_state":
			cmdErr = g.SyncState(playerID)

		case "ping":
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})
			continue

		default:
			logger.Warnf("Unknown action type '%s' from player %s in game %s", msg.Type, playerID, g.ID)
			sendWsError(ctx, c, fmt.Sprintf("Unknown action type: %s", msg.Type))
			continue
		}

		if cmdErr != nil {
			sendWsError(ctx, c, cmdErr.Error())
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Write(writeCtx, websocket.MessageText, msgBytes)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
