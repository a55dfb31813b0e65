// internal/handlers/game_server.go
package handlers

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/unoroom/unoroom/internal/game"
	"github.com/unoroom/unoroom/internal/models"
	"github.com/unoroom/unoroom/internal/room"
)

// GameServer is a high-level struct that holds the room directory and the
// game store, and creates new games from rooms.
type GameServer struct {
	RoomStore *room.RoomStore
	GameStore *game.GameStore
}

func NewGameServer() *GameServer {
	return &GameServer{
		RoomStore: room.NewRoomStore(),
		GameStore: game.NewGameStore(),
	}
}

// unoAlertTimeout reads the UNO_ALERT_TIMEOUT env var (a Go duration string),
// 0 meaning the game's built-in default.
func unoAlertTimeout() time.Duration {
	s := os.Getenv("UNO_ALERT_TIMEOUT")
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warnf("invalid UNO_ALERT_TIMEOUT %q, using default", s)
		return 0
	}
	return d
}

// CreateGameInstance builds and starts a game for the given room seats.
// Returns nil if the game could not be started.
func (gs *GameServer) CreateGameInstance(roomID uuid.UUID, seats []*room.RoomConnection) *game.UnoGame {
	g := game.NewUnoGame(roomID)
	g.UnoAlertTimeout = unoAlertTimeout()

	players := make([]*models.Player, 0, len(seats))
	for _, conn := range seats {
		players = append(players, &models.Player{
			ID:        conn.PlayerID,
			Name:      conn.Name,
			Connected: true,
			Hand:      []*models.Card{},
		})
	}
	if len(players) < room.MinPlayers {
		log.Printf("room %s: cannot start game, not enough players (%d)", roomID, len(players))
		return nil
	}

	g.OnGameEnd = func(endedRoomID uuid.UUID, winner uuid.UUID) {
		log.Printf("game %s ended, returning control to room %s", g.ID, endedRoomID)
		r, exists := gs.RoomStore.GetRoom(endedRoomID)
		if !exists {
			gs.GameStore.DeleteGame(g.ID)
			return
		}

		r.Mu.Lock()
		r.InGame = false
		r.GameID = uuid.Nil
		for pid := range r.Connections {
			r.ReadyStates[pid] = false
		}
		winnerName := ""
		if conn, ok := r.Connections[winner]; ok {
			winnerName = conn.Name
		}
		resultMsg := map[string]interface{}{
			"type":        "game_results",
			"winner":      winner.String(),
			"winner_name": winnerName,
			"room_status": r.GetRoomStatusPayloadUnsafe(),
		}
		r.Mu.Unlock()

		r.BroadcastAll(resultMsg)
		gs.GameStore.DeleteGame(g.ID)
	}

	gs.GameStore.AddGame(g)
	if err := g.Start(players); err != nil {
		log.Errorf("room %s: failed to start game: %v", roomID, err)
		gs.GameStore.DeleteGame(g.ID)
		return nil
	}
	return g
}
