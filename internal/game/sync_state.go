// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"
	"github.com/unoroom/unoroom/internal/models"
)

// PlayerView is the outward-facing description of one player. Opponents only
// ever see a card count; actual hand contents stay private to their owner.
type PlayerView struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	CardCount     int       `json:"cardCount"`
	UnoGuard      bool      `json:"unoGuard"`
	Connected     bool      `json:"connected"`
	IsCurrentTurn bool      `json:"isCurrentTurn"`
}

// StateView is a redacted snapshot of the game suitable for broadcast. The
// Hand field is populated only on private per-player syncs.
type StateView struct {
	GameID            uuid.UUID    `json:"game_id"`
	RoomID            uuid.UUID    `json:"room_id"`
	Started           bool         `json:"started"`
	GameOver          bool         `json:"gameOver"`
	TopCard           *models.Card `json:"topCard,omitempty"`
	DeclaredColor     models.Color `json:"declaredColor,omitempty"`
	Players           []PlayerView `json:"players"`
	CurrentPlayerID   uuid.UUID    `json:"currentPlayerId"`
	Direction         int          `json:"direction"`
	Pending           Penalty      `json:"pending"`
	WaitingForDefense bool         `json:"waitingForDefense"`
	DefensePlayerID   uuid.UUID    `json:"defensePlayerId,omitempty"`
	DeckSize          int          `json:"deckSize"`
	DiscardSize       int          `json:"discardSize"`

	Hand []*models.Card `json:"hand,omitempty"`
}

// publicView builds the shared redacted snapshot.
// Assumes lock is held.
func (g *UnoGame) publicView() *StateView {
	view := &StateView{
		GameID:            g.ID,
		RoomID:            g.RoomID,
		Started:           g.Started,
		GameOver:          g.GameOver,
		TopCard:           g.topCard(),
		DeclaredColor:     g.DeclaredColor,
		Direction:         g.Direction,
		Pending:           g.Pending,
		WaitingForDefense: g.WaitingForDefense,
		DefensePlayerID:   g.DefensePlayerID,
		DeckSize:          len(g.Deck),
		DiscardSize:       len(g.DiscardPile),
	}
	if len(g.Players) > 0 && g.CurrentIdx >= 0 && g.CurrentIdx < len(g.Players) {
		view.CurrentPlayerID = g.Players[g.CurrentIdx].ID
	}
	for i, p := range g.Players {
		view.Players = append(view.Players, PlayerView{
			ID:            p.ID,
			Name:          p.Name,
			CardCount:     len(p.Hand),
			UnoGuard:      p.UnoGuard,
			Connected:     p.Connected,
			IsCurrentTurn: i == g.CurrentIdx,
		})
	}
	return view
}

// viewFor builds the snapshot for one player, attaching their own hand.
// Assumes lock is held.
func (g *UnoGame) viewFor(playerID uuid.UUID) *StateView {
	view := g.publicView()
	if p := g.playerByID(playerID); p != nil {
		hand := make([]*models.Card, len(p.Hand))
		copy(hand, p.Hand)
		view.Hand = hand
	}
	return view
}

// sendSyncState sends the full redacted game state to a specific player.
// Assumes lock is held.
func (g *UnoGame) sendSyncState(playerID uuid.UUID) {
	g.fireEventToPlayer(playerID, GameEvent{
		Type:  EventSyncState,
		State: g.viewFor(playerID),
	})
}
