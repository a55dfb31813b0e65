// internal/game/events.go
package game

import (
	"github.com/google/uuid"
	"github.com/unoroom/unoroom/internal/models"
)

// GameEventType is an enum-like type for broadcasting game actions.
type GameEventType string

const (
	EventGameInitialized GameEventType = "game_initialized"   // Private initial deal: hand + public state
	EventGameUpdate      GameEventType = "game_update"        // Public state after a successful mutation
	EventHandUpdate      GameEventType = "hand_update"        // Private full-hand refresh
	EventDefenseOptions  GameEventType = "draw_defense_options" // Private: targeted player may stack or accept
	EventDeckRecycled    GameEventType = "deck_recycled"      // Discard pile reshuffled into the deck
	EventUnoAlert        GameEventType = "uno_alert"          // A player is down to one card
	EventUnoAlertExpired GameEventType = "uno_alert_expired"  // Alert timed out with no call
	EventUnoGuard        GameEventType = "uno_guard"          // Player self-declared UNO
	EventUnoPenalty      GameEventType = "uno_penalty"        // Private: player was caught without calling UNO
	EventGameOver        GameEventType = "game_over"          // Public: winner announced, game torn down
	EventSyncState       GameEventType = "private_sync_state" // Private re-sync on connect/reconnect
)

// EventUser identifies the acting or affected player inside an event payload.
type EventUser struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
}

// GameEvent holds data about an event that can be broadcast to the clients in
// a consistent format. Cards are only ever attached to events that either are
// private to their owner or describe a face-up discard.
type GameEvent struct {
	Type GameEventType `json:"type"`
	User *EventUser    `json:"user,omitempty"`
	Card *models.Card  `json:"card,omitempty"`

	// Hand carries the recipient's own cards on private events.
	Hand []*models.Card `json:"hand,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`

	// State carries a redacted snapshot on sync and update events.
	State *StateView `json:"state,omitempty"`
}
