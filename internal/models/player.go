package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

type Player struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Hand      []*Card         `json:"hand"`
	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`

	// UnoGuard is set when the player declared "UNO" on their own one-card
	// hand and protects them from accusation until they draw again.
	UnoGuard bool `json:"unoGuard"`
}
