// internal/game/errors.go
package game

import "errors"

// Command errors returned by the game operations. They are plain values so the
// transport layer can map them onto client-facing failure messages; a failed
// command never mutates game state and is never broadcast to the room.
var (
	ErrNotYourTurn           = errors.New("not your turn")
	ErrCardNotInHand         = errors.New("card not in hand")
	ErrIllegalPlay           = errors.New("card cannot be played on the current discard")
	ErrMustStackOrDraw       = errors.New("a draw penalty is pending; stack a matching card or accept the penalty")
	ErrNotWaitingForDefense  = errors.New("no defense is expected from this player")
	ErrRoomNotFound          = errors.New("room or game not found")
	ErrPlayerNotFound        = errors.New("player not found in game")
	ErrGameAlreadyInProgress = errors.New("game already in progress")
	ErrDeckExhausted         = errors.New("deck and discard pile are exhausted")
)
