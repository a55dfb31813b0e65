// internal/game/uno_call.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/unoroom/unoroom/internal/models"
)

// unoAlert tracks the accusation window opened when a player drops to one
// card without calling UNO. The seq guard makes a stale timer callback a
// no-op after the alert has already been cancelled or replaced.
type unoAlert struct {
	playerID uuid.UUID
	seq      int
	timer    *time.Timer
}

// CallUnoResult reports what a call did: raised the caller's own guard, or
// penalized the listed vulnerable opponents.
type CallUnoResult struct {
	Guarded   bool
	Penalized []uuid.UUID
}

// CallUno handles the uno action. With exactly one card in hand the caller
// protects themselves; otherwise the call is an accusation and every
// opponent sitting on one unguarded card draws the penalty. A call that
// finds nobody vulnerable is a harmless no-op.
func (g *UnoGame) CallUno(playerID uuid.UUID) (*CallUnoResult, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if err := g.checkActive(); err != nil {
		return nil, err
	}
	caller := g.playerByID(playerID)
	if caller == nil {
		return nil, ErrPlayerNotFound
	}

	// Collapse racing calls that arrive while one is still resolving.
	if g.unoCallBusy {
		return &CallUnoResult{}, nil
	}
	g.unoCallBusy = true
	defer func() { g.unoCallBusy = false }()

	if len(caller.Hand) == 1 {
		caller.UnoGuard = true
		g.resolveUnoAlertFor(playerID)
		g.logAction(playerID, "call_uno", map[string]interface{}{"guard": true})
		g.fireEvent(GameEvent{
			Type: EventUnoGuard,
			User: &EventUser{ID: caller.ID, Name: caller.Name},
		})
		g.broadcastUpdate()
		return &CallUnoResult{Guarded: true}, nil
	}

	res := &CallUnoResult{}
	for _, p := range g.Players {
		if p.ID == playerID || len(p.Hand) != 1 || p.UnoGuard {
			continue
		}
		cards := g.drawFromDeck(UnoAccusationPenalty)
		p.Hand = append(p.Hand, cards...)
		p.UnoGuard = false
		g.resolveUnoAlertFor(p.ID)
		res.Penalized = append(res.Penalized, p.ID)

		g.fireEvent(GameEvent{
			Type: EventUnoPenalty,
			User: &EventUser{ID: p.ID, Name: p.Name},
			Payload: map[string]interface{}{
				"callerId": playerID.String(),
				"count":    len(cards),
			},
		})
		g.fireEventToPlayer(p.ID, GameEvent{Type: EventHandUpdate, Hand: append([]*models.Card(nil), p.Hand...)})
	}

	g.logAction(playerID, "call_uno", map[string]interface{}{"penalized": len(res.Penalized)})
	if len(res.Penalized) > 0 {
		g.broadcastUpdate()
	}
	return res, nil
}

// alertTimeout returns the configured accusation window duration.
// Assumes lock is held.
func (g *UnoGame) alertTimeout() time.Duration {
	if g.UnoAlertTimeout > 0 {
		return g.UnoAlertTimeout
	}
	return DefaultUnoAlertTimeout
}

// armUnoAlert opens the accusation window for a player who just reached one
// card without a guard. Any previous alert is replaced; the timer resolves
// the window with no penalty if nobody accuses in time.
// Assumes lock is held.
func (g *UnoGame) armUnoAlert(playerID uuid.UUID) {
	player := g.playerByID(playerID)
	if player == nil || player.UnoGuard {
		return
	}
	g.cancelUnoAlert()

	g.unoAlertSeq++
	seq := g.unoAlertSeq
	alert := &unoAlert{playerID: playerID, seq: seq}
	alert.timer = time.AfterFunc(g.alertTimeout(), func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.unoAlert == nil || g.unoAlert.seq != seq || g.GameOver {
			return
		}
		expired := g.unoAlert.playerID
		g.unoAlert = nil
		g.fireEvent(GameEvent{
			Type:    EventUnoAlertExpired,
			Payload: map[string]interface{}{"playerId": expired.String()},
		})
	})
	g.unoAlert = alert

	g.fireEvent(GameEvent{
		Type: EventUnoAlert,
		User: &EventUser{ID: player.ID, Name: player.Name},
		Payload: map[string]interface{}{
			"timeoutMs": g.alertTimeout().Milliseconds(),
		},
	})
}

// resolveUnoAlertFor cancels the alert if it belongs to the given player.
// Assumes lock is held.
func (g *UnoGame) resolveUnoAlertFor(playerID uuid.UUID) {
	if g.unoAlert != nil && g.unoAlert.playerID == playerID {
		g.cancelUnoAlert()
	}
}

// cancelUnoAlert stops and clears any live alert timer.
// Assumes lock is held.
func (g *UnoGame) cancelUnoAlert() {
	if g.unoAlert == nil {
		return
	}
	if g.unoAlert.timer != nil {
		g.unoAlert.timer.Stop()
	}
	g.unoAlert = nil
}
