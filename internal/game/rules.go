// internal/game/rules.go
package game

import "github.com/unoroom/unoroom/internal/models"

// Penalty is an unresolved draw obligation chained across consecutive
// draw-card plays. Amount accumulates while the obligation is stacked and
// resets to zero once somebody draws.
type Penalty struct {
	Kind   models.CardKind `json:"kind,omitempty"`
	Amount int             `json:"amount"`
}

// Active reports whether a draw obligation is outstanding.
func (p Penalty) Active() bool { return p.Amount > 0 }

// isLegal is the legal-play predicate. Under an active penalty only an
// exact-kind stack is legal: wilds cannot be used to escape a pending draw
// obligation. Otherwise wilds always play, and colored cards match the top
// discard by color, by equal number, or by equal non-number kind. A wild top
// with no declared color (only possible as the seeded starting card) matches
// everything.
func isLegal(c, top *models.Card, pending Penalty, declared models.Color) bool {
	if pending.Active() {
		return c.Kind == pending.Kind
	}
	if c.IsWild() {
		return true
	}
	if top == nil {
		return true
	}
	if top.IsWild() {
		effective := declared
		if effective == models.ColorNone {
			effective = top.Color
		}
		if effective == models.ColorNone {
			return true
		}
		return c.Color == effective
	}
	if c.Color == top.Color {
		return true
	}
	if c.Kind == models.KindNumber && top.Kind == models.KindNumber && c.Number == top.Number {
		return true
	}
	if c.Kind == top.Kind && c.Kind != models.KindNumber {
		return true
	}
	return false
}

// defensiveCards returns the cards in hand that may be stacked against an
// attack of the given kind.
func defensiveCards(hand []*models.Card, attack models.CardKind) []*models.Card {
	var out []*models.Card
	for _, c := range hand {
		if c.Defends(attack) {
			out = append(out, c)
		}
	}
	return out
}
