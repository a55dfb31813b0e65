// internal/models/card.go
package models

import "github.com/google/uuid"

// CardKind identifies the face of an UNO card.
type CardKind string

const (
	KindNumber       CardKind = "number"
	KindSkip         CardKind = "skip"
	KindReverse      CardKind = "reverse"
	KindDrawTwo      CardKind = "draw2"
	KindWild         CardKind = "wild"
	KindWildDrawFour CardKind = "wild_draw4"
)

// Color is one of the four UNO colors, or ColorNone for a wild card whose
// color has not been declared yet.
type Color string

const (
	ColorNone   Color = ""
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
)

// Colors lists the four declared colors in deck order.
var Colors = []Color{ColorRed, ColorGreen, ColorBlue, ColorYellow}

// ValidColor reports whether c is one of the four declarable colors.
func ValidColor(c Color) bool {
	switch c {
	case ColorRed, ColorGreen, ColorBlue, ColorYellow:
		return true
	}
	return false
}

// Card is an immutable card instance. Every physical card in a deck carries a
// unique ID assigned at build time, so two structurally identical cards in the
// same hand can still be told apart.
type Card struct {
	ID     uuid.UUID `json:"id"`
	Kind   CardKind  `json:"kind"`
	Color  Color     `json:"color,omitempty"`
	Number int       `json:"number"` // meaningful only when Kind == KindNumber
}

// IsWild reports whether the card is a Wild or WildDrawFour.
func (c *Card) IsWild() bool {
	return c.Kind == KindWild || c.Kind == KindWildDrawFour
}

// IsDraw reports whether playing the card creates a draw penalty.
func (c *Card) IsDraw() bool {
	return c.Kind == KindDrawTwo || c.Kind == KindWildDrawFour
}

// PenaltyAmount returns the number of cards the card forces the next player
// to draw, or 0 for a non-attacking card.
func (c *Card) PenaltyAmount() int {
	switch c.Kind {
	case KindDrawTwo:
		return 2
	case KindWildDrawFour:
		return 4
	}
	return 0
}

// Defends reports whether the card may be stacked on top of an attack of the
// given kind. A DrawTwo attack is answered by DrawTwo or WildDrawFour; a
// WildDrawFour attack only by another WildDrawFour.
func (c *Card) Defends(attack CardKind) bool {
	switch attack {
	case KindDrawTwo:
		return c.Kind == KindDrawTwo || c.Kind == KindWildDrawFour
	case KindWildDrawFour:
		return c.Kind == KindWildDrawFour
	}
	return false
}

// Played returns the copy of c that goes onto the discard pile. For wilds the
// declared color is written into the played copy; the hand card itself is
// consumed unchanged.
func (c *Card) Played(declared Color) *Card {
	played := *c
	if c.IsWild() {
		played.Color = declared
	}
	return &played
}
