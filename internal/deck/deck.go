// internal/deck/deck.go
//
// Deck construction and shuffling for the 108-card UNO deck. The deck is a
// plain slice treated as a stack: the draw end is the tail.
package deck

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/unoroom/unoroom/internal/models"
)

// Size is the number of cards in a complete deck.
const Size = 108

// Build returns a full deck in color-major order: for each color one 0, two
// each of 1-9, two Skip, two Reverse, two DrawTwo, then 4 Wild and 4
// WildDrawFour. Every card gets a fresh instance id.
func Build() []*models.Card {
	cards := make([]*models.Card, 0, Size)

	add := func(kind models.CardKind, color models.Color, number int) {
		cards = append(cards, &models.Card{
			ID:     uuid.New(),
			Kind:   kind,
			Color:  color,
			Number: number,
		})
	}

	for _, color := range models.Colors {
		add(models.KindNumber, color, 0)
		for n := 1; n <= 9; n++ {
			add(models.KindNumber, color, n)
			add(models.KindNumber, color, n)
		}
		for i := 0; i < 2; i++ {
			add(models.KindSkip, color, 0)
		}
		for i := 0; i < 2; i++ {
			add(models.KindReverse, color, 0)
		}
		for i := 0; i < 2; i++ {
			add(models.KindDrawTwo, color, 0)
		}
	}
	for i := 0; i < 4; i++ {
		add(models.KindWild, models.ColorNone, 0)
	}
	for i := 0; i < 4; i++ {
		add(models.KindWildDrawFour, models.ColorNone, 0)
	}

	return cards
}

// Shuffle permutes cards in place with a Fisher-Yates walk over r.
func Shuffle(r *rand.Rand, cards []*models.Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// Draw removes up to n cards from the draw end of the deck. It returns the
// drawn cards and the remaining deck; fewer than n cards come back when the
// deck runs short, and the caller is expected to recycle the discard pile and
// draw the remainder.
func Draw(cards []*models.Card, n int) (drawn, rest []*models.Card) {
	if n > len(cards) {
		n = len(cards)
	}
	cut := len(cards) - n
	drawn = make([]*models.Card, n)
	copy(drawn, cards[cut:])
	return drawn, cards[:cut]
}

// Recycle turns a discard pile into a fresh shuffled deck, keeping the top
// (last) card aside as the sole remaining discard. The returned deck shares no
// backing array with the input.
func Recycle(r *rand.Rand, discard []*models.Card) (fresh []*models.Card, top *models.Card) {
	if len(discard) == 0 {
		return nil, nil
	}
	top = discard[len(discard)-1]
	fresh = make([]*models.Card, len(discard)-1)
	copy(fresh, discard[:len(discard)-1])
	Shuffle(r, fresh)
	return fresh, top
}
