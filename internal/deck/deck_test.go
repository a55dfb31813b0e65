package deck

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unoroom/unoroom/internal/models"
)

type faceCount struct {
	kind   models.CardKind
	color  models.Color
	number int
}

func countFaces(cards []*models.Card) map[faceCount]int {
	counts := make(map[faceCount]int)
	for _, c := range cards {
		counts[faceCount{c.Kind, c.Color, c.Number}]++
	}
	return counts
}

func TestBuildComposition(t *testing.T) {
	cards := Build()
	require.Len(t, cards, Size)

	counts := countFaces(cards)
	for _, color := range models.Colors {
		assert.Equal(t, 1, counts[faceCount{models.KindNumber, color, 0}], "%s 0", color)
		for n := 1; n <= 9; n++ {
			assert.Equal(t, 2, counts[faceCount{models.KindNumber, color, n}], "%s %d", color, n)
		}
		assert.Equal(t, 2, counts[faceCount{models.KindSkip, color, 0}], "%s skip", color)
		assert.Equal(t, 2, counts[faceCount{models.KindReverse, color, 0}], "%s reverse", color)
		assert.Equal(t, 2, counts[faceCount{models.KindDrawTwo, color, 0}], "%s draw2", color)
	}
	assert.Equal(t, 4, counts[faceCount{models.KindWild, models.ColorNone, 0}])
	assert.Equal(t, 4, counts[faceCount{models.KindWildDrawFour, models.ColorNone, 0}])
}

func TestBuildUniqueIDs(t *testing.T) {
	cards := Build()
	seen := make(map[string]bool, len(cards))
	for _, c := range cards {
		require.False(t, seen[c.ID.String()], "duplicate card instance id")
		seen[c.ID.String()] = true
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	cards := Build()
	before := countFaces(cards)
	beforeIDs := make(map[string]bool, len(cards))
	for _, c := range cards {
		beforeIDs[c.ID.String()] = true
	}

	Shuffle(rand.New(rand.NewSource(1)), cards)

	assert.Equal(t, before, countFaces(cards), "shuffle must preserve the multiset of faces")
	for _, c := range cards {
		assert.True(t, beforeIDs[c.ID.String()], "shuffle must not invent cards")
	}
}

// TestShuffleRoughlyUniform samples the position of a marked card across many
// shuffles and checks no position is wildly over- or under-represented.
func TestShuffleRoughlyUniform(t *testing.T) {
	const trials = 5000
	const n = 10

	r := rand.New(rand.NewSource(42))
	positions := make([]int, n)
	for trial := 0; trial < trials; trial++ {
		cards := make([]*models.Card, n)
		for i := range cards {
			cards[i] = &models.Card{Kind: models.KindNumber, Number: i}
		}
		Shuffle(r, cards)
		for i, c := range cards {
			if c.Number == 0 {
				positions[i]++
			}
		}
	}

	expected := float64(trials) / float64(n)
	for i, got := range positions {
		assert.InDelta(t, expected, float64(got), expected*0.25,
			"marked card landed at position %d a suspicious number of times", i)
	}
}

func TestDraw(t *testing.T) {
	cards := Build()
	drawn, rest := Draw(cards, 7)
	require.Len(t, drawn, 7)
	require.Len(t, rest, Size-7)
	// Draw takes from the tail.
	assert.Equal(t, cards[Size-7].ID, drawn[0].ID)
	assert.Equal(t, cards[Size-1].ID, drawn[6].ID)
}

func TestDrawShortDeck(t *testing.T) {
	cards := Build()[:3]
	drawn, rest := Draw(cards, 10)
	assert.Len(t, drawn, 3, "a short deck yields what it has")
	assert.Empty(t, rest)
}

func TestRecycleKeepsTop(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	discard := Build()[:20]
	wantTop := discard[len(discard)-1]

	fresh, top := Recycle(r, discard)
	require.NotNil(t, top)
	assert.Equal(t, wantTop.ID, top.ID, "recycle must keep the active card out of the deck")
	assert.Len(t, fresh, 19)
	for _, c := range fresh {
		assert.NotEqual(t, wantTop.ID, c.ID)
	}
}

func TestRecycleEmpty(t *testing.T) {
	fresh, top := Recycle(rand.New(rand.NewSource(1)), nil)
	assert.Nil(t, fresh)
	assert.Nil(t, top)
}
