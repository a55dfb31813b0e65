// internal/game/game.go
package game

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unoroom/unoroom/internal/cache"
	"github.com/unoroom/unoroom/internal/deck"
	"github.com/unoroom/unoroom/internal/models"
)

const (
	// HandSize is the number of cards dealt to each player at game start.
	HandSize = 7

	// UnoAccusationPenalty is the number of cards drawn by a player caught
	// with one card and no guard.
	UnoAccusationPenalty = 2

	// DefaultUnoAlertTimeout is how long an UNO alert stays open before
	// resolving with no penalty.
	DefaultUnoAlertTimeout = 7 * time.Second
)

// OnGameEndFunc handles a finished game: broadcasting results back to the
// room, releasing the store entry, and so on.
type OnGameEndFunc func(roomID uuid.UUID, winner uuid.UUID)

// UnoGame holds the entire authoritative state for a single game in memory.
// All command methods serialize on Mu: each command mutates state to
// completion and emits its broadcasts before the next command for the same
// game is processed. Games are fully independent of one another.
type UnoGame struct {
	ID     uuid.UUID
	RoomID uuid.UUID

	Players     []*models.Player
	Deck        []*models.Card
	DiscardPile []*models.Card

	CurrentIdx    int
	Direction     int
	Pending       Penalty
	DeclaredColor models.Color

	// Defense window: while WaitingForDefense is set, only the targeted
	// player may act, and only by stacking or accepting the penalty.
	WaitingForDefense bool
	DefensePlayerID   uuid.UUID

	Started  bool
	GameOver bool

	Mu sync.Mutex

	// BroadcastFn is used to send events to all players. If nil, no broadcast is done.
	BroadcastFn func(ev GameEvent)

	// BroadcastToPlayerFn sends an event to a single specific player.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent)

	// OnGameEnd is invoked at game end to notify the room layer.
	OnGameEnd OnGameEndFunc

	// UnoAlertTimeout overrides DefaultUnoAlertTimeout when > 0.
	UnoAlertTimeout time.Duration

	rng         *rand.Rand
	actionIndex int

	unoAlert      *unoAlert
	unoAlertSeq   int
	unoCallBusy   bool
	winnerID      uuid.UUID
}

// NewUnoGame builds an empty instance with a freshly shuffled 108-card deck.
func NewUnoGame(roomID uuid.UUID) *UnoGame {
	g := &UnoGame{
		ID:        uuid.New(),
		RoomID:    roomID,
		Direction: 1,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	g.Deck = deck.Build()
	deck.Shuffle(g.rng, g.Deck)
	return g
}

// Start deals seven cards to each player in seat order, seeds a starting
// discard that is never a WildDrawFour, and opens play with the first seat.
func (g *UnoGame) Start(players []*models.Player) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Started {
		return ErrGameAlreadyInProgress
	}
	if len(players) < 2 {
		return ErrPlayerNotFound
	}

	g.Players = players
	for _, p := range g.Players {
		p.Hand = g.drawFromDeck(HandSize)
		p.UnoGuard = false
	}

	// Seed the starting discard. A WildDrawFour goes back under the deck and
	// another card is drawn; a plain Wild may start with no declared color.
	for {
		drawn := g.drawFromDeck(1)
		if len(drawn) == 0 {
			return ErrDeckExhausted
		}
		top := drawn[0]
		if top.Kind == models.KindWildDrawFour {
			g.Deck = append([]*models.Card{top}, g.Deck...)
			continue
		}
		g.DiscardPile = append(g.DiscardPile, top)
		break
	}

	g.CurrentIdx = 0
	g.Direction = 1
	g.Pending = Penalty{}
	g.DeclaredColor = models.ColorNone
	g.Started = true

	g.logAction(uuid.Nil, "game_start", map[string]interface{}{"players": len(players)})
	for _, p := range g.Players {
		g.fireEventToPlayer(p.ID, GameEvent{
			Type:  EventGameInitialized,
			Hand:  append([]*models.Card(nil), p.Hand...),
			State: g.publicView(),
		})
	}
	return nil
}

// --- Command results ---

// PlayResult reports the outcome of a successful play or defense.
type PlayResult struct {
	Hand   []*models.Card
	Winner bool
}

// DrawResult reports the outcome of a voluntary draw.
type DrawResult struct {
	Cards []*models.Card
	Hand  []*models.Card
}

// AcceptResult reports the outcome of accepting a pending draw penalty.
type AcceptResult struct {
	Cards []*models.Card
	Hand  []*models.Card
}

// --- Commands ---

// PlayCard validates and applies a play of the identified hand card. For
// wilds, declared selects the color the played copy assumes. On success the
// updated state is broadcast; on failure nothing changes.
func (g *UnoGame) PlayCard(playerID, cardID uuid.UUID, declared models.Color) (*PlayResult, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if err := g.checkActive(); err != nil {
		return nil, err
	}
	idx := g.playerIndex(playerID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}
	if g.WaitingForDefense {
		if g.DefensePlayerID == playerID {
			return nil, ErrMustStackOrDraw
		}
		return nil, ErrNotYourTurn
	}
	if idx != g.CurrentIdx {
		return nil, ErrNotYourTurn
	}

	player := g.Players[idx]
	card := g.cardInHand(player, cardID)
	if card == nil {
		return nil, ErrCardNotInHand
	}
	if g.Pending.Active() && card.Kind != g.Pending.Kind {
		return nil, ErrMustStackOrDraw
	}
	if !isLegal(card, g.topCard(), g.Pending, g.DeclaredColor) {
		return nil, ErrIllegalPlay
	}
	if card.IsWild() && !models.ValidColor(declared) {
		return nil, ErrIllegalPlay
	}

	// Commit: consume the hand card, place the played copy.
	g.removeFromHand(player, cardID)
	played := card.Played(declared)
	g.DiscardPile = append(g.DiscardPile, played)
	if played.IsWild() {
		g.DeclaredColor = declared
	} else {
		g.DeclaredColor = models.ColorNone
	}

	g.logAction(playerID, "play_card", map[string]interface{}{
		"card": string(card.Kind), "color": string(played.Color),
	})

	if len(player.Hand) == 0 {
		g.endGame(playerID)
		return &PlayResult{Hand: nil, Winner: true}, nil
	}

	g.resolveEffect(played, idx)

	if len(player.Hand) == 1 {
		g.armUnoAlert(playerID)
	}

	g.broadcastUpdate()
	return &PlayResult{Hand: append([]*models.Card(nil), player.Hand...)}, nil
}

// DrawCard draws count cards (at least one) from the deck into the player's
// hand and passes the turn. Drawing clears the player's UNO guard.
func (g *UnoGame) DrawCard(playerID uuid.UUID, count int) (*DrawResult, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if err := g.checkActive(); err != nil {
		return nil, err
	}
	idx := g.playerIndex(playerID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}
	if g.WaitingForDefense {
		if g.DefensePlayerID == playerID {
			return nil, ErrMustStackOrDraw
		}
		return nil, ErrNotYourTurn
	}
	if idx != g.CurrentIdx {
		return nil, ErrNotYourTurn
	}
	if count < 1 {
		count = 1
	}

	cards := g.drawFromDeck(count)
	if len(cards) == 0 {
		return nil, ErrDeckExhausted
	}

	player := g.Players[idx]
	player.Hand = append(player.Hand, cards...)
	g.clearUnoGuard(player)

	g.logAction(playerID, "draw_card", map[string]interface{}{"count": len(cards)})

	g.CurrentIdx = g.indexAfter(idx)
	g.fireEventToPlayer(playerID, GameEvent{Type: EventHandUpdate, Hand: append([]*models.Card(nil), player.Hand...)})
	g.broadcastUpdate()
	return &DrawResult{Cards: cards, Hand: append([]*models.Card(nil), player.Hand...)}, nil
}

// Defend stacks a draw card against the pending penalty during this player's
// defense window. The obligation grows by the new card's amount and the next
// player is evaluated for a further defense chance; the chain continues until
// somebody has to draw.
func (g *UnoGame) Defend(playerID, cardID uuid.UUID, declared models.Color) (*PlayResult, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if err := g.checkActive(); err != nil {
		return nil, err
	}
	if !g.WaitingForDefense || g.DefensePlayerID != playerID {
		return nil, ErrNotWaitingForDefense
	}
	idx := g.playerIndex(playerID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}

	player := g.Players[idx]
	card := g.cardInHand(player, cardID)
	if card == nil {
		return nil, ErrCardNotInHand
	}
	if !card.Defends(g.Pending.Kind) {
		return nil, ErrIllegalPlay
	}
	if card.IsWild() && !models.ValidColor(declared) {
		return nil, ErrIllegalPlay
	}

	g.removeFromHand(player, cardID)
	played := card.Played(declared)
	g.DiscardPile = append(g.DiscardPile, played)
	if played.IsWild() {
		g.DeclaredColor = declared
	} else {
		g.DeclaredColor = models.ColorNone
	}

	g.logAction(playerID, "defend", map[string]interface{}{
		"card": string(card.Kind), "pending": g.Pending.Amount,
	})

	// A defender who empties their hand wins before the chain continues.
	if len(player.Hand) == 0 {
		g.endGame(playerID)
		return &PlayResult{Hand: nil, Winner: true}, nil
	}

	g.WaitingForDefense = false
	g.DefensePlayerID = uuid.Nil
	g.CurrentIdx = idx
	g.raiseAttack(played, idx)

	if len(player.Hand) == 1 {
		g.armUnoAlert(playerID)
	}

	g.broadcastUpdate()
	return &PlayResult{Hand: append([]*models.Card(nil), player.Hand...)}, nil
}

// AcceptPenalty resolves the defense window by drawing the accumulated
// penalty into the targeted player's hand and advancing past them.
func (g *UnoGame) AcceptPenalty(playerID uuid.UUID) (*AcceptResult, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if err := g.checkActive(); err != nil {
		return nil, err
	}
	if !g.WaitingForDefense || g.DefensePlayerID != playerID {
		return nil, ErrNotWaitingForDefense
	}
	idx := g.playerIndex(playerID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}

	cards := g.applyPenalty(idx)
	player := g.Players[idx]

	g.logAction(playerID, "accept_penalty", map[string]interface{}{"count": len(cards)})

	g.fireEventToPlayer(playerID, GameEvent{Type: EventHandUpdate, Hand: append([]*models.Card(nil), player.Hand...)})
	g.broadcastUpdate()
	return &AcceptResult{Cards: cards, Hand: append([]*models.Card(nil), player.Hand...)}, nil
}

// --- Effect resolution ---

// resolveEffect applies the played card's effect and advances the turn.
// Assumes lock is held; the player's index is idx and their hand is not empty.
func (g *UnoGame) resolveEffect(played *models.Card, idx int) {
	switch played.Kind {
	case models.KindSkip:
		g.CurrentIdx = g.advance(idx, 2)
	case models.KindReverse:
		g.Direction *= -1
		if len(g.Players) == 2 {
			// Head to head, reverse skips the opponent outright.
			g.CurrentIdx = g.advance(idx, 2)
		} else {
			g.CurrentIdx = g.advance(idx, 1)
		}
	case models.KindDrawTwo, models.KindWildDrawFour:
		g.raiseAttack(played, idx)
	default:
		g.Pending = Penalty{}
		g.CurrentIdx = g.advance(idx, 1)
	}
}

// raiseAttack accumulates the draw obligation created by played and decides
// what happens to the next player: open a defense window if they hold a
// matching-or-escalating draw card, otherwise apply the penalty immediately
// and advance past them.
// Assumes lock is held.
func (g *UnoGame) raiseAttack(played *models.Card, fromIdx int) {
	g.Pending.Kind = played.Kind
	g.Pending.Amount += played.PenaltyAmount()

	victimIdx := g.indexAfter(fromIdx)
	victim := g.Players[victimIdx]

	options := defensiveCards(victim.Hand, played.Kind)
	if len(options) > 0 {
		g.WaitingForDefense = true
		g.DefensePlayerID = victim.ID
		g.CurrentIdx = victimIdx
		g.fireEventToPlayer(victim.ID, GameEvent{
			Type: EventDefenseOptions,
			Card: played,
			Hand: options,
			Payload: map[string]interface{}{
				"pendingDraws": g.Pending.Amount,
			},
		})
		return
	}

	cards := g.applyPenalty(victimIdx)
	g.fireEventToPlayer(victim.ID, GameEvent{Type: EventHandUpdate, Hand: append([]*models.Card(nil), victim.Hand...)})
	g.logAction(victim.ID, "penalty_applied", map[string]interface{}{"count": len(cards)})
}

// applyPenalty draws the accumulated penalty into the hand at victimIdx,
// resets the obligation, clears the defense window, and advances past the
// victim.
// Assumes lock is held.
func (g *UnoGame) applyPenalty(victimIdx int) []*models.Card {
	victim := g.Players[victimIdx]
	cards := g.drawFromDeck(g.Pending.Amount)
	victim.Hand = append(victim.Hand, cards...)
	g.clearUnoGuard(victim)

	g.Pending = Penalty{}
	g.WaitingForDefense = false
	g.DefensePlayerID = uuid.Nil
	g.CurrentIdx = g.indexAfter(victimIdx)
	return cards
}

// --- Turn arithmetic ---

// advance returns the index steps seats away from idx in the current
// direction, skipping disconnected players.
// Assumes lock is held.
func (g *UnoGame) advance(idx, steps int) int {
	n := len(g.Players)
	for s := 0; s < steps; s++ {
		idx = ((idx+g.Direction)%n + n) % n
		for hops := 0; hops < n && !g.Players[idx].Connected; hops++ {
			idx = ((idx+g.Direction)%n + n) % n
		}
	}
	return idx
}

// indexAfter is advance by a single seat.
// Assumes lock is held.
func (g *UnoGame) indexAfter(idx int) int { return g.advance(idx, 1) }

// --- Deck plumbing ---

// drawFromDeck removes up to n cards from the deck, recycling the discard
// pile (keeping the active top card) when the deck runs dry. It may return
// fewer than n cards if both piles are exhausted; callers treat a zero-card
// result as the DeckExhausted condition.
// Assumes lock is held.
func (g *UnoGame) drawFromDeck(n int) []*models.Card {
	drawn, rest := deck.Draw(g.Deck, n)
	g.Deck = rest
	if len(drawn) < n && len(g.DiscardPile) > 1 {
		fresh, top := deck.Recycle(g.rng, g.DiscardPile)
		g.Deck = fresh
		g.DiscardPile = []*models.Card{top}
		g.fireEvent(GameEvent{
			Type:    EventDeckRecycled,
			Payload: map[string]interface{}{"deckSize": len(g.Deck)},
		})
		more, rest2 := deck.Draw(g.Deck, n-len(drawn))
		g.Deck = rest2
		drawn = append(drawn, more...)
	}
	if len(drawn) < n {
		log.Printf("game %s: deck exhausted, drew %d of %d requested", g.ID, len(drawn), n)
	}
	return drawn
}

// topCard returns the active discard card, nil before the seed.
// Assumes lock is held.
func (g *UnoGame) topCard() *models.Card {
	if len(g.DiscardPile) == 0 {
		return nil
	}
	return g.DiscardPile[len(g.DiscardPile)-1]
}

// --- Player helpers ---

// playerIndex returns the seat index for a player id, -1 if absent.
// Assumes lock is held.
func (g *UnoGame) playerIndex(playerID uuid.UUID) int {
	for i, p := range g.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// playerByID is a helper to find a player struct by their ID.
// Assumes lock is held.
func (g *UnoGame) playerByID(playerID uuid.UUID) *models.Player {
	if i := g.playerIndex(playerID); i >= 0 {
		return g.Players[i]
	}
	return nil
}

// cardInHand returns the hand card with the given instance id, nil if absent.
// Assumes lock is held.
func (g *UnoGame) cardInHand(p *models.Player, cardID uuid.UUID) *models.Card {
	for _, c := range p.Hand {
		if c.ID == cardID {
			return c
		}
	}
	return nil
}

// removeFromHand removes the identified card from the player's hand.
// Assumes lock is held.
func (g *UnoGame) removeFromHand(p *models.Player, cardID uuid.UUID) {
	for i, c := range p.Hand {
		if c.ID == cardID {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return
		}
	}
}

// checkActive guards commands against a torn-down or unstarted game.
// Assumes lock is held.
func (g *UnoGame) checkActive() error {
	if g.GameOver {
		return ErrRoomNotFound
	}
	if !g.Started {
		return ErrGameAlreadyInProgress
	}
	return nil
}

// --- Connection lifecycle ---

// HandleDisconnect marks the player disconnected. A disconnected defense
// target forfeits their window: the obligation is retargeted at the next
// eligible player. If nobody is left connected the game is torn down.
func (g *UnoGame) HandleDisconnect(playerID uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.GameOver {
		return
	}
	idx := g.playerIndex(playerID)
	if idx < 0 {
		return
	}
	player := g.Players[idx]
	if !player.Connected {
		return
	}
	player.Connected = false
	player.Conn = nil
	g.logAction(playerID, "player_disconnect", nil)

	if g.countConnected() == 0 {
		g.endGame(uuid.Nil)
		return
	}

	g.resolveUnoAlertFor(playerID)

	if g.WaitingForDefense && g.DefensePlayerID == playerID {
		// The pending attack transfers to the next eligible player.
		g.WaitingForDefense = false
		g.DefensePlayerID = uuid.Nil
		g.retargetPenalty(idx)
	} else if idx == g.CurrentIdx {
		g.CurrentIdx = g.indexAfter(idx)
	}
	g.broadcastUpdate()
}

// retargetPenalty re-runs the defense evaluation against the next connected
// player after fromIdx, carrying the accumulated Pending forward.
// Assumes lock is held.
func (g *UnoGame) retargetPenalty(fromIdx int) {
	victimIdx := g.indexAfter(fromIdx)
	victim := g.Players[victimIdx]

	options := defensiveCards(victim.Hand, g.Pending.Kind)
	if len(options) > 0 {
		g.WaitingForDefense = true
		g.DefensePlayerID = victim.ID
		g.CurrentIdx = victimIdx
		g.fireEventToPlayer(victim.ID, GameEvent{
			Type: EventDefenseOptions,
			Card: g.topCard(),
			Hand: options,
			Payload: map[string]interface{}{
				"pendingDraws": g.Pending.Amount,
			},
		})
		return
	}
	cards := g.applyPenalty(victimIdx)
	g.fireEventToPlayer(victim.ID, GameEvent{Type: EventHandUpdate, Hand: append([]*models.Card(nil), victim.Hand...)})
	g.logAction(victim.ID, "penalty_applied", map[string]interface{}{"count": len(cards)})
}

// Reconnect marks a returning player connected, stores the new connection on
// their seat, and sends them a full private state sync.
func (g *UnoGame) Reconnect(playerID uuid.UUID, attach func(p *models.Player)) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := g.playerByID(playerID)
	if player == nil {
		return
	}
	player.Connected = true
	if attach != nil {
		attach(player)
	}
	g.logAction(playerID, "player_reconnect", nil)
	g.sendSyncState(playerID)
	g.broadcastUpdate()
}

// SyncState pushes the caller's private view; used for explicit state
// requests after a page reload.
func (g *UnoGame) SyncState(playerID uuid.UUID) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.playerByID(playerID) == nil {
		return ErrPlayerNotFound
	}
	g.sendSyncState(playerID)
	return nil
}

// countConnected returns the number of connected players.
// Assumes lock is held.
func (g *UnoGame) countConnected() int {
	n := 0
	for _, p := range g.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// --- Game end ---

// endGame marks the game finished, cancels the UNO alert, announces the
// winner, and hands control back to the room layer.
// Assumes lock is held.
func (g *UnoGame) endGame(winner uuid.UUID) {
	if g.GameOver {
		return
	}
	g.GameOver = true
	g.Started = false
	g.winnerID = winner
	g.WaitingForDefense = false
	g.DefensePlayerID = uuid.Nil
	g.cancelUnoAlert()

	name := ""
	if p := g.playerByID(winner); p != nil {
		name = p.Name
	}
	log.Printf("game %s: over, winner %s", g.ID, winner)
	g.logAction(winner, "game_over", map[string]interface{}{"winner": winner.String()})

	g.fireEvent(GameEvent{
		Type: EventGameOver,
		User: &EventUser{ID: winner, Name: name},
	})
	if g.OnGameEnd != nil {
		g.OnGameEnd(g.RoomID, winner)
	}
}

// Winner returns the winning player id once the game is over.
func (g *UnoGame) Winner() uuid.UUID {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.winnerID
}

// --- Broadcast plumbing ---

// broadcastUpdate pushes the shared redacted state to the whole room.
// Assumes lock is held.
func (g *UnoGame) broadcastUpdate() {
	g.fireEvent(GameEvent{Type: EventGameUpdate, State: g.publicView()})
}

// fireEvent broadcasts an event to all connected players.
// Assumes lock is held.
func (g *UnoGame) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	}
}

// fireEventToPlayer sends an event only to a specific player.
// Assumes lock is held.
func (g *UnoGame) fireEventToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn != nil {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// clearUnoGuard drops the guard when its owner draws; the alert for that
// player, if any, resolves as well since their hand changed.
// Assumes lock is held.
func (g *UnoGame) clearUnoGuard(p *models.Player) {
	p.UnoGuard = false
	g.resolveUnoAlertFor(p.ID)
}

// logAction publishes the action to the historian queue via Redis.
// Assumes lock is held.
func (g *UnoGame) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:        g.ID,
		RoomID:        g.RoomID,
		ActionIndex:   g.actionIndex,
		ActorPlayerID: actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cache.Rdb == nil {
			return
		}
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			log.Printf("game %s: failed to publish action %d: %v", rec.GameID, rec.ActionIndex, err)
		}
	}(record)
}
