// Package turn serializes participant actions: it decides whose action
// may currently mutate state, enforces the per-turn deadline, and
// advances turn order.
package turn

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loreforge/loreforge/internal/clients/narrator"
	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
	"github.com/loreforge/loreforge/internal/services/validation"
	"github.com/loreforge/loreforge/internal/state"
)

const (
	defaultTimeout  = 5 * time.Minute
	defaultAttempts = 3
)

// Phase is the coordinator's state machine state
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAwaiting  Phase = "awaiting_action"
	PhaseResolving Phase = "resolving"
)

// Broadcaster fans events out to participants; the session manager
// implements this
type Broadcaster interface {
	Broadcast(ev game.Event)
}

// BroadcastFunc adapts a function to the Broadcaster interface
type BroadcastFunc func(ev game.Event)

// Broadcast calls f(ev)
func (f BroadcastFunc) Broadcast(ev game.Event) { f(ev) }

// Coordinator is the single-writer gate for non-combat turns
type Coordinator struct {
	mu           sync.Mutex
	phase        Phase
	order        []string // Participant ids, circular
	current      int
	attemptsLeft int
	suspended    bool // True while an encounter drives turns instead
	turnSeq      uint64
	timer        *time.Timer

	timeout     time.Duration
	maxAttempts int
	pipeline    validation.Pipeline
	store       *state.Store
	events      Broadcaster
	log         zerolog.Logger
}

// Config holds configuration for the coordinator
type Config struct {
	Pipeline    validation.Pipeline // Required
	Store       *state.Store        // Required
	Events      Broadcaster         // Required
	Timeout     time.Duration       // Optional, defaults to 5m
	MaxAttempts int                 // Optional, defaults to 3
	Logger      zerolog.Logger
}

// New creates an idle coordinator
func New(cfg *Config) *Coordinator {
	if cfg.Pipeline == nil {
		panic("validation pipeline is required")
	}
	if cfg.Store == nil {
		panic("state store is required")
	}
	if cfg.Events == nil {
		panic("event broadcaster is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	return &Coordinator{
		phase:       PhaseIdle,
		timeout:     timeout,
		maxAttempts: attempts,
		pipeline:    cfg.Pipeline,
		store:       cfg.Store,
		events:      cfg.Events,
		log:         cfg.Logger,
	}
}

// Start begins coordination with the given turn order
func (c *Coordinator) Start(order []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(order) == 0 {
		return
	}
	c.order = append([]string(nil), order...)
	c.current = 0
	c.enterAwaitingLocked(c.order[0])
}

// Stop tears the coordinator down
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.phase = PhaseIdle
	c.order = nil
}

// CurrentActor returns the actor whose action is currently admissible
func (c *Coordinator) CurrentActor() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseIdle || c.suspended || c.current >= len(c.order) {
		return "", false
	}
	return c.order[c.current], true
}

// AttemptsLeft reports the remaining pipeline attempts for this turn
func (c *Coordinator) AttemptsLeft() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptsLeft
}

// Order returns the current turn order
func (c *Coordinator) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Submit resolves an action submitted by a participant. Actions from
// anyone other than the current actor are rejected with no state
// change. On pipeline failure the same actor keeps the turn until the
// attempt budget runs out, after which the turn is forfeited.
func (c *Coordinator) Submit(ctx context.Context, action *game.PendingAction) (*game.State, error) {
	if action == nil {
		return nil, apperr.InvalidArgument("action cannot be nil")
	}

	c.mu.Lock()
	if c.phase != PhaseAwaiting || c.suspended {
		c.mu.Unlock()
		return nil, apperr.NotYourTurn(action.Actor)
	}
	expected := c.order[c.current]
	if action.Actor != expected {
		c.mu.Unlock()
		return nil, apperr.NotYourTurn(action.Actor)
	}

	c.phase = PhaseResolving
	c.stopTimerLocked()
	seq := c.turnSeq
	c.mu.Unlock()

	// The narrator call happens off the coordination lock so reads and
	// broadcasts keep flowing for everyone else
	result, err := c.pipeline.Submit(ctx, action, narrator.KindAction)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turnSeq != seq || c.phase != PhaseResolving {
		// The turn moved on while we were resolving (disconnect); drop
		return nil, apperr.ActorDisconnected(action.Actor)
	}

	if err != nil {
		c.attemptsLeft--
		c.log.Warn().Err(err).Str("actor", action.Actor).
			Int("attempts_left", c.attemptsLeft).Msg("action resolution failed")
		if c.attemptsLeft <= 0 {
			c.advanceLocked(false)
			return nil, err
		}
		// Same actor retries within the same turn window
		c.phase = PhaseAwaiting
		c.armTimerLocked()
		return nil, err
	}

	snapshot, _, err := c.store.Apply(result.Delta)
	if err != nil {
		// Structural rejection at commit; counted like a pipeline failure
		c.attemptsLeft--
		if c.attemptsLeft <= 0 {
			c.advanceLocked(false)
			return nil, err
		}
		c.phase = PhaseAwaiting
		c.armTimerLocked()
		return nil, err
	}

	c.advanceLocked(false)
	return snapshot, nil
}

// AddParticipant appends a newly joined participant to the turn order
func (c *Coordinator) AddParticipant(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.order {
		if existing == id {
			return
		}
	}
	c.order = append(c.order, id)
	if c.phase == PhaseIdle && len(c.order) == 1 {
		c.current = 0
		c.enterAwaitingLocked(id)
	}
}

// RemoveParticipant prunes a participant from the turn order. Removing
// the active actor forces an immediate advance, identical to a timeout;
// the coordinator never hangs on a lost connection.
func (c *Coordinator) RemoveParticipant(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, existing := range c.order {
		if existing == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	wasActive := c.phase != PhaseIdle && idx == c.current
	c.order = append(c.order[:idx], c.order[idx+1:]...)
	if idx < c.current {
		c.current--
	}

	if len(c.order) == 0 {
		c.stopTimerLocked()
		c.phase = PhaseIdle
		return
	}

	if wasActive {
		c.stopTimerLocked()
		c.turnSeq++ // Invalidate any in-flight resolution for this actor
		if c.current >= len(c.order) {
			c.current = 0
		}
		c.log.Info().Str("actor", id).Msg("active actor disconnected, forcing advance")
		c.events.Broadcast(game.Event{
			Type:    game.EventTurnTimedOut,
			Payload: game.TurnPayload{Actor: id},
		})
		c.enterAwaitingLocked(c.order[c.current])
	} else if c.current >= len(c.order) {
		c.current = 0
	}
}

// Suspend pauses normal turn coordination while an encounter is active
func (c *Coordinator) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = true
	c.stopTimerLocked()
	c.turnSeq++
}

// Resume restores coordination after an encounter, with the turn order
// pruned of anyone who disconnected mid-encounter
func (c *Coordinator) Resume(order []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.suspended = false
	if len(order) > 0 {
		c.order = append([]string(nil), order...)
	}
	if len(c.order) == 0 {
		c.phase = PhaseIdle
		return
	}
	if c.current >= len(c.order) {
		c.current = 0
	}
	c.enterAwaitingLocked(c.order[c.current])
}

// enterAwaitingLocked arms the per-turn deadline and announces the actor
func (c *Coordinator) enterAwaitingLocked(actor string) {
	c.phase = PhaseAwaiting
	c.attemptsLeft = c.maxAttempts
	c.armTimerLocked()
	c.events.Broadcast(game.Event{
		Type:    game.EventTurnChanged,
		Payload: game.TurnPayload{Actor: actor},
	})
}

// advanceLocked moves to the next actor in circular order. timedOut
// marks the skip as deadline-driven for notification purposes.
func (c *Coordinator) advanceLocked(timedOut bool) {
	c.stopTimerLocked()
	c.turnSeq++

	if timedOut && c.current < len(c.order) {
		skipped := c.order[c.current]
		c.log.Info().Str("actor", skipped).Msg("turn timed out")
		c.events.Broadcast(game.Event{
			Type:    game.EventTurnTimedOut,
			Payload: game.TurnPayload{Actor: skipped},
		})
	}

	if len(c.order) == 0 {
		c.phase = PhaseIdle
		return
	}
	c.current = (c.current + 1) % len(c.order)
	c.enterAwaitingLocked(c.order[c.current])
}

func (c *Coordinator) armTimerLocked() {
	c.stopTimerLocked()
	seq := c.turnSeq
	c.timer = time.AfterFunc(c.timeout, func() {
		c.onTimeout(seq)
	})
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) onTimeout(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Stale timers from an already-exited state are ignored
	if c.turnSeq != seq || c.phase != PhaseAwaiting || c.suspended {
		return
	}
	c.advanceLocked(true)
}
