// Package encounter runs a combat encounter as a non-blocking state
// machine, interleaving human and AI-controlled turns.
package encounter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loreforge/loreforge/internal/clients/narrator"
	"github.com/loreforge/loreforge/internal/dice"
	"github.com/loreforge/loreforge/internal/domain/combat"
	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
	"github.com/loreforge/loreforge/internal/services/turn"
	"github.com/loreforge/loreforge/internal/services/validation"
	"github.com/loreforge/loreforge/internal/state"
)

const (
	defaultTurnTimeout = 5 * time.Minute
	defaultAttempts    = 3
	aiTurnTimeout      = 3 * time.Minute
)

// TurnControl is what the orchestrator needs from the turn coordinator:
// suspension while combat drives turns, and resumption with the pruned
// pre-combat order afterwards
type TurnControl interface {
	Suspend()
	Resume(order []string)
}

// Roster supplies the currently connected participants
type Roster interface {
	ActiveParticipants() []*game.Participant
}

// Orchestrator drives one encounter at a time for a session
type Orchestrator struct {
	mu           sync.Mutex
	active       bool
	seq          uint64 // Invalidates stale timers and background resolutions
	attemptsLeft int
	timer        *time.Timer

	roller      dice.Roller
	pipeline    validation.Pipeline
	store       *state.Store
	events      turn.Broadcaster
	coordinator TurnControl
	roster      Roster
	timeout     time.Duration
	maxAttempts int
	log         zerolog.Logger
}

// Config holds configuration for the orchestrator
type Config struct {
	Pipeline    validation.Pipeline // Required
	Store       *state.Store        // Required
	Events      turn.Broadcaster    // Required
	Coordinator TurnControl         // Required
	Roster      Roster              // Required
	Roller      dice.Roller         // Optional, defaults to random
	Timeout     time.Duration       // Optional, defaults to 5m
	MaxAttempts int                 // Optional, defaults to 3
	Logger      zerolog.Logger
}

// New creates an inactive orchestrator
func New(cfg *Config) *Orchestrator {
	if cfg.Pipeline == nil {
		panic("validation pipeline is required")
	}
	if cfg.Store == nil {
		panic("state store is required")
	}
	if cfg.Events == nil {
		panic("event broadcaster is required")
	}
	if cfg.Coordinator == nil {
		panic("turn control is required")
	}
	if cfg.Roster == nil {
		panic("roster is required")
	}

	o := &Orchestrator{
		roller:      cfg.Roller,
		pipeline:    cfg.Pipeline,
		store:       cfg.Store,
		events:      cfg.Events,
		coordinator: cfg.Coordinator,
		roster:      cfg.Roster,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		log:         cfg.Logger,
	}
	if o.roller == nil {
		o.roller = dice.NewRandomRoller(nil)
	}
	if o.timeout <= 0 {
		o.timeout = defaultTurnTimeout
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = defaultAttempts
	}
	return o
}

// Active reports whether an encounter is currently being driven
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Activate takes over turn coordination for the encounter already
// present in state (the "encounter begins" delta was applied). It adds
// player combatants for every connected participant, fixes the
// initiative order and starts the first round.
func (o *Orchestrator) Activate() error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return apperr.InvalidTransition("an encounter is already being orchestrated")
	}
	o.active = true
	o.seq++
	o.mu.Unlock()

	o.coordinator.Suspend()

	participants := o.roster.ActiveParticipants()
	snapshot, _, err := o.store.ApplyFunc("roll_initiative", func(s *game.State) error {
		if s.Encounter == nil {
			return apperr.InvalidTransition("no encounter in state")
		}
		for _, p := range participants {
			hp := game.ResourcePool{Current: 10, Max: 10}
			if c, ok := s.Characters[p.CharacterName]; ok {
				hp = c.HitPoints
			}
			s.Encounter.AddCombatant(&combat.Combatant{
				ID:            p.ID,
				Name:          p.Name,
				Type:          combat.CombatantTypePlayer,
				ParticipantID: p.ID,
				CharacterName: p.CharacterName,
				CurrentHP:     hp.Current,
				MaxHP:         hp.Max,
			})
		}
		if !s.Encounter.RollInitiative(func(c *combat.Combatant) int {
			total, _ := o.roller.Roll(1, 20, c.InitiativeMod)
			return total
		}) {
			return apperr.InvalidTransition("encounter is not awaiting initiative")
		}
		return nil
	})
	if err != nil {
		o.deactivate()
		return err
	}

	o.events.Broadcast(game.Event{Type: game.EventEncounterStarted})
	o.events.Broadcast(game.Event{
		Type:    game.EventEncounterRound,
		Payload: game.RoundPayload{Round: snapshot.Encounter.Round},
	})
	o.log.Info().Str("encounter", snapshot.Encounter.ID).
		Int("combatants", len(snapshot.Encounter.Combatants)).Msg("encounter started")

	o.scheduleNext(snapshot)
	return nil
}

// Submit resolves a combat action from a human participant. The
// submission contract matches the turn coordinator's, scoped to
// combat-legal action kinds.
func (o *Orchestrator) Submit(ctx context.Context, action *game.PendingAction) (*game.State, error) {
	if action == nil {
		return nil, apperr.InvalidArgument("action cannot be nil")
	}
	if !action.Kind.CombatLegal() {
		return nil, apperr.InvalidArgumentf("action kind %q is not legal in combat", action.Kind)
	}

	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return nil, apperr.InvalidTransition("no active encounter")
	}
	seq := o.seq
	o.mu.Unlock()

	snapshot := o.store.Read()
	enc := snapshot.Encounter
	if enc == nil || enc.Phase != combat.PhaseRoundActive || !enc.IsParticipantTurn(action.Actor) {
		return nil, apperr.NotYourTurn(action.Actor)
	}

	result, err := o.pipeline.Submit(ctx, action, narrator.KindAction)
	if err == nil {
		if !o.turnCurrent(seq) {
			// The turn moved on while the narrator was thinking
			// (disconnect, timeout, conclusion); drop the result
			return nil, apperr.ActorDisconnected(action.Actor)
		}
		var applied *game.State
		applied, _, err = o.store.Apply(result.Delta)
		if err == nil {
			o.finishTurn(seq)
			return applied, nil
		}
	}

	// Failed attempt; same combatant keeps the turn until the budget
	// runs out, then the turn is skipped
	o.mu.Lock()
	if o.seq != seq || !o.active {
		o.mu.Unlock()
		return nil, err
	}
	o.attemptsLeft--
	exhausted := o.attemptsLeft <= 0
	o.mu.Unlock()

	if exhausted {
		o.log.Warn().Err(err).Str("actor", action.Actor).Msg("combat turn forfeited")
		o.finishTurn(seq)
	}
	return nil, err
}

// HandleDisconnect prunes a participant's combatant mid-encounter. Its
// remaining actions this round are skipped and it is excluded from
// later rounds without reordering anyone else.
func (o *Orchestrator) HandleDisconnect(participantID string) {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	seq := o.seq
	o.mu.Unlock()

	wasCurrent := false
	snapshot, _, err := o.store.ApplyFunc("prune_combatant", func(s *game.State) error {
		if s.Encounter == nil {
			return apperr.InvalidTransition("no encounter in state")
		}
		if cur := s.Encounter.Current(); cur != nil && cur.ParticipantID == participantID {
			wasCurrent = true
		}
		if s.Encounter.MarkDisconnected(participantID) == nil {
			return apperr.NotFoundf("participant %q has no combatant", participantID)
		}
		return nil
	})
	if err != nil {
		return
	}

	o.log.Info().Str("participant", participantID).Msg("combatant pruned mid-encounter")
	if wasCurrent {
		o.bumpSeq(seq)
		o.scheduleNext(snapshot)
	}
}

// Deactivated encounters fold back into normal session coordination.

// finishTurn advances past the current combatant and keeps the machine
// moving
func (o *Orchestrator) finishTurn(seq uint64) {
	o.mu.Lock()
	if !o.active || o.seq != seq {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	snapshot, _, err := o.store.ApplyFunc("advance_turn", func(s *game.State) error {
		if s.Encounter == nil {
			return apperr.InvalidTransition("no encounter in state")
		}
		s.Encounter.AdvanceTurn()
		// A side may already be gone mid-round
		if over, _ := s.Encounter.CheckEnd(); over {
			s.Encounter.Phase = combat.PhaseConcluding
		}
		return nil
	})
	if err != nil {
		o.log.Error().Err(err).Msg("failed to advance combat turn")
		return
	}

	o.bumpSeq(seq)
	o.scheduleNext(snapshot)
}

// scheduleNext inspects the encounter phase and dispatches the next
// piece of work: a human wait, a background AI resolution, a round
// advance, or conclusion
func (o *Orchestrator) scheduleNext(snapshot *game.State) {
	enc := snapshot.Encounter
	if enc == nil {
		return
	}

	switch enc.Phase {
	case combat.PhaseRoundActive:
		cur := enc.Current()
		if cur == nil {
			o.advanceRound()
			return
		}
		o.mu.Lock()
		o.attemptsLeft = o.maxAttempts
		seq := o.seq
		if cur.AIControlled {
			o.stopTimerLocked()
			o.mu.Unlock()
			// Narrator thinking never blocks the coordination core
			go o.resolveAITurn(cur, seq)
			return
		}
		o.armTimerLocked(cur.ID)
		o.mu.Unlock()
		o.events.Broadcast(game.Event{
			Type:    game.EventTurnChanged,
			Payload: game.TurnPayload{Actor: cur.ParticipantID},
		})

	case combat.PhaseRoundAdvancing:
		o.advanceRound()

	case combat.PhaseConcluding:
		o.conclude()
	}
}

func (o *Orchestrator) advanceRound() {
	snapshot, _, err := o.store.ApplyFunc("advance_round", func(s *game.State) error {
		if s.Encounter == nil {
			return apperr.InvalidTransition("no encounter in state")
		}
		if s.Encounter.Phase == combat.PhaseRoundActive {
			s.Encounter.Phase = combat.PhaseRoundAdvancing
		}
		s.Encounter.AdvanceRound()
		return nil
	})
	if err != nil {
		o.log.Error().Err(err).Msg("failed to advance combat round")
		return
	}

	enc := snapshot.Encounter
	if enc.Phase == combat.PhaseRoundActive {
		o.events.Broadcast(game.Event{
			Type:    game.EventEncounterRound,
			Payload: game.RoundPayload{Round: enc.Round},
		})
	}
	o.scheduleNext(snapshot)
}

// conclude computes the summary, folds the encounter back into session
// state and hands control back to the turn coordinator
func (o *Orchestrator) conclude() {
	var summary *combat.Summary
	_, _, err := o.store.ApplyFunc("conclude_encounter", func(s *game.State) error {
		if s.Encounter == nil {
			return apperr.InvalidTransition("no encounter in state")
		}
		summary = s.Encounter.Conclude()
		s.AppendLog("Encounter concluded: " + summary.Name)
		s.Encounter = nil
		return nil
	})
	if err != nil {
		o.log.Error().Err(err).Msg("failed to conclude encounter")
	}

	o.deactivate()

	if summary != nil {
		o.events.Broadcast(game.Event{
			Type:    game.EventEncounterEnded,
			Payload: game.EncounterEndedPayload{Summary: summary},
		})
		o.log.Info().Int("rounds", summary.Rounds).Bool("players_won", summary.PlayersWon).
			Msg("encounter ended")
	}

	// Resume with whoever is still connected
	var order []string
	for _, p := range o.roster.ActiveParticipants() {
		order = append(order, p.ID)
	}
	o.coordinator.Resume(order)
}

// resolveAITurn runs on a background goroutine; the coordination core
// keeps serving reads while the narrator thinks. An exhausted pipeline
// skips the combatant's turn, never stalling the round.
func (o *Orchestrator) resolveAITurn(c *combat.Combatant, seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), aiTurnTimeout)
	defer cancel()

	action := &game.PendingAction{
		Actor:   c.ID,
		Kind:    game.ActionAttack,
		Payload: "Resolve " + c.Name + "'s combat turn against the party.",
	}

	result, err := o.pipeline.Submit(ctx, action, narrator.KindCombatTurn)
	if err == nil {
		if !o.turnCurrent(seq) {
			// The encounter concluded or the turn was skipped while the
			// narrator was thinking; the result is stale
			return
		}
		_, _, err = o.store.Apply(result.Delta)
	}
	if err != nil {
		o.log.Warn().Err(err).Str("combatant", c.Name).Msg("AI turn skipped")
		_, _, _ = o.store.ApplyFunc("skip_ai_turn", func(s *game.State) error {
			if s.Encounter != nil {
				s.Encounter.AppendLog(c.Name + " hesitates and loses its turn.")
			}
			return nil
		})
	}

	o.finishTurn(seq)
}

func (o *Orchestrator) deactivate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = false
	o.seq++
	o.stopTimerLocked()
}

// turnCurrent reports whether the turn that started a resolution is
// still the one being driven
func (o *Orchestrator) turnCurrent(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active && o.seq == seq
}

// bumpSeq invalidates any timer or background work for the turn that
// just ended
func (o *Orchestrator) bumpSeq(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seq == seq {
		o.seq++
	}
}

func (o *Orchestrator) armTimerLocked(combatantID string) {
	o.stopTimerLocked()
	seq := o.seq
	o.timer = time.AfterFunc(o.timeout, func() {
		o.onTimeout(combatantID, seq)
	})
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) onTimeout(combatantID string, seq uint64) {
	o.mu.Lock()
	if !o.active || o.seq != seq {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	snapshot := o.store.Read()
	if enc := snapshot.Encounter; enc != nil {
		if cur := enc.Current(); cur != nil && cur.ID == combatantID {
			o.log.Info().Str("combatant", combatantID).Msg("combat turn timed out")
			o.events.Broadcast(game.Event{
				Type:    game.EventTurnTimedOut,
				Payload: game.TurnPayload{Actor: cur.ParticipantID},
			})
			o.finishTurn(seq)
		}
	}
}
