package combat

import (
	"fmt"
	"sort"
	"time"
)

// Phase represents the current state of an encounter
type Phase string

const (
	PhaseRollingInitiative Phase = "rolling_initiative" // Computing the fixed initiative order
	PhaseRoundActive       Phase = "round_active"       // A combatant's turn is being resolved
	PhaseRoundAdvancing    Phase = "round_advancing"    // Between rounds, checking termination
	PhaseConcluding        Phase = "concluding"         // Folding results back into the session
	PhaseComplete          Phase = "complete"           // Encounter finished
)

// CombatantType represents the type of combatant
type CombatantType string

const (
	CombatantTypePlayer CombatantType = "player"
	CombatantTypeNPC    CombatantType = "npc"
)

// Combatant represents a participant in combat
type Combatant struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          CombatantType `json:"type"`
	Initiative    int           `json:"initiative"`
	InitiativeMod int           `json:"initiative_mod"`
	JoinOrder     int           `json:"join_order"` // Stable tiebreaker for equal initiative
	CurrentHP     int           `json:"current_hp"`
	MaxHP         int           `json:"max_hp"`
	IsActive      bool          `json:"is_active"` // Still in combat
	HasActed      bool          `json:"has_acted"` // Has taken a turn this round

	// For players
	ParticipantID string `json:"participant_id,omitempty"`
	CharacterName string `json:"character_name,omitempty"`

	// NPCs are driven by the narrator on a background path
	AIControlled bool `json:"ai_controlled,omitempty"`
}

// IsAlive returns true if the combatant has more than 0 HP
func (c *Combatant) IsAlive() bool {
	return c.CurrentHP > 0
}

// Encounter represents an active combat sub-session. It exists only
// while combat is active and is folded back into the session when done.
type Encounter struct {
	ID         string                `json:"id"`
	SessionID  string                `json:"session_id"`
	Name       string                `json:"name"`
	Phase      Phase                 `json:"phase"`
	Round      int                   `json:"round"`
	Turn       int                   `json:"turn"` // Index into TurnOrder
	Combatants map[string]*Combatant `json:"combatants"`
	TurnOrder  []string              `json:"turn_order"` // Fixed once initiative is rolled
	Log        []string              `json:"log"`
	StartedAt  time.Time             `json:"started_at"`
	EndedAt    *time.Time            `json:"ended_at,omitempty"`
}

// Summary aggregates what already happened during an encounter. No new
// rules computation happens here.
type Summary struct {
	EncounterID string   `json:"encounter_id"`
	Name        string   `json:"name"`
	Rounds      int      `json:"rounds"`
	PlayersWon  bool     `json:"players_won"`
	Defeated    []string `json:"defeated"`
	Survivors   []string `json:"survivors"`
	Log         []string `json:"log"`
}

// NewEncounter creates an encounter in the initiative-rolling phase
func NewEncounter(id, sessionID, name string) *Encounter {
	return &Encounter{
		ID:         id,
		SessionID:  sessionID,
		Name:       name,
		Phase:      PhaseRollingInitiative,
		Combatants: make(map[string]*Combatant),
		StartedAt:  time.Now(),
	}
}

// AddCombatant registers a combatant before initiative is rolled. The
// join order records arrival for deterministic tie-breaking.
func (e *Encounter) AddCombatant(c *Combatant) {
	c.JoinOrder = len(e.Combatants)
	c.IsActive = true
	e.Combatants[c.ID] = c
}

// RollInitiative fixes the turn order for the whole encounter. Ties are
// broken by join order, which is stable and deterministic.
func (e *Encounter) RollInitiative(roll func(c *Combatant) int) bool {
	if e.Phase != PhaseRollingInitiative || len(e.Combatants) == 0 {
		return false
	}

	order := make([]*Combatant, 0, len(e.Combatants))
	for _, c := range e.Combatants {
		c.Initiative = roll(c)
		order = append(order, c)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Initiative != order[j].Initiative {
			return order[i].Initiative > order[j].Initiative
		}
		return order[i].JoinOrder < order[j].JoinOrder
	})

	e.TurnOrder = make([]string, len(order))
	for i, c := range order {
		e.TurnOrder[i] = c.ID
	}

	e.Phase = PhaseRoundActive
	e.Round = 1
	e.Turn = 0
	e.skipInactive()
	return true
}

// Current returns the combatant whose turn it is, or nil between rounds
func (e *Encounter) Current() *Combatant {
	if e.Phase != PhaseRoundActive || e.Turn >= len(e.TurnOrder) {
		return nil
	}
	return e.Combatants[e.TurnOrder[e.Turn]]
}

// IsParticipantTurn checks whether the given participant drives the
// current combatant
func (e *Encounter) IsParticipantTurn(participantID string) bool {
	current := e.Current()
	return current != nil && current.ParticipantID == participantID
}

// AdvanceTurn marks the current combatant as acted and moves to the
// next eligible combatant. When the order is exhausted the encounter
// moves to the round-advancing phase; call AdvanceRound next.
func (e *Encounter) AdvanceTurn() {
	if e.Phase != PhaseRoundActive {
		return
	}

	if c := e.Current(); c != nil {
		c.HasActed = true
	}
	e.Turn++
	e.skipInactive()

	if e.Turn >= len(e.TurnOrder) {
		e.Phase = PhaseRoundAdvancing
	}
}

// AdvanceRound increments the round counter and either starts the next
// round or moves to the concluding phase when a termination condition
// holds. Returns true when the encounter keeps going.
func (e *Encounter) AdvanceRound() bool {
	if e.Phase != PhaseRoundAdvancing {
		return false
	}

	if over, _ := e.CheckEnd(); over {
		e.Phase = PhaseConcluding
		return false
	}

	e.Round++
	e.Turn = 0
	for _, c := range e.Combatants {
		c.HasActed = false
	}
	e.Phase = PhaseRoundActive
	e.skipInactive()

	if e.Turn >= len(e.TurnOrder) {
		// Nobody left who can act
		e.Phase = PhaseConcluding
		return false
	}
	return true
}

// skipInactive moves the turn index past defeated or departed combatants.
// Survivors keep their positions; nothing is renumbered.
func (e *Encounter) skipInactive() {
	for e.Turn < len(e.TurnOrder) {
		c := e.Combatants[e.TurnOrder[e.Turn]]
		if c != nil && c.IsActive && c.IsAlive() {
			return
		}
		e.Turn++
	}
}

// CheckEnd reports whether combat should end: one side has no active
// combatants left
func (e *Encounter) CheckEnd() (over, playersWon bool) {
	activeNPCs, activePlayers := 0, 0
	for _, c := range e.Combatants {
		if !c.IsActive || !c.IsAlive() {
			continue
		}
		switch c.Type {
		case CombatantTypeNPC:
			activeNPCs++
		case CombatantTypePlayer:
			activePlayers++
		}
	}

	if activeNPCs == 0 {
		return true, activePlayers > 0
	}
	if activePlayers == 0 {
		return true, false
	}
	return false, false
}

// MarkDisconnected deactivates the combatant driven by the given
// participant. Its remaining turns this round are skipped and it is
// excluded from subsequent rounds, without reordering anyone else.
func (e *Encounter) MarkDisconnected(participantID string) *Combatant {
	for _, c := range e.Combatants {
		if c.ParticipantID == participantID && c.IsActive {
			c.IsActive = false
			if cur := e.Current(); cur != nil && cur.ID == c.ID {
				e.AdvanceTurn()
			}
			return c
		}
	}
	return nil
}

// ApplyDamage reduces a combatant's hit points, deactivating it at zero
func (c *Combatant) ApplyDamage(damage int) {
	c.CurrentHP -= damage
	if c.CurrentHP <= 0 {
		c.CurrentHP = 0
		c.IsActive = false
	}
}

// Heal restores hit points, capped at the maximum. A combatant back
// above zero rejoins the fight.
func (c *Combatant) Heal(amount int) {
	c.CurrentHP += amount
	if c.CurrentHP > c.MaxHP {
		c.CurrentHP = c.MaxHP
	}
	if c.CurrentHP > 0 && !c.IsActive {
		c.IsActive = true
	}
}

// AppendLog records a combat action prefixed with the round number
func (e *Encounter) AppendLog(entry string) {
	e.Log = append(e.Log, fmt.Sprintf("Round %d: %s", e.Round, entry))
	// Bound growth; older entries are already reflected in applied state
	if len(e.Log) > 50 {
		e.Log = e.Log[len(e.Log)-50:]
	}
}

// Conclude finalizes the encounter and produces its summary
func (e *Encounter) Conclude() *Summary {
	now := time.Now()
	e.EndedAt = &now
	e.Phase = PhaseComplete

	_, playersWon := e.CheckEnd()
	summary := &Summary{
		EncounterID: e.ID,
		Name:        e.Name,
		Rounds:      e.Round,
		PlayersWon:  playersWon,
		Log:         append([]string(nil), e.Log...),
	}
	for _, id := range e.TurnOrder {
		c := e.Combatants[id]
		if c == nil {
			continue
		}
		if c.IsAlive() && c.IsActive {
			summary.Survivors = append(summary.Survivors, c.Name)
		} else {
			summary.Defeated = append(summary.Defeated, c.Name)
		}
	}
	return summary
}

// Clone returns a deep copy of the encounter
func (e *Encounter) Clone() *Encounter {
	if e == nil {
		return nil
	}
	out := *e
	out.Combatants = make(map[string]*Combatant, len(e.Combatants))
	for id, c := range e.Combatants {
		cc := *c
		out.Combatants[id] = &cc
	}
	out.TurnOrder = append([]string(nil), e.TurnOrder...)
	out.Log = append([]string(nil), e.Log...)
	if e.EndedAt != nil {
		t := *e.EndedAt
		out.EndedAt = &t
	}
	return &out
}
