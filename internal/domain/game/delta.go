package game

import (
	"time"

	"github.com/loreforge/loreforge/internal/domain/combat"
	"github.com/loreforge/loreforge/internal/domain/quest"
	apperr "github.com/loreforge/loreforge/internal/errors"
)

// ActionKind classifies a pending action
type ActionKind string

const (
	ActionNarrate   ActionKind = "narrate"    // Free-form narrative action
	ActionAttack    ActionKind = "attack"     // Combat-legal
	ActionCastSpell ActionKind = "cast_spell" // Combat-legal
	ActionUseItem   ActionKind = "use_item"   // Combat-legal
	ActionRetrieve  ActionKind = "retrieve"   // Storage retrieval, must reference a container
)

// CombatLegal reports whether the kind may be submitted during an
// encounter round
func (k ActionKind) CombatLegal() bool {
	switch k {
	case ActionAttack, ActionCastSpell, ActionUseItem:
		return true
	}
	return false
}

// PendingAction is a transient participant request awaiting validation.
// It is never persisted; it is discarded on success or failure.
type PendingAction struct {
	Actor   string     `json:"actor"`
	Kind    ActionKind `json:"kind"`
	Payload string     `json:"payload"`
}

// CharacterChange mutates the structurally-known fields of one sheet
type CharacterChange struct {
	Name       string         `json:"name"`
	HitPoints  *int           `json:"hit_points,omitempty"` // Sets current HP
	Pools      map[string]int `json:"pools,omitempty"`      // Sets pool current values
	SetFlags   []string       `json:"set_flags,omitempty"`
	ClearFlags []string       `json:"clear_flags,omitempty"`
}

// CombatantChange mutates an encounter combatant; only valid while an
// encounter is active
type CombatantChange struct {
	ID     string `json:"id"`
	Damage int    `json:"damage,omitempty"`
	Heal   int    `json:"heal,omitempty"`
}

// QuestChange requests a quest lifecycle transition
type QuestChange struct {
	ID    string      `json:"id"`
	Event quest.Event `json:"event"`
}

// RetrieveChange moves one item from shared storage into a character's
// inventory. The container and the item must both exist.
type RetrieveChange struct {
	Character string `json:"character"`
	Container string `json:"container"`
	Item      string `json:"item"`
}

// NPCSpec declares an adversary for an encounter start
type NPCSpec struct {
	Name          string `json:"name"`
	MaxHP         int    `json:"max_hp"`
	InitiativeMod int    `json:"initiative_mod,omitempty"`
}

// EncounterSetup is the designated "encounter begins" transition
type EncounterSetup struct {
	Name string    `json:"name"`
	NPCs []NPCSpec `json:"npcs"`
}

// Delta is a structured, schema-checked proposed mutation to session
// state. Either the whole delta applies or none of it does.
type Delta struct {
	Actor          string            `json:"actor"`
	Narration      string            `json:"narration,omitempty"`
	Characters     []CharacterChange `json:"characters,omitempty"`
	Combatants     []CombatantChange `json:"combatants,omitempty"`
	Quests         []QuestChange     `json:"quests,omitempty"`
	NewQuests      []*quest.Record   `json:"new_quests,omitempty"`
	CleanupQuests  bool              `json:"cleanup_quests,omitempty"`
	NewContainers  []*Container      `json:"new_containers,omitempty"`
	Retrievals     []RetrieveChange  `json:"retrievals,omitempty"`
	StartEncounter *EncounterSetup   `json:"start_encounter,omitempty"`
	EndEncounter   bool              `json:"end_encounter,omitempty"`
}

// Effects reports mutations an apply performed beyond what the delta
// itself spells out, so callers can notify participants about them
type Effects struct {
	ActivatedQuest string   // Quest promoted to in-progress because nothing was actionable
	RemovedQuests  []string // Quest ids pruned by a cleanup
}

// Validate checks the delta against the current state without mutating
// anything. A delta that passes here applies cleanly.
func (d *Delta) Validate(s *State) error {
	for _, ch := range d.Characters {
		c, ok := s.Characters[ch.Name]
		if !ok {
			return apperr.Validationf("delta references unknown character %q", ch.Name).
				WithMeta("character", ch.Name)
		}
		if ch.HitPoints != nil {
			if *ch.HitPoints < 0 || *ch.HitPoints > c.HitPoints.Max {
				return apperr.Validationf("hit points %d out of range for %q (max %d)",
					*ch.HitPoints, ch.Name, c.HitPoints.Max)
			}
		}
		for pool, val := range ch.Pools {
			p, ok := c.Pools[pool]
			if !ok {
				return apperr.Validationf("unknown resource pool %q on character %q", pool, ch.Name)
			}
			if val < 0 || val > p.Max {
				return apperr.Validationf("pool %q value %d out of range for %q (max %d)",
					pool, val, ch.Name, p.Max)
			}
		}
	}

	for _, ch := range d.Combatants {
		if s.Encounter == nil {
			return apperr.Validation("combatant change outside an active encounter")
		}
		if _, ok := s.Encounter.Combatants[ch.ID]; !ok {
			return apperr.Validationf("delta references unknown combatant %q", ch.ID)
		}
		if ch.Damage < 0 || ch.Heal < 0 {
			return apperr.Validationf("negative damage or healing for combatant %q", ch.ID)
		}
	}

	seen := make(map[string]bool, len(d.NewQuests))
	for _, q := range d.NewQuests {
		if q.ID == "" {
			return apperr.Validation("new quest is missing an id")
		}
		if s.Quests.Find(q.ID) != nil || seen[q.ID] {
			return apperr.Validationf("quest %q already exists", q.ID)
		}
		seen[q.ID] = true
	}
	for _, qc := range d.Quests {
		rec := s.Quests.Find(qc.ID)
		if rec == nil && !seen[qc.ID] {
			return apperr.Validationf("delta references unknown quest %q", qc.ID)
		}
		if rec != nil {
			if _, err := quest.Next(rec.Status, qc.Event); err != nil {
				return err
			}
		}
	}

	newContainers := make(map[string]*Container, len(d.NewContainers))
	for _, nc := range d.NewContainers {
		if nc.ID == "" || nc.Name == "" {
			return apperr.Validation("new container needs an id and a name")
		}
		if _, exists := s.Containers[nc.ID]; exists || newContainers[nc.ID] != nil {
			return apperr.Validationf("container %q already exists", nc.ID)
		}
		newContainers[nc.ID] = nc
	}
	for _, rc := range d.Retrievals {
		if _, ok := s.Characters[rc.Character]; !ok {
			return apperr.Validationf("retrieval references unknown character %q", rc.Character)
		}
		container, ok := s.Containers[rc.Container]
		if !ok {
			container = newContainers[rc.Container]
		}
		if container == nil {
			return apperr.Validationf("retrieval references unknown container %q", rc.Container).
				WithMeta("container", rc.Container)
		}
		if !container.Holds(rc.Item) {
			return apperr.Validationf("container %q does not hold %q", rc.Container, rc.Item)
		}
	}

	if d.StartEncounter != nil {
		if s.Encounter != nil {
			return apperr.InvalidTransition("an encounter is already active")
		}
		if len(d.StartEncounter.NPCs) == 0 {
			return apperr.Validation("encounter start declares no adversaries")
		}
		for _, npc := range d.StartEncounter.NPCs {
			if npc.Name == "" || npc.MaxHP <= 0 {
				return apperr.Validationf("invalid adversary spec %q", npc.Name)
			}
		}
	}
	if d.EndEncounter && s.Encounter == nil {
		return apperr.InvalidTransition("no active encounter to end")
	}

	return nil
}

// Apply mutates the state. Callers must have called Validate first; the
// store does both under its single-writer path so concurrent deltas are
// never interleaved.
func (d *Delta) Apply(s *State, newEncounterID string) *Effects {
	for _, ch := range d.Characters {
		c := s.Characters[ch.Name]
		if ch.HitPoints != nil {
			c.HitPoints.Current = *ch.HitPoints
		}
		for pool, val := range ch.Pools {
			p := c.Pools[pool]
			p.Current = val
			c.Pools[pool] = p
		}
		for _, f := range ch.SetFlags {
			if c.Flags == nil {
				c.Flags = make(map[string]bool)
			}
			c.Flags[f] = true
		}
		for _, f := range ch.ClearFlags {
			delete(c.Flags, f)
		}
	}

	for _, ch := range d.Combatants {
		c := s.Encounter.Combatants[ch.ID]
		if ch.Damage > 0 {
			c.ApplyDamage(ch.Damage)
		}
		if ch.Heal > 0 {
			c.Heal(ch.Heal)
		}
		// Keep the owning character's sheet in step for player combatants
		if c.CharacterName != "" {
			if sheet, ok := s.Characters[c.CharacterName]; ok {
				sheet.HitPoints.Current = c.CurrentHP
				if sheet.HitPoints.Current > sheet.HitPoints.Max {
					sheet.HitPoints.Current = sheet.HitPoints.Max
				}
			}
		}
	}

	for _, q := range d.NewQuests {
		rec := q.Clone()
		if rec.Status == "" {
			rec.Status = quest.StatusNotStarted
		}
		s.Quests[rec.ID] = rec
	}
	for _, qc := range d.Quests {
		// Validated above; a failed lookup here means the quest arrived
		// in NewQuests within this same delta
		_, _ = s.Quests.Apply(qc.ID, qc.Event)
	}

	effects := &Effects{}
	if d.CleanupQuests {
		effects.RemovedQuests = s.Quests.Cleanup()
	}
	// Participants are never left without an actionable quest
	if rec := s.Quests.AutoActivate(); rec != nil {
		effects.ActivatedQuest = rec.ID
	}

	for _, nc := range d.NewContainers {
		if s.Containers == nil {
			s.Containers = make(map[string]*Container)
		}
		s.Containers[nc.ID] = nc.Clone()
	}
	for _, rc := range d.Retrievals {
		container := s.Containers[rc.Container]
		if container == nil || !container.Take(rc.Item) {
			continue
		}
		s.Characters[rc.Character].Inventory = append(s.Characters[rc.Character].Inventory, rc.Item)
	}

	if d.StartEncounter != nil {
		enc := combat.NewEncounter(newEncounterID, s.SessionID, d.StartEncounter.Name)
		for _, npc := range d.StartEncounter.NPCs {
			enc.AddCombatant(&combat.Combatant{
				ID:            "npc-" + npc.Name,
				Name:          npc.Name,
				Type:          combat.CombatantTypeNPC,
				InitiativeMod: npc.InitiativeMod,
				CurrentHP:     npc.MaxHP,
				MaxHP:         npc.MaxHP,
				AIControlled:  true,
			})
		}
		s.Encounter = enc
	}

	if d.EndEncounter && s.Encounter != nil {
		// Plot-driven conclusion; the orchestrator folds the encounter
		// back on its next transition
		s.Encounter.Phase = combat.PhaseConcluding
	}

	if d.Narration != "" {
		s.AppendLog(d.Narration)
	}
	s.UpdatedAt = time.Now()
	return effects
}
