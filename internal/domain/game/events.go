package game

import (
	"github.com/loreforge/loreforge/internal/domain/combat"
	"github.com/loreforge/loreforge/internal/domain/quest"
)

// EventType names a notification surfaced to participants
type EventType string

const (
	EventStateSnapshot    EventType = "state_snapshot"
	EventStateDelta       EventType = "state_delta"
	EventTurnChanged      EventType = "turn_changed"
	EventTurnTimedOut     EventType = "turn_timed_out"
	EventEncounterStarted EventType = "encounter_started"
	EventEncounterRound   EventType = "encounter_round"
	EventEncounterEnded   EventType = "encounter_ended"
	EventQuestUpdated     EventType = "quest_updated"
)

// Event is a state-change notification. Version carries the store's
// counter so clients can detect ordering; it is zero for events that do
// not correspond to an applied delta.
type Event struct {
	Type    EventType `json:"type"`
	Version uint64    `json:"version,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

// SnapshotPayload carries a full state snapshot, sent on join
type SnapshotPayload struct {
	State *State `json:"state"`
}

// DeltaPayload is the minimal diff description broadcast after an apply
type DeltaPayload struct {
	Actor     string   `json:"actor,omitempty"`
	Narration string   `json:"narration,omitempty"`
	Changed   []string `json:"changed,omitempty"` // Names of touched characters/quests/combatants
}

// TurnPayload names the actor a turn event refers to
type TurnPayload struct {
	Actor string `json:"actor"`
}

// RoundPayload announces a combat round
type RoundPayload struct {
	Round int `json:"round"`
}

// EncounterEndedPayload carries the concluded encounter summary
type EncounterEndedPayload struct {
	Summary *combat.Summary `json:"summary"`
}

// QuestUpdatedPayload reports a quest status change
type QuestUpdatedPayload struct {
	QuestID string       `json:"quest_id"`
	Status  quest.Status `json:"status"`
}
