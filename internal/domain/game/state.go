package game

import (
	"time"

	"github.com/loreforge/loreforge/internal/domain/combat"
	"github.com/loreforge/loreforge/internal/domain/quest"
)

// State is the authoritative representation of one session: party
// roster, character sheets, quest ledger and any active encounter.
type State struct {
	SessionID  string                `json:"session_id"`
	Characters map[string]*Character `json:"characters"`
	Quests     quest.Ledger          `json:"quests"`
	Containers map[string]*Container `json:"containers,omitempty"`
	Encounter  *combat.Encounter     `json:"encounter,omitempty"`
	Log        []string              `json:"log,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// NewState creates an empty session state
func NewState(sessionID string) *State {
	return &State{
		SessionID:  sessionID,
		Characters: make(map[string]*Character),
		Quests:     make(quest.Ledger),
		Containers: make(map[string]*Container),
		UpdatedAt:  time.Now(),
	}
}

// Clone returns a deep copy of the state
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Characters = make(map[string]*Character, len(s.Characters))
	for name, c := range s.Characters {
		out.Characters[name] = c.Clone()
	}
	out.Quests = s.Quests.Clone()
	if s.Containers != nil {
		out.Containers = make(map[string]*Container, len(s.Containers))
		for id, c := range s.Containers {
			out.Containers[id] = c.Clone()
		}
	}
	out.Encounter = s.Encounter.Clone()
	out.Log = append([]string(nil), s.Log...)
	return &out
}

// AppendLog records a narration or summary line on the session log
func (s *State) AppendLog(entry string) {
	s.Log = append(s.Log, entry)
	if len(s.Log) > 200 {
		s.Log = s.Log[len(s.Log)-200:]
	}
}

// Validate checks every structural invariant the core owns
func (s *State) Validate() error {
	for _, c := range s.Characters {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}
