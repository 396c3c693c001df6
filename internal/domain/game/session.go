package game

import (
	"time"
)

// Participant is a connected identity controlling one character
type Participant struct {
	ID            string    `json:"id"` // Connection-scoped identity
	Name          string    `json:"name"`
	CharacterName string    `json:"character_name"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Session represents one running game. It owns exactly one state store
// instance; at most one turn coordinator and one active encounter exist
// per session.
type Session struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Participants map[string]*Participant `json:"participants"` // ParticipantID -> Participant
	CreatedAt    time.Time               `json:"created_at"`
	LastActive   time.Time               `json:"last_active"`
}

// NewSession creates a session with an empty participant set
func NewSession(id, name string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Name:         name,
		Participants: make(map[string]*Participant),
		CreatedAt:    now,
		LastActive:   now,
	}
}

// AddParticipant registers a participant; created on join
func (s *Session) AddParticipant(id, name, characterName string) *Participant {
	p := &Participant{
		ID:            id,
		Name:          name,
		CharacterName: characterName,
		JoinedAt:      time.Now(),
	}
	s.Participants[id] = p
	s.LastActive = time.Now()
	return p
}

// RemoveParticipant drops a participant on disconnect or explicit leave
func (s *Session) RemoveParticipant(id string) {
	delete(s.Participants, id)
	s.LastActive = time.Now()
}

// HasParticipant checks membership
func (s *Session) HasParticipant(id string) bool {
	_, ok := s.Participants[id]
	return ok
}
