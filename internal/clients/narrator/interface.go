// Package narrator defines the contract with the external generative
// collaborator and its OpenAI-backed implementation.
package narrator

//go:generate mockgen -destination=mock/mock_client.go -package=mocknarrator -source=interface.go

import (
	"context"
	"encoding/json"

	"github.com/loreforge/loreforge/internal/domain/game"
)

// RequestKind tells the narrator what it is being asked to produce
type RequestKind string

const (
	// KindAction resolves a participant's submitted action
	KindAction RequestKind = "action"

	// KindCombatTurn resolves an AI-controlled combatant's turn
	KindCombatTurn RequestKind = "combat_turn"

	// KindCorrection asks for a corrected response after a validation
	// failure, carrying the reason
	KindCorrection RequestKind = "correction"
)

// Request carries enough context for the narrator: the action and the
// relevant slice of current state, serialized by the caller.
type Request struct {
	Kind         RequestKind
	Action       *game.PendingAction
	StateContext string // Serialized relevant state slice
	Correction   string // Validation failure being corrected, for KindCorrection
}

// Candidate is the narrator's structured response: narrative text plus
// a proposed state delta. The core is agnostic to how it was produced;
// the raw payload is validated before anything reaches the state store.
type Candidate struct {
	Narration string          `json:"narration"`
	Delta     json.RawMessage `json:"delta,omitempty"`
}

// Client is the external generative collaborator
type Client interface {
	// Generate produces a candidate for the given request
	Generate(ctx context.Context, req *Request) ([]byte, error)
}
