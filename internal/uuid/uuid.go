// Package uuid puts id generation behind an interface so encounter
// ids stay deterministic in tests.
package uuid

import (
	"github.com/google/uuid"
)

// Generator produces unique string ids
type Generator interface {
	New() string
}

// GoogleUUIDGenerator is the production Generator, backed by random
// version-4 UUIDs
type GoogleUUIDGenerator struct{}

// New returns a fresh UUID string
func (g *GoogleUUIDGenerator) New() string {
	return uuid.New().String()
}

// NewGoogleUUIDGenerator creates a new GoogleUUIDGenerator
func NewGoogleUUIDGenerator() *GoogleUUIDGenerator {
	return &GoogleUUIDGenerator{}
}
