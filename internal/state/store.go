// Package state holds the single authoritative in-memory representation
// of one session and its only mutation entry point.
package state

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
	"github.com/loreforge/loreforge/internal/uuid"
)

// Update describes one committed mutation, in version order
type Update struct {
	Version uint64
	State   *game.State   // Snapshot taken after the commit
	Delta   *game.Delta   // Nil for coordination transitions
	Effects *game.Effects // Side effects of applying Delta, nil otherwise
	Desc    string        // Short description for coordination transitions
}

// Subscriber receives committed updates. Subscribers are invoked on the
// single-writer path, strictly in version order; they must hand work off
// quickly and never call back into the store.
type Subscriber func(Update)

// Store serializes all mutation of a session's state. Deltas are applied
// one at a time in admission order, never interleaved; every successful
// apply increments a monotonic version counter.
type Store struct {
	mu      sync.Mutex
	state   *game.State
	version uint64
	subs    []Subscriber

	uuidGen uuid.Generator
	log     zerolog.Logger
}

// Config holds configuration for the store
type Config struct {
	Initial       *game.State    // Required
	UUIDGenerator uuid.Generator // Optional, will use default if nil
	Logger        zerolog.Logger
}

// New creates a store owning the given initial state
func New(cfg *Config) *Store {
	if cfg.Initial == nil {
		panic("initial state is required")
	}

	s := &Store{
		state:   cfg.Initial,
		uuidGen: cfg.UUIDGenerator,
		log:     cfg.Logger,
	}
	if s.uuidGen == nil {
		s.uuidGen = uuid.NewGoogleUUIDGenerator()
	}
	return s
}

// Subscribe registers a subscriber for committed updates
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Read returns an immutable snapshot of the current state
func (s *Store) Read() *game.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Version returns the current version counter
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Apply validates the delta against current state and commits it
// atomically. A delta that fails validation is rejected without side
// effects. On success the new snapshot and version are returned.
func (s *Store) Apply(delta *game.Delta) (*game.State, uint64, error) {
	if delta == nil {
		return nil, 0, apperr.InvalidArgument("delta cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := delta.Validate(s.state); err != nil {
		s.log.Debug().Err(err).Str("actor", delta.Actor).Msg("delta rejected")
		return nil, s.version, err
	}

	encounterID := ""
	if delta.StartEncounter != nil {
		encounterID = s.uuidGen.New()
	}
	effects := delta.Apply(s.state, encounterID)
	s.version++

	snapshot := s.state.Clone()
	s.notify(Update{Version: s.version, State: snapshot, Delta: delta, Effects: effects})
	return snapshot, s.version, nil
}

// ApplyFunc commits a coordination transition (initiative roll, turn
// index advance, encounter fold-back) through the same single-writer
// path. The function runs on a working copy; an error discards every
// change it made.
func (s *Store) ApplyFunc(desc string, fn func(*game.State) error) (*game.State, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.Clone()
	if err := fn(work); err != nil {
		s.log.Debug().Err(err).Str("transition", desc).Msg("transition rejected")
		return nil, s.version, err
	}
	if err := work.Validate(); err != nil {
		return nil, s.version, err
	}

	s.state = work
	s.version++

	snapshot := s.state.Clone()
	s.notify(Update{Version: s.version, State: snapshot, Desc: desc})
	return snapshot, s.version, nil
}

// notify runs under the store mutex so subscribers observe updates in
// exactly the order they were committed
func (s *Store) notify(u Update) {
	for _, fn := range s.subs {
		fn(u)
	}
}
