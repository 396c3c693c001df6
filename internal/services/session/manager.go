// Package session tracks connected participants, routes their actions
// to the active coordination authority, and fans state-change
// notifications out in version order.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loreforge/loreforge/internal/domain/combat"
	"github.com/loreforge/loreforge/internal/domain/game"
	"github.com/loreforge/loreforge/internal/domain/quest"
	apperr "github.com/loreforge/loreforge/internal/errors"
	"github.com/loreforge/loreforge/internal/repositories/snapshots"
	"github.com/loreforge/loreforge/internal/services/encounter"
	"github.com/loreforge/loreforge/internal/services/turn"
	"github.com/loreforge/loreforge/internal/state"
)

// Transport carries messages to participants; the websocket hub
// implements this
type Transport interface {
	Broadcast(data []byte)
	SendTo(participantID string, data []byte)
}

// Manager maintains the participant set and the mapping from connection
// to character
type Manager struct {
	mu      sync.Mutex
	session *game.Session

	store           *state.Store
	coordinator     *turn.Coordinator
	orchestrator    *encounter.Orchestrator
	repo            snapshots.Repository
	transport       Transport
	maxParticipants int
	log             zerolog.Logger

	updates chan state.Update
	done    chan struct{}
}

// Config holds configuration for the manager
type Config struct {
	Session         *game.Session           // Required
	Store           *state.Store            // Required
	Coordinator     *turn.Coordinator       // Required
	Orchestrator    *encounter.Orchestrator // Set via SetOrchestrator when wiring cycles
	Repository      snapshots.Repository    // Required
	Transport       Transport               // Set via SetTransport when wiring cycles
	MaxParticipants int                     // Optional, defaults to 6
	Logger          zerolog.Logger
}

const defaultMaxParticipants = 6

// New creates a session manager and subscribes it to the store. Call
// Run to start the fan-out loop and Close to stop it.
func New(cfg *Config) *Manager {
	if cfg.Session == nil {
		panic("session is required")
	}
	if cfg.Store == nil {
		panic("state store is required")
	}
	if cfg.Coordinator == nil {
		panic("turn coordinator is required")
	}
	if cfg.Repository == nil {
		panic("snapshot repository is required")
	}
	m := &Manager{
		session:         cfg.Session,
		store:           cfg.Store,
		coordinator:     cfg.Coordinator,
		orchestrator:    cfg.Orchestrator,
		repo:            cfg.Repository,
		transport:       cfg.Transport,
		maxParticipants: cfg.MaxParticipants,
		log:             cfg.Logger,
		updates:         make(chan state.Update, 256),
		done:            make(chan struct{}),
	}
	if m.maxParticipants <= 0 {
		m.maxParticipants = defaultMaxParticipants
	}

	// The subscriber runs on the store's single-writer path; it only
	// enqueues, preserving version order for the fan-out loop
	m.store.Subscribe(func(u state.Update) {
		select {
		case m.updates <- u:
		default:
			m.log.Error().Uint64("version", u.Version).Msg("update queue full, dropping notification")
		}
	})
	return m
}

// SetOrchestrator completes wiring; the orchestrator needs the manager
// as its roster, so it is constructed second
func (m *Manager) SetOrchestrator(o *encounter.Orchestrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orchestrator = o
}

// SetTransport completes wiring; the hub needs the manager as its
// gateway, so it is constructed second
func (m *Manager) SetTransport(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transport = t
}

// Run processes committed updates in version order until Close
func (m *Manager) Run() {
	for {
		select {
		case u := <-m.updates:
			m.handleUpdate(u)
		case <-m.done:
			return
		}
	}
}

// Close stops the fan-out loop
func (m *Manager) Close() {
	close(m.done)
}

// Broadcast implements turn.Broadcaster: every coordination event goes
// out to all participants
func (m *Manager) Broadcast(ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		m.log.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to encode event")
		return
	}
	if t := m.currentTransport(); t != nil {
		t.Broadcast(data)
	}
}

// ActiveParticipants implements encounter.Roster
func (m *Manager) ActiveParticipants() []*game.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*game.Participant, 0, len(m.session.Participants))
	for _, p := range m.session.Participants {
		out = append(out, p)
	}
	return out
}

// Join registers a participant, ensures their character exists in the
// shared state, enters them into the turn order and sends them a full
// snapshot. The first join effectively starts the session.
func (m *Manager) Join(participantID, name, characterName string) error {
	if strings.TrimSpace(participantID) == "" {
		return apperr.InvalidArgument("participant ID is required")
	}
	if strings.TrimSpace(name) == "" {
		return apperr.InvalidArgument("participant name is required")
	}
	if strings.TrimSpace(characterName) == "" {
		return apperr.InvalidArgument("character name is required")
	}

	m.mu.Lock()
	if m.session.HasParticipant(participantID) {
		m.mu.Unlock()
		return apperr.AlreadyExists("participant is already in the session")
	}
	if len(m.session.Participants) >= m.maxParticipants {
		m.mu.Unlock()
		return apperr.Validationf("session is full (%d participants)", m.maxParticipants).
			WithMeta("max_participants", m.maxParticipants)
	}
	m.session.AddParticipant(participantID, name, characterName)
	m.mu.Unlock()

	snapshot, _, err := m.store.ApplyFunc("participant_join", func(s *game.State) error {
		if _, ok := s.Characters[characterName]; !ok {
			s.Characters[characterName] = &game.Character{
				Name:      characterName,
				OwnerID:   participantID,
				HitPoints: game.ResourcePool{Current: 10, Max: 10},
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(err, "failed to register character")
	}

	m.coordinator.AddParticipant(participantID)
	m.sendSnapshot(participantID, snapshot)
	m.log.Info().Str("participant", participantID).Str("character", characterName).Msg("participant joined")
	return nil
}

// Leave removes a participant on disconnect or explicit leave, pruning
// them from the turn order and any active encounter
func (m *Manager) Leave(participantID string) {
	m.mu.Lock()
	if !m.session.HasParticipant(participantID) {
		m.mu.Unlock()
		return
	}
	m.session.RemoveParticipant(participantID)
	orchestrator := m.orchestrator
	m.mu.Unlock()

	if orchestrator != nil && orchestrator.Active() {
		orchestrator.HandleDisconnect(participantID)
	}
	m.coordinator.RemoveParticipant(participantID)
	m.log.Info().Str("participant", participantID).Msg("participant left")
}

// SubmitAction routes a pending action to whichever machine currently
// owns turn admission
func (m *Manager) SubmitAction(ctx context.Context, action *game.PendingAction) (*game.State, error) {
	m.mu.Lock()
	if action != nil && !m.session.HasParticipant(action.Actor) {
		m.mu.Unlock()
		return nil, apperr.NotFound("unknown participant")
	}
	orchestrator := m.orchestrator
	m.mu.Unlock()

	if orchestrator != nil && orchestrator.Active() {
		return orchestrator.Submit(ctx, action)
	}
	return m.coordinator.Submit(ctx, action)
}

// sendSnapshot delivers the full state to one participant, on join
func (m *Manager) sendSnapshot(participantID string, snapshot *game.State) {
	ev := game.Event{
		Type:    game.EventStateSnapshot,
		Version: m.store.Version(),
		Payload: game.SnapshotPayload{State: snapshot},
	}
	data, err := json.Marshal(ev)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	if t := m.currentTransport(); t != nil {
		t.SendTo(participantID, data)
	}
}

func (m *Manager) currentTransport() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// handleUpdate broadcasts the diff for one committed version and runs
// the reactions that belong outside the store lock: quest
// notifications, encounter activation and checkpoint saves
func (m *Manager) handleUpdate(u state.Update) {
	m.Broadcast(game.Event{
		Type:    game.EventStateDelta,
		Version: u.Version,
		Payload: diffPayload(u),
	})

	if u.Delta != nil {
		for _, qc := range u.Delta.Quests {
			var payload game.QuestUpdatedPayload
			payload.QuestID = qc.ID
			if rec := u.State.Quests.Find(qc.ID); rec != nil {
				payload.Status = rec.Status
			}
			m.Broadcast(game.Event{Type: game.EventQuestUpdated, Version: u.Version, Payload: payload})
		}
		m.broadcastEffects(u)

		// A delta that began an encounter hands control to the orchestrator
		if u.Delta.StartEncounter != nil && u.State.Encounter != nil &&
			u.State.Encounter.Phase == combat.PhaseRollingInitiative {
			m.mu.Lock()
			orchestrator := m.orchestrator
			m.mu.Unlock()
			if orchestrator != nil {
				if err := orchestrator.Activate(); err != nil {
					m.log.Error().Err(err).Msg("failed to activate encounter")
				}
			}
		}

		// Checkpoint after every resolved turn; a failed save must never
		// corrupt in-memory state, so it is only logged
		m.checkpoint(u.State)
	}
}

// broadcastEffects announces quest changes the apply performed on its
// own: automatic activation and batch cleanup
func (m *Manager) broadcastEffects(u state.Update) {
	if u.Effects == nil {
		return
	}
	if id := u.Effects.ActivatedQuest; id != "" {
		m.Broadcast(game.Event{
			Type:    game.EventQuestUpdated,
			Version: u.Version,
			Payload: game.QuestUpdatedPayload{QuestID: id, Status: quest.StatusInProgress},
		})
	}
	for _, id := range u.Effects.RemovedQuests {
		m.Broadcast(game.Event{
			Type:    game.EventQuestUpdated,
			Version: u.Version,
			Payload: game.QuestUpdatedPayload{QuestID: id, Status: quest.StatusRemoved},
		})
	}
}

func (m *Manager) checkpoint(snapshot *game.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.repo.Save(ctx, snapshot.SessionID, snapshot); err != nil {
		m.log.Error().Err(err).Str("session", snapshot.SessionID).Msg("checkpoint save failed")
	}
}

// diffPayload builds the minimal diff description for a committed update
func diffPayload(u state.Update) game.DeltaPayload {
	p := game.DeltaPayload{}
	if u.Delta == nil {
		p.Narration = u.Desc
		return p
	}
	p.Actor = u.Delta.Actor
	p.Narration = u.Delta.Narration
	for _, ch := range u.Delta.Characters {
		p.Changed = append(p.Changed, "character:"+ch.Name)
	}
	for _, ch := range u.Delta.Combatants {
		p.Changed = append(p.Changed, "combatant:"+ch.ID)
	}
	for _, qc := range u.Delta.Quests {
		p.Changed = append(p.Changed, "quest:"+qc.ID)
	}
	for _, q := range u.Delta.NewQuests {
		p.Changed = append(p.Changed, "quest:"+q.ID)
	}
	if u.Delta.StartEncounter != nil {
		p.Changed = append(p.Changed, "encounter:started")
	}
	if u.Delta.EndEncounter {
		p.Changed = append(p.Changed, "encounter:ended")
	}
	return p
}
