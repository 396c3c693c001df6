package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/clients/narrator"
	"github.com/loreforge/loreforge/internal/dice"
	"github.com/loreforge/loreforge/internal/domain/game"
	"github.com/loreforge/loreforge/internal/domain/quest"
	apperr "github.com/loreforge/loreforge/internal/errors"
	"github.com/loreforge/loreforge/internal/repositories/snapshots"
	"github.com/loreforge/loreforge/internal/services/encounter"
	"github.com/loreforge/loreforge/internal/services/session"
	"github.com/loreforge/loreforge/internal/services/turn"
	"github.com/loreforge/loreforge/internal/services/validation"
	"github.com/loreforge/loreforge/internal/state"
)

// queuedPipeline returns canned deltas in submission order
type queuedPipeline struct {
	mu     sync.Mutex
	deltas []*game.Delta
	next   int
}

func (p *queuedPipeline) Submit(_ context.Context, action *game.PendingAction, _ narrator.RequestKind) (*validation.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delta := &game.Delta{Narration: action.Actor + " acts."}
	if p.next < len(p.deltas) {
		delta = p.deltas[p.next]
		p.next++
	}
	delta.Actor = action.Actor
	return &validation.Result{Narration: delta.Narration, Delta: delta}, nil
}

// fakeTransport records everything sent through it, decoded as events
type fakeTransport struct {
	mu        sync.Mutex
	broadcast []game.Event
	direct    map[string][]game.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{direct: make(map[string][]game.Event)}
}

func (f *fakeTransport) Broadcast(data []byte) {
	var ev game.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	f.mu.Lock()
	f.broadcast = append(f.broadcast, ev)
	f.mu.Unlock()
}

func (f *fakeTransport) SendTo(participantID string, data []byte) {
	var ev game.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	f.mu.Lock()
	f.direct[participantID] = append(f.direct[participantID], ev)
	f.mu.Unlock()
}

func (f *fakeTransport) broadcastOfType(t game.EventType) []game.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []game.Event
	for _, ev := range f.broadcast {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeTransport) sentTo(participantID string) []game.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]game.Event(nil), f.direct[participantID]...)
}

type fixture struct {
	manager   *session.Manager
	store     *state.Store
	repo      snapshots.Repository
	transport *fakeTransport
	pipeline  *queuedPipeline
}

func newFixture(t *testing.T) *fixture {
	return newCappedFixture(t, 0)
}

// newCappedFixture wires a full manager with an explicit participant
// cap; zero means the default
func newCappedFixture(t *testing.T, maxParticipants int) *fixture {
	t.Helper()

	store := state.New(&state.Config{Initial: game.NewState("sess-1")})
	pipeline := &queuedPipeline{}
	repo := snapshots.NewInMemoryRepository()
	transport := newFakeTransport()

	var manager *session.Manager
	broadcaster := turn.BroadcastFunc(func(ev game.Event) {
		if manager != nil {
			manager.Broadcast(ev)
		}
	})

	coordinator := turn.New(&turn.Config{
		Pipeline: pipeline,
		Store:    store,
		Events:   broadcaster,
		Timeout:  time.Minute,
	})

	manager = session.New(&session.Config{
		Session:         game.NewSession("sess-1", "main"),
		Store:           store,
		Coordinator:     coordinator,
		Repository:      repo,
		MaxParticipants: maxParticipants,
	})

	orchestrator := encounter.New(&encounter.Config{
		Pipeline:    pipeline,
		Store:       store,
		Events:      broadcaster,
		Coordinator: coordinator,
		Roster:      manager,
		Roller:      &dice.SequenceRoller{Totals: []int{10}},
		Timeout:     time.Minute,
	})
	manager.SetOrchestrator(orchestrator)
	manager.SetTransport(transport)

	go manager.Run()
	t.Cleanup(func() {
		manager.Close()
		coordinator.Stop()
	})

	return &fixture{manager: manager, store: store, repo: repo, transport: transport, pipeline: pipeline}
}

func TestJoin(t *testing.T) {
	f := newFixture(t)

	err := f.manager.Join("p-alice", "Alice", "Alice")
	require.NoError(t, err)

	// The character sheet now exists with default hit points
	s := f.store.Read()
	c := s.Characters["Alice"]
	require.NotNil(t, c)
	assert.Equal(t, "p-alice", c.OwnerID)
	assert.Equal(t, 10, c.HitPoints.Max)

	// The joiner got a full snapshot
	direct := f.transport.sentTo("p-alice")
	require.Len(t, direct, 1)
	assert.Equal(t, game.EventStateSnapshot, direct[0].Type)

	// The first joiner holds the turn
	changed := f.transport.broadcastOfType(game.EventTurnChanged)
	require.NotEmpty(t, changed)
}

func TestJoin_Duplicate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	err := f.manager.Join("p-alice", "Alice", "Alice")

	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyExists, apperr.GetCode(err))
}

func TestJoin_KeepsExistingCharacter(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.store.ApplyFunc("seed", func(s *game.State) error {
		s.Characters["Alice"] = &game.Character{
			Name: "Alice", OwnerID: "p-old",
			HitPoints: game.ResourcePool{Current: 7, Max: 14},
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	// Rejoining a saved session must not reset the sheet
	c := f.store.Read().Characters["Alice"]
	assert.Equal(t, 7, c.HitPoints.Current)
	assert.Equal(t, 14, c.HitPoints.Max)
}

func TestJoin_SessionFull(t *testing.T) {
	f := newCappedFixture(t, 2)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))
	require.NoError(t, f.manager.Join("p-bob", "Bob", "Bob"))

	err := f.manager.Join("p-cleo", "Cleo", "Cleo")

	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Len(t, f.manager.ActiveParticipants(), 2)
}

func TestJoin_Validation(t *testing.T) {
	f := newFixture(t)

	assert.Error(t, f.manager.Join("", "Alice", "Alice"))
	assert.Error(t, f.manager.Join("p-alice", "", "Alice"))
	assert.Error(t, f.manager.Join("p-alice", "Alice", " "))
}

func TestSubmitAction_RoutesToCoordinator(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	snapshot, err := f.manager.SubmitAction(context.Background(), &game.PendingAction{
		Actor: "p-alice", Kind: game.ActionNarrate, Payload: "I look around",
	})

	require.NoError(t, err)
	assert.Contains(t, snapshot.Log, "p-alice acts.")
}

func TestSubmitAction_UnknownParticipant(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	_, err := f.manager.SubmitAction(context.Background(), &game.PendingAction{
		Actor: "p-ghost", Kind: game.ActionNarrate,
	})

	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))
	require.NoError(t, f.manager.Join("p-bob", "Bob", "Bob"))

	f.manager.Leave("p-alice")

	assert.Len(t, f.manager.ActiveParticipants(), 1)
	// Idempotent
	f.manager.Leave("p-alice")
	assert.Len(t, f.manager.ActiveParticipants(), 1)
}

func TestUpdates_BroadcastInVersionOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	_, err := f.manager.SubmitAction(context.Background(), &game.PendingAction{
		Actor: "p-alice", Kind: game.ActionNarrate, Payload: "I look around",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.transport.broadcastOfType(game.EventStateDelta)) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	deltas := f.transport.broadcastOfType(game.EventStateDelta)
	var last uint64
	for _, ev := range deltas {
		assert.Greater(t, ev.Version, last)
		last = ev.Version
	}
}

func TestUpdates_CheckpointSaved(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	_, err := f.manager.SubmitAction(context.Background(), &game.PendingAction{
		Actor: "p-alice", Kind: game.ActionNarrate, Payload: "I look around",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		saved, err := f.repo.Load(context.Background(), "sess-1")
		if err != nil {
			return false
		}
		for _, line := range saved.Log {
			if line == "p-alice acts." {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdates_QuestEventsBroadcast(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	f.pipeline.mu.Lock()
	f.pipeline.deltas = []*game.Delta{{
		Narration: "A new quest reveals itself.",
		NewQuests: []*quest.Record{{ID: "q1", Title: "Clear the mine"}},
		Quests:    []game.QuestChange{{ID: "q1", Event: quest.EventActivate}},
	}}
	f.pipeline.mu.Unlock()

	_, err := f.manager.SubmitAction(context.Background(), &game.PendingAction{
		Actor: "p-alice", Kind: game.ActionNarrate, Payload: "I read the notice board",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.transport.broadcastOfType(game.EventQuestUpdated)) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdates_QuestPromotionBroadcast(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	_, _, err := f.store.ApplyFunc("seed", func(s *game.State) error {
		s.Quests["q1"] = &quest.Record{ID: "q1", Title: "Clear the mine", Status: quest.StatusInProgress}
		s.Quests["q2"] = &quest.Record{ID: "q2", Title: "Find the foreman", Status: quest.StatusNotStarted}
		return nil
	})
	require.NoError(t, err)

	f.pipeline.mu.Lock()
	f.pipeline.deltas = []*game.Delta{{
		Narration: "The mine falls silent.",
		Quests:    []game.QuestChange{{ID: "q1", Event: quest.EventComplete}},
	}}
	f.pipeline.mu.Unlock()

	_, err = f.manager.SubmitAction(context.Background(), &game.PendingAction{
		Actor: "p-alice", Kind: game.ActionNarrate, Payload: "I clear the last tunnel",
	})
	require.NoError(t, err)

	// Completing the only in-progress quest promotes the next one, and
	// both changes are announced
	require.Eventually(t, func() bool {
		return len(f.transport.broadcastOfType(game.EventQuestUpdated)) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	promoted := false
	for _, ev := range f.transport.broadcastOfType(game.EventQuestUpdated) {
		if p, ok := ev.Payload.(map[string]any); ok {
			if p["quest_id"] == "q2" && p["status"] == string(quest.StatusInProgress) {
				promoted = true
			}
		}
	}
	assert.True(t, promoted)
	assert.Equal(t, quest.StatusInProgress, f.store.Read().Quests["q2"].Status)
}

func TestUpdates_EncounterDeltaActivatesOrchestrator(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Join("p-alice", "Alice", "Alice"))

	f.pipeline.mu.Lock()
	f.pipeline.deltas = []*game.Delta{{
		Narration: "Goblins burst from the shadows!",
		StartEncounter: &game.EncounterSetup{
			Name: "Goblin Ambush",
			NPCs: []game.NPCSpec{{Name: "Goblin", MaxHP: 7}},
		},
	}}
	f.pipeline.mu.Unlock()

	_, err := f.manager.SubmitAction(context.Background(), &game.PendingAction{
		Actor: "p-alice", Kind: game.ActionNarrate, Payload: "I open the door",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.transport.broadcastOfType(game.EventEncounterStarted)) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Combat actions now route through the orchestrator; narration is
	// rejected as not combat-legal
	require.Eventually(t, func() bool {
		_, err := f.manager.SubmitAction(context.Background(), &game.PendingAction{
			Actor: "p-alice", Kind: game.ActionNarrate, Payload: "I monologue",
		})
		return err != nil && apperr.IsInvalidArgument(err)
	}, 2*time.Second, 10*time.Millisecond)
}
