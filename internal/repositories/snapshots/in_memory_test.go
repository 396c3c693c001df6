package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/domain/combat"
	"github.com/loreforge/loreforge/internal/domain/game"
	"github.com/loreforge/loreforge/internal/domain/quest"
	apperr "github.com/loreforge/loreforge/internal/errors"
)

func richState() *game.State {
	s := game.NewState("sess-1")
	s.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	s.Characters["Alice"] = &game.Character{
		Name:      "Alice",
		OwnerID:   "p-alice",
		HitPoints: game.ResourcePool{Current: 8, Max: 12},
		Pools:     map[string]game.ResourcePool{"mana": {Current: 2, Max: 5}},
		Flags:     map[string]bool{"blessed": true},
		Inventory: []string{"torch"},
	}
	s.Containers["chest-1"] = &game.Container{ID: "chest-1", Name: "Old chest", Items: []string{"rope"}}
	s.Quests["q1"] = &quest.Record{
		ID: "q1", Title: "Clear the mine", Status: quest.StatusInProgress,
		SideQuests: []*quest.Record{{ID: "q1-a", Title: "Find the foreman", Status: quest.StatusNotStarted}},
	}
	enc := combat.NewEncounter("enc-1", "sess-1", "Goblin Ambush")
	enc.StartedAt = s.UpdatedAt
	enc.AddCombatant(&combat.Combatant{
		ID: "npc-Goblin", Name: "Goblin", Type: combat.CombatantTypeNPC,
		CurrentHP: 7, MaxHP: 7, AIControlled: true,
	})
	s.Encounter = enc
	s.AppendLog("The party reaches the mine entrance.")
	return s
}

func TestInMemoryRepository_RoundTrip(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	original := richState()

	require.NoError(t, repo.Save(ctx, "sess-1", original))

	loaded, err := repo.Load(ctx, "sess-1")
	require.NoError(t, err)

	// The reloaded state is structurally identical to what was saved
	assert.Equal(t, original.SessionID, loaded.SessionID)
	assert.Equal(t, original.Characters, loaded.Characters)
	assert.Equal(t, original.Quests, loaded.Quests)
	assert.Equal(t, original.Containers, loaded.Containers)
	assert.Equal(t, original.Log, loaded.Log)
	require.NotNil(t, loaded.Encounter)
	assert.Equal(t, original.Encounter.ID, loaded.Encounter.ID)
	assert.Equal(t, original.Encounter.Combatants, loaded.Encounter.Combatants)
}

func TestInMemoryRepository_SaveIsolatesCaller(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	original := richState()

	require.NoError(t, repo.Save(ctx, "sess-1", original))
	original.Characters["Alice"].HitPoints.Current = 1

	loaded, err := repo.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Characters["Alice"].HitPoints.Current)
}

func TestInMemoryRepository_LoadMissing(t *testing.T) {
	repo := NewInMemoryRepository()

	_, err := repo.Load(context.Background(), "nope")

	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestInMemoryRepository_Delete(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "sess-1", richState()))
	require.NoError(t, repo.Delete(ctx, "sess-1"))

	_, err := repo.Load(ctx, "sess-1")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestInMemoryRepository_Validation(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	assert.Error(t, repo.Save(ctx, "", richState()))
	assert.Error(t, repo.Save(ctx, "sess-1", nil))
	_, err := repo.Load(ctx, "")
	assert.Error(t, err)
}
