package quest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/domain/quest"
	apperr "github.com/loreforge/loreforge/internal/errors"
)

func TestNext_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current quest.Status
		event   quest.Event
		want    quest.Status
	}{
		{"activate from not-started", quest.StatusNotStarted, quest.EventActivate, quest.StatusInProgress},
		{"reject from not-started", quest.StatusNotStarted, quest.EventReject, quest.StatusRejected},
		{"activate from available", quest.StatusAvailable, quest.EventActivate, quest.StatusInProgress},
		{"complete from in-progress", quest.StatusInProgress, quest.EventComplete, quest.StatusCompleted},
		{"cancel from in-progress", quest.StatusInProgress, quest.EventCancel, quest.StatusCancelled},
		{"remove from rejected", quest.StatusRejected, quest.EventRemove, quest.StatusRemoved},
		{"remove from cancelled", quest.StatusCancelled, quest.EventRemove, quest.StatusRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := quest.Next(tt.current, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current quest.Status
		event   quest.Event
	}{
		{"complete from not-started", quest.StatusNotStarted, quest.EventComplete},
		{"activate from in-progress", quest.StatusInProgress, quest.EventActivate},
		{"activate from completed", quest.StatusCompleted, quest.EventActivate},
		{"cancel from completed", quest.StatusCompleted, quest.EventCancel},
		{"remove from in-progress", quest.StatusInProgress, quest.EventRemove},
		{"reject from available", quest.StatusAvailable, quest.EventReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := quest.Next(tt.current, tt.event)
			require.Error(t, err)
			assert.True(t, apperr.IsInvalidTransition(err))
			assert.Equal(t, tt.current, got)
		})
	}
}

func TestRecord_Apply_ErrorLeavesStatusUnchanged(t *testing.T) {
	rec := &quest.Record{ID: "q1", Title: "Clear the mine", Status: quest.StatusCompleted}

	err := rec.Apply(quest.EventActivate)

	require.Error(t, err)
	assert.Equal(t, quest.StatusCompleted, rec.Status)
}

func TestLedger_Apply_SideQuest(t *testing.T) {
	ledger := quest.Ledger{
		"q1": {
			ID:     "q1",
			Title:  "Clear the mine",
			Status: quest.StatusInProgress,
			SideQuests: []*quest.Record{
				{ID: "q1-a", Title: "Find the foreman", Status: quest.StatusNotStarted},
			},
		},
	}

	status, err := ledger.Apply("q1-a", quest.EventActivate)

	require.NoError(t, err)
	assert.Equal(t, quest.StatusInProgress, status)
	assert.Equal(t, quest.StatusInProgress, ledger.Find("q1-a").Status)
	// Parent is untouched by side-quest transitions
	assert.Equal(t, quest.StatusInProgress, ledger["q1"].Status)
}

func TestLedger_Apply_RemoveDeletesRecord(t *testing.T) {
	ledger := quest.Ledger{
		"q1": {ID: "q1", Title: "Clear the mine", Status: quest.StatusRejected},
	}

	status, err := ledger.Apply("q1", quest.EventRemove)

	require.NoError(t, err)
	assert.Equal(t, quest.StatusRemoved, status)
	assert.Nil(t, ledger.Find("q1"))
	assert.Empty(t, ledger)
}

func TestLedger_Apply_UnknownQuest(t *testing.T) {
	ledger := quest.Ledger{}

	_, err := ledger.Apply("nope", quest.EventActivate)

	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestLedger_AutoActivate(t *testing.T) {
	t.Run("promotes first not-started by id when nothing active", func(t *testing.T) {
		ledger := quest.Ledger{
			"q2": {ID: "q2", Status: quest.StatusNotStarted},
			"q1": {ID: "q1", Status: quest.StatusNotStarted},
			"q3": {ID: "q3", Status: quest.StatusCompleted},
		}

		rec := ledger.AutoActivate()

		require.NotNil(t, rec)
		assert.Equal(t, "q1", rec.ID)
		assert.Equal(t, quest.StatusInProgress, rec.Status)
		assert.Equal(t, quest.StatusNotStarted, ledger["q2"].Status)
	})

	t.Run("no-op while a quest is in progress", func(t *testing.T) {
		ledger := quest.Ledger{
			"q1": {ID: "q1", Status: quest.StatusInProgress},
			"q2": {ID: "q2", Status: quest.StatusNotStarted},
		}

		assert.Nil(t, ledger.AutoActivate())
	})

	t.Run("no-op while a quest is available", func(t *testing.T) {
		ledger := quest.Ledger{
			"q1": {ID: "q1", Status: quest.StatusAvailable},
			"q2": {ID: "q2", Status: quest.StatusNotStarted},
		}

		assert.Nil(t, ledger.AutoActivate())
	})

	t.Run("nothing to activate", func(t *testing.T) {
		ledger := quest.Ledger{
			"q1": {ID: "q1", Status: quest.StatusCompleted},
		}

		assert.Nil(t, ledger.AutoActivate())
	})
}

func TestLedger_Cleanup(t *testing.T) {
	ledger := quest.Ledger{
		"q1": {ID: "q1", Status: quest.StatusInProgress, SideQuests: []*quest.Record{
			{ID: "q1-a", Status: quest.StatusRejected},
			{ID: "q1-b", Status: quest.StatusNotStarted},
		}},
		"q2": {ID: "q2", Status: quest.StatusCancelled},
		"q3": {ID: "q3", Status: quest.StatusCompleted},
	}

	removed := ledger.Cleanup()

	assert.Equal(t, []string{"q1-a", "q2"}, removed)
	assert.Nil(t, ledger.Find("q2"))
	assert.Nil(t, ledger.Find("q1-a"))
	require.NotNil(t, ledger.Find("q1"))
	assert.Len(t, ledger["q1"].SideQuests, 1)
	assert.Equal(t, "q1-b", ledger["q1"].SideQuests[0].ID)
	assert.NotNil(t, ledger.Find("q3"))
}

func TestLedger_Clone_IsDeep(t *testing.T) {
	ledger := quest.Ledger{
		"q1": {ID: "q1", Status: quest.StatusInProgress, SideQuests: []*quest.Record{
			{ID: "q1-a", Status: quest.StatusNotStarted},
		}},
	}

	clone := ledger.Clone()
	clone["q1"].Status = quest.StatusCompleted
	clone["q1"].SideQuests[0].Status = quest.StatusInProgress

	assert.Equal(t, quest.StatusInProgress, ledger["q1"].Status)
	assert.Equal(t, quest.StatusNotStarted, ledger["q1"].SideQuests[0].Status)
}
