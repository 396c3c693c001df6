package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
)

type fakeGateway struct {
	joins   []string
	leaves  []string
	actions []*game.PendingAction
	joinErr error
	subErr  error
}

func (g *fakeGateway) Join(participantID, name, characterName string) error {
	g.joins = append(g.joins, participantID+"/"+name+"/"+characterName)
	return g.joinErr
}

func (g *fakeGateway) Leave(participantID string) {
	g.leaves = append(g.leaves, participantID)
}

func (g *fakeGateway) SubmitAction(_ context.Context, action *game.PendingAction) (*game.State, error) {
	g.actions = append(g.actions, action)
	if g.subErr != nil {
		return nil, g.subErr
	}
	return game.NewState("sess-1"), nil
}

func newTestClient(h *Hub) *Client {
	return &Client{ID: "p-1", hub: h, send: make(chan []byte, 8)}
}

func drainError(t *testing.T, c *Client) *ErrorMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ErrorMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	default:
		return nil
	}
}

func TestHandleInbound_Join(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHub(&HubConfig{Gateway: gw})
	c := newTestClient(h)

	h.handleInbound(c, []byte(`{"type": "join", "name": "Alice", "character": "Alice"}`))

	require.Len(t, gw.joins, 1)
	assert.Equal(t, "p-1/Alice/Alice", gw.joins[0])
	assert.Nil(t, drainError(t, c))
}

func TestHandleInbound_JoinRejected(t *testing.T) {
	gw := &fakeGateway{joinErr: apperr.AlreadyExists("participant is already in the session")}
	h := NewHub(&HubConfig{Gateway: gw})
	c := newTestClient(h)

	h.handleInbound(c, []byte(`{"type": "join", "name": "Alice", "character": "Alice"}`))

	msg := drainError(t, c)
	require.NotNil(t, msg)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, string(apperr.CodeAlreadyExists), msg.Code)
}

func TestHandleInbound_Action(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHub(&HubConfig{Gateway: gw})
	c := newTestClient(h)

	h.handleInbound(c, []byte(`{"type": "action", "kind": "narrate", "payload": "I look around"}`))

	require.Len(t, gw.actions, 1)
	assert.Equal(t, "p-1", gw.actions[0].Actor)
	assert.Equal(t, game.ActionNarrate, gw.actions[0].Kind)
	assert.Equal(t, "I look around", gw.actions[0].Payload)
}

func TestHandleInbound_ActionRejected(t *testing.T) {
	gw := &fakeGateway{subErr: apperr.NotYourTurn("p-1")}
	h := NewHub(&HubConfig{Gateway: gw})
	c := newTestClient(h)

	h.handleInbound(c, []byte(`{"type": "action", "kind": "narrate", "payload": "I act"}`))

	msg := drainError(t, c)
	require.NotNil(t, msg)
	assert.Equal(t, string(apperr.CodeNotYourTurn), msg.Code)
}

func TestHandleInbound_Leave(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHub(&HubConfig{Gateway: gw})
	c := newTestClient(h)

	h.handleInbound(c, []byte(`{"type": "leave"}`))

	assert.Equal(t, []string{"p-1"}, gw.leaves)
}

func TestHandleInbound_Malformed(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHub(&HubConfig{Gateway: gw})
	c := newTestClient(h)

	h.handleInbound(c, []byte(`{{`))
	msg := drainError(t, c)
	require.NotNil(t, msg)
	assert.Equal(t, string(apperr.CodeInvalidArgument), msg.Code)

	h.handleInbound(c, []byte(`{"type": "dance"}`))
	msg = drainError(t, c)
	require.NotNil(t, msg)
	assert.Equal(t, string(apperr.CodeInvalidArgument), msg.Code)
}

func TestBroadcastAndSendTo(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHub(&HubConfig{Gateway: gw})
	a := &Client{ID: "p-a", hub: h, send: make(chan []byte, 1)}
	b := &Client{ID: "p-b", hub: h, send: make(chan []byte, 1)}
	h.register(a)
	h.register(b)

	h.Broadcast([]byte(`{"type": "state_delta"}`))
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)

	h.SendTo("p-a", []byte(`{"type": "state_snapshot"}`))
	assert.Len(t, a.send, 1) // Queue full, dropped rather than blocking
	<-a.send
	h.SendTo("p-a", []byte(`{"type": "state_snapshot"}`))
	assert.Len(t, a.send, 1)

	// Unknown target is a no-op
	h.SendTo("p-ghost", []byte(`{}`))
}
