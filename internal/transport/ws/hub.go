// Package ws is the real-time transport collaborator: it delivers
// participant actions in and carries broadcast notifications out,
// independent of the coordination core.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
	"github.com/loreforge/loreforge/internal/uuid"
)

// Gateway is what the hub needs from the session manager
type Gateway interface {
	Join(participantID, name, characterName string) error
	Leave(participantID string)
	SubmitAction(ctx context.Context, action *game.PendingAction) (*game.State, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub manages active websocket connections and implements the session
// manager's Transport
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	gateway Gateway
	uuidGen uuid.Generator
	log     zerolog.Logger
}

// HubConfig holds configuration for the hub
type HubConfig struct {
	Gateway       Gateway        // Required
	UUIDGenerator uuid.Generator // Optional, will use default if nil
	Logger        zerolog.Logger
}

// NewHub creates a hub with no connections
func NewHub(cfg *HubConfig) *Hub {
	if cfg.Gateway == nil {
		panic("gateway is required")
	}

	h := &Hub{
		clients: make(map[string]*Client),
		gateway: cfg.Gateway,
		uuidGen: cfg.UUIDGenerator,
		log:     cfg.Logger,
	}
	if h.uuidGen == nil {
		h.uuidGen = uuid.NewGoogleUUIDGenerator()
	}
	return h
}

// ServeWS upgrades an HTTP request to a websocket connection and starts
// the client's pumps. Each connection gets a fresh participant id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:   h.uuidGen.New(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.log.Info().Str("participant", c.ID).Msg("connection established")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()

	// Connection loss prunes the participant; the coordinator treats an
	// active actor's loss like a timeout
	h.gateway.Leave(c.ID)
	h.log.Info().Str("participant", c.ID).Msg("connection closed")
}

// Broadcast implements session.Transport
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("participant", id).Msg("send queue full, dropping message")
		}
	}
}

// SendTo implements session.Transport
func (h *Hub) SendTo(participantID string, data []byte) {
	h.mu.RLock()
	c, ok := h.clients[participantID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c.send <- data:
	default:
		h.log.Warn().Str("participant", participantID).Msg("send queue full, dropping message")
	}
}

// handleInbound dispatches one decoded client message
func (h *Hub) handleInbound(c *Client, raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError(apperr.InvalidArgument("message is not valid JSON"))
		return
	}

	switch msg.Type {
	case "join":
		if err := h.gateway.Join(c.ID, msg.Name, msg.Character); err != nil {
			c.sendError(err)
		}
	case "action":
		action := &game.PendingAction{
			Actor:   c.ID,
			Kind:    game.ActionKind(msg.Kind),
			Payload: msg.Payload,
		}
		if _, err := h.gateway.SubmitAction(context.Background(), action); err != nil {
			c.sendError(err)
		}
	case "leave":
		h.gateway.Leave(c.ID)
	default:
		c.sendError(apperr.InvalidArgumentf("unknown message type %q", msg.Type))
	}
}
