// Package relay is the signaling server. It tracks room membership and
// shuttles negotiation and chat frames between the members of a room.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/marymwortman-lang/PureConnect/internal/names"
	"github.com/marymwortman-lang/PureConnect/internal/protocol"
	"github.com/marymwortman-lang/PureConnect/internal/registry"
)

type inbound struct {
	client *Client
	env    protocol.Envelope
}

// Hub owns all room state. Every registry mutation happens on the Run
// goroutine; the registry's own lock only serves readers such as /rooms.
type Hub struct {
	registry *registry.Registry
	log      *slog.Logger

	// clients maps participant ids to live connections.
	clients map[string]*Client

	registerCh   chan *Client
	unregisterCh chan *Client
	inboundCh    chan inbound

	done chan struct{}
}

// NewHub creates a Hub on top of reg. A nil reg gets an in-memory one.
func NewHub(reg *registry.Registry, logger *slog.Logger) *Hub {
	if reg == nil {
		reg = registry.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:     reg,
		log:          logger,
		clients:      make(map[string]*Client),
		registerCh:   make(chan *Client),
		unregisterCh: make(chan *Client),
		inboundCh:    make(chan inbound),
		done:         make(chan struct{}),
	}
}

// Registry exposes the room registry for read-only views.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Run is the hub's event loop. It returns when ctx is cancelled, after
// closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, c := range h.clients {
			h.drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.registerCh:
			h.clients[c.ID] = c
			c.log.Debug("client registered", "remote", c.conn.RemoteAddr())

		case c := <-h.unregisterCh:
			if _, ok := h.clients[c.ID]; !ok {
				continue
			}
			h.drop(c)
			c.log.Debug("client unregistered")

		case in := <-h.inboundCh:
			h.handle(in.client, in.env)
		}
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.registerCh <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterCh <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(in inbound) bool {
	select {
	case h.inboundCh <- in:
		return true
	case <-h.done:
		return false
	}
}

// drop removes c from its room and from the hub and closes its queue.
func (h *Hub) drop(c *Client) {
	h.leaveRoom(c)
	delete(h.clients, c.ID)
	close(c.send)
}

func (h *Hub) handle(c *Client, env protocol.Envelope) {
	switch m := env.(type) {
	case protocol.Join:
		h.join(c, m)

	case protocol.Leave:
		if room, _ := h.registry.RoomOf(c.ID); room != m.Room {
			c.log.Debug("leave for a room the client is not in", "room", m.Room)
			return
		}
		h.leaveRoom(c)

	case protocol.Chat:
		if !h.member(c, m.Room) {
			return
		}
		h.chat(c, m)

	case protocol.Offer:
		if h.member(c, m.Room) {
			h.forward(c, protocol.TypeOffer, m.Room, m.Payload)
		}
	case protocol.Answer:
		if h.member(c, m.Room) {
			h.forward(c, protocol.TypeAnswer, m.Room, m.Payload)
		}
	case protocol.Candidate:
		if h.member(c, m.Room) {
			h.forward(c, protocol.TypeICECandidate, m.Room, m.Payload)
		}

	default:
		c.log.Warn("dropping server-bound message of unexpected kind", "type", env.Kind())
	}
}

func (h *Hub) join(c *Client, m protocol.Join) {
	current, inRoom := h.registry.RoomOf(c.ID)
	if inRoom && current == m.Room {
		// Already here. Refresh the client's view and nothing else.
		h.send(c, protocol.NewJoined(c.ID, h.wirePeers(m.Room, c.ID)))
		return
	}

	name := m.UserName
	if name == "" {
		name = names.GuestName()
	}

	// A switch into a full room leaves the client where it was.
	if inRoom && len(h.registry.Members(m.Room)) >= registry.MaxParticipants {
		c.log.Info("join rejected", "room", m.Room, "err", registry.ErrRoomFull)
		h.send(c, protocol.NewError(protocol.ReasonRoomFull))
		return
	}
	h.leaveRoom(c)

	peers, err := h.registry.Join(m.Room, registry.Participant{ID: c.ID, UserName: name})
	if err != nil {
		c.log.Info("join rejected", "room", m.Room, "err", err)
		reason := err.Error()
		if errors.Is(err, registry.ErrRoomFull) {
			reason = protocol.ReasonRoomFull
		}
		h.send(c, protocol.NewError(reason))
		return
	}

	c.name = name
	c.log.Info("joined room", "room", m.Room, "userName", name, "peers", len(peers))

	h.send(c, protocol.NewJoined(c.ID, toWire(peers)))
	notice := protocol.NewParticipantJoined(protocol.Participant{ID: c.ID, UserName: name})
	for _, p := range peers {
		h.sendTo(p.ID, notice)
	}
}

// leaveRoom removes c from its current room, if any, and tells whoever is
// left.
func (h *Hub) leaveRoom(c *Client) {
	room, ok := h.registry.RoomOf(c.ID)
	if !ok {
		return
	}

	remaining, ok := h.registry.Leave(room, c.ID)
	if !ok {
		return
	}
	c.log.Info("left room", "room", room, "remaining", len(remaining))

	notice := protocol.NewParticipantLeft(protocol.Participant{ID: c.ID, UserName: c.name})
	for _, p := range remaining {
		h.sendTo(p.ID, notice)
	}
}

func (h *Hub) member(c *Client, room string) bool {
	if h.registry.Contains(room, c.ID) {
		return true
	}
	c.log.Debug("message for a room the client is not in", "room", room)
	h.send(c, protocol.NewError(protocol.ReasonNotInRoom))
	return false
}

// chat fans the message out to every member, the sender included, with the
// sender's registered name stamped over anything the client claimed.
func (h *Hub) chat(c *Client, m protocol.Chat) {
	p := m.ChatPayload
	p.Sender = c.name
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		c.log.Error("encoding chat payload", "err", err)
		return
	}

	out := &protocol.Message{Type: protocol.TypeChatMessage, Room: m.Room, Payload: payload}
	for _, member := range h.registry.Members(m.Room) {
		h.sendTo(member.ID, out)
	}
}

// forward relays a negotiation frame to every other member. The payload is
// passed through untouched.
func (h *Hub) forward(c *Client, msgType, room string, payload json.RawMessage) {
	out := &protocol.Message{
		Type:       msgType,
		Room:       room,
		Payload:    payload,
		SenderName: c.name,
		SenderID:   c.ID,
	}
	for _, member := range h.registry.Members(room) {
		if member.ID == c.ID {
			continue
		}
		h.sendTo(member.ID, out)
	}
}

func (h *Hub) sendTo(id string, m *protocol.Message) {
	c, ok := h.clients[id]
	if !ok {
		h.log.Warn("dropping message for unknown participant", "participant", id, "type", m.Type)
		return
	}
	h.send(c, m)
}

// send queues m without blocking. A full queue loses the frame.
func (h *Hub) send(c *Client, m *protocol.Message) {
	select {
	case c.send <- m:
	default:
		c.log.Warn("send buffer full, dropping message", "type", m.Type)
	}
}

func (h *Hub) wirePeers(room, self string) []protocol.Participant {
	var peers []registry.Participant
	for _, p := range h.registry.Members(room) {
		if p.ID != self {
			peers = append(peers, p)
		}
	}
	return toWire(peers)
}

func toWire(members []registry.Participant) []protocol.Participant {
	out := make([]protocol.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, protocol.Participant{ID: p.ID, UserName: p.UserName})
	}
	return out
}
