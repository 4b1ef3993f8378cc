package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/rooms"
)

// Hub is the signaling relay. A single goroutine (Run) owns the connection
// table; room membership lives in the injected store.
type Hub struct {
	store rooms.Store

	// conns maps participant ids to live connections.
	conns map[string]*Conn

	register   chan *Conn
	unregister chan *Conn
	inbound    chan *Message

	done chan struct{}
}

// NewHub creates a hub backed by store.
func NewHub(store rooms.Store) *Hub {
	return &Hub{
		store:      store,
		conns:      make(map[string]*Conn),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		inbound:    make(chan *Message),
		done:       make(chan struct{}),
	}
}

// Store returns the room store the hub writes through.
func (h *Hub) Store() rooms.Store {
	return h.store
}

// Run processes registrations and messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, c := range h.conns {
				close(c.send)
			}
			h.conns = nil
			return

		case c := <-h.register:
			h.conns[c.ID] = c
			slog.Info("client registered", "user_id", c.ID, "remote", c.ws.RemoteAddr().String())
			h.send(c, &Message{Type: TypeWelcome, UserID: c.ID})

		case c := <-h.unregister:
			if _, ok := h.conns[c.ID]; !ok {
				continue
			}
			slog.Info("client unregistered", "user_id", c.ID)
			h.drop(ctx, c)
			delete(h.conns, c.ID)
			close(c.send)

		case msg := <-h.inbound:
			h.handle(ctx, msg)
		}
	}
}

func (h *Hub) handle(ctx context.Context, msg *Message) {
	c := msg.conn
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	slog.Debug("message received", "type", msg.Type, "user_id", c.ID)

	switch msg.Type {
	case TypeCreateRoom:
		id, err := h.store.Create(ctx)
		if err != nil {
			slog.Error("room create failed", "err", err)
			h.sendError(c, err)
			return
		}
		h.send(c, &Message{Type: TypeRoomCreated, RoomID: id})

	case TypeJoinRoom:
		h.join(ctx, c, msg.RoomID)

	case TypeLeaveRoom:
		roomID := msg.RoomID
		if roomID == "" {
			roomID = c.roomID
		}
		h.leave(ctx, c, roomID)

	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.relay(c, msg)

	default:
		slog.Warn("unknown message type", "type", msg.Type, "user_id", c.ID)
	}
}

func (h *Hub) join(ctx context.Context, c *Conn, roomID string) {
	// One room per connection.
	if c.roomID != "" && c.roomID != roomID {
		h.leave(ctx, c, c.roomID)
	}

	res, err := h.store.Join(ctx, roomID, c.ID)
	if err != nil {
		if errors.Is(err, callerr.ErrRoomFull) {
			slog.Info("room join rejected", "room_id", roomID, "user_id", c.ID, "reason", "full")
			h.send(c, &Message{Type: TypeRoomFull})
			return
		}
		slog.Info("room join rejected", "room_id", roomID, "user_id", c.ID, "err", err)
		h.sendError(c, err)
		return
	}

	c.roomID = roomID
	slog.Info("client joined room", "room_id", roomID, "user_id", c.ID, "existing", len(res.Existing))

	existing := res.Existing
	if existing == nil {
		existing = []string{}
	}
	h.send(c, &Message{Type: TypeRoomJoined, RoomID: roomID, Participants: existing})

	if !res.Added {
		return
	}
	for _, id := range res.Existing {
		if peer, ok := h.conns[id]; ok {
			h.send(peer, &Message{Type: TypeUserJoined, RoomID: roomID, UserID: c.ID})
		}
	}
}

func (h *Hub) leave(ctx context.Context, c *Conn, roomID string) {
	if roomID == "" {
		return
	}
	res, err := h.store.Leave(ctx, roomID, c.ID)
	if err != nil {
		slog.Error("room leave failed", "room_id", roomID, "user_id", c.ID, "err", err)
		return
	}
	if c.roomID == roomID {
		c.roomID = ""
	}
	h.notifyLeft(c, res)
}

// drop removes a disconnected connection from whatever room it occupied.
func (h *Hub) drop(ctx context.Context, c *Conn) {
	res, err := h.store.Drop(ctx, c.ID)
	if err != nil {
		slog.Error("participant drop failed", "user_id", c.ID, "err", err)
		return
	}
	c.roomID = ""
	h.notifyLeft(c, res)
}

func (h *Hub) notifyLeft(c *Conn, res rooms.LeaveResult) {
	if !res.Removed {
		return
	}
	slog.Info("client left room", "room_id", res.RoomID, "user_id", c.ID, "remaining", len(res.Remaining))
	for _, id := range res.Remaining {
		if peer, ok := h.conns[id]; ok {
			h.send(peer, &Message{Type: TypeUserLeft, RoomID: res.RoomID, UserID: c.ID})
		}
	}
}

// relay forwards an SDP or ICE message to its target, stamped with the
// sender id. Messages to unknown targets, or across rooms, are dropped.
func (h *Hub) relay(c *Conn, msg *Message) {
	target, ok := h.conns[msg.TargetUserID]
	if !ok {
		slog.Debug("relay dropped", "type", msg.Type, "user_id", c.ID, "target", msg.TargetUserID, "reason", "unknown target")
		return
	}
	if c.roomID == "" || target.roomID != c.roomID || (msg.RoomID != "" && msg.RoomID != c.roomID) {
		slog.Debug("relay dropped", "type", msg.Type, "user_id", c.ID, "target", msg.TargetUserID, "reason", "not in same room")
		return
	}

	slog.Debug("relaying", "type", msg.Type, "from", c.ID, "to", target.ID, "room_id", c.roomID)
	h.send(target, &Message{
		Type:    msg.Type,
		RoomID:  c.roomID,
		UserID:  c.ID,
		Payload: msg.Payload,
	})
}

func (h *Hub) sendError(c *Conn, err error) {
	text := err.Error()
	var ce *callerr.Error
	if errors.As(err, &ce) {
		text = ce.Err.Error()
	}
	h.send(c, &Message{Type: TypeError, Message: text})
}

// send never blocks the hub; a client too slow to drain its buffer loses
// the message.
func (h *Hub) send(c *Conn, msg *Message) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("send buffer full, dropping message", "user_id", c.ID, "type", msg.Type)
	}
}
