package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

// Event is a decoded server message in arrival order.
type Event struct {
	Type         string
	RoomID       string
	UserID       string
	Participants []string
	Payload      json.RawMessage

	// Err is set for room-full and error frames.
	Err error
}

// Decode unmarshals a relayed payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return callerr.Wrap("decode "+e.Type, callerr.ErrUnexpectedSignal, "empty payload")
	}
	return json.Unmarshal(e.Payload, v)
}

// Handler routes incoming signaling messages onto a single ordered channel
// and remembers the participant id the server assigned us.
type Handler struct {
	client *Client
	events chan Event

	mu     sync.RWMutex
	selfID string
	ready  chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client: client,
		events: make(chan Event, 64),
		ready:  make(chan struct{}),
	}
}

// Start routes messages until the client's incoming channel closes.
func (h *Handler) Start() {
	defer close(h.events)

	for msg := range h.client.Incoming() {
		ev := Event{
			Type:         msg.Type,
			RoomID:       msg.RoomID,
			UserID:       msg.UserID,
			Participants: msg.Participants,
			Payload:      msg.Payload,
		}

		switch msg.Type {
		case TypeWelcome:
			h.mu.Lock()
			first := h.selfID == ""
			h.selfID = msg.UserID
			h.mu.Unlock()
			if first {
				close(h.ready)
			}
			continue

		case TypeRoomFull:
			ev.Err = callerr.New("join room", callerr.ErrRoomFull)

		case TypeError:
			ev.Err = callerr.FromServer("signaling", msg.Message)

		case TypeRoomCreated, TypeRoomJoined, TypeUserJoined, TypeUserLeft,
			TypeOffer, TypeAnswer, TypeICECandidate:

		default:
			slog.Debug("ignoring unknown message", "type", msg.Type)
			continue
		}

		h.events <- ev
	}
}

// Events returns the ordered event stream. It is closed when the connection drops.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// Ready is closed once the server has told us our participant id.
func (h *Handler) Ready() <-chan struct{} {
	return h.ready
}

// SelfID returns our participant id, or "" before the welcome frame.
func (h *Handler) SelfID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.selfID
}
