package signaling

import "encoding/json"

// Message types exchanged with the signaling server.
const (
	TypeCreateRoom   = "create-room"
	TypeRoomCreated  = "room-created"
	TypeJoinRoom     = "join-room"
	TypeRoomJoined   = "room-joined"
	TypeRoomFull     = "room-full"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeUserJoined   = "user-joined"
	TypeUserLeft     = "user-left"
	TypeError        = "error"
	TypeWelcome      = "welcome"
)

// Message is the single envelope for every C2S and S2C websocket frame.
type Message struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"roomId,omitempty"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Message      string          `json:"message,omitempty"`

	// conn is the server-side connection that sent the message.
	conn *Conn `json:"-"`
}

// IsRelayed reports whether the hub forwards this message type peer to peer.
func IsRelayed(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// MarshalJSON always writes participants on room-joined, as [] for the
// first joiner.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire Message
	if m.Type != TypeRoomJoined {
		return json.Marshal(wire(m))
	}

	participants := m.Participants
	if participants == nil {
		participants = []string{}
	}
	return json.Marshal(struct {
		wire
		Participants []string `json:"participants"`
	}{wire(m), participants})
}
