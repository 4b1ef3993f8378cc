package call

import (
	"github.com/BioHazard786/Warptalk/internal/negotiation"
	"github.com/BioHazard786/Warptalk/internal/transcript"
)

type UpdateKind int

const (
	UpdateRoomCreated UpdateKind = iota
	UpdateRoomJoined
	UpdatePeerJoined
	UpdatePeerLeft
	UpdateState
	UpdateTranscript
	UpdateError
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateRoomCreated:
		return "room-created"
	case UpdateRoomJoined:
		return "room-joined"
	case UpdatePeerJoined:
		return "peer-joined"
	case UpdatePeerLeft:
		return "peer-left"
	case UpdateState:
		return "state"
	case UpdateTranscript:
		return "transcript"
	case UpdateError:
		return "error"
	default:
		return "unknown"
	}
}

// Update is something the UI should react to. Only the fields relevant to
// Kind are set.
type Update struct {
	Kind         UpdateKind
	RoomID       string
	UserID       string
	Participants []string
	State        negotiation.State
	Entry        transcript.Entry
	Err          error
}
