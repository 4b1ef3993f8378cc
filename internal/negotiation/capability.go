package negotiation

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Constraints are the capture options requested for the microphone.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// VoiceConstraints is what every call asks for.
var VoiceConstraints = Constraints{
	EchoCancellation: true,
	NoiseSuppression: true,
	AutoGainControl:  true,
}

// MediaCapture acquires local audio. Acquire may block on user consent.
type MediaCapture interface {
	Acquire(ctx context.Context, c Constraints) (LocalMedia, error)
}

// LocalMedia is an acquired audio source owned by the controller.
type LocalMedia interface {
	SetMuted(muted bool)
	Close() error
}

// RemoteMedia is the peer's track. The controller does not own it.
type RemoteMedia interface {
	ID() string
	StreamID() string
}

// PeerLink is one peer connection. All methods are called from the
// controller goroutine; the link reports back through the post function it
// was created with.
type PeerLink interface {
	AttachMedia(m LocalMedia) error
	OpenDataChannel(label string) error

	// CreateOffer and CreateAnswer also apply the result as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)

	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	Send(data []byte) error
	Close() error
}

// LinkFactory creates peer links.
type LinkFactory interface {
	NewLink(post func(Event)) (PeerLink, error)
}

// Signaler relays negotiation messages to a participant in a room.
type Signaler interface {
	Relay(msgType, roomID, targetUserID string, payload any) error
}
