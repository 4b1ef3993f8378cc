package negotiation

import (
	"github.com/pion/webrtc/v4"
)

// Event is an input to the Controller. Signaling messages, user actions and
// platform callbacks are all delivered as events and applied one at a time.
type Event interface {
	event()
}

// RoomJoined tells the controller which room relayed messages belong to.
type RoomJoined struct{ RoomID string }

// StartCall acquires local media and offers to a known peer.
type StartCall struct{}

// PeerJoined reports a participant who joined after us.
type PeerJoined struct{ UserID string }

// PeerLeft reports a participant who left or disconnected.
type PeerLeft struct{ UserID string }

type OfferReceived struct {
	From  string
	Offer webrtc.SessionDescription
}

type AnswerReceived struct {
	From   string
	Answer webrtc.SessionDescription
}

type CandidateReceived struct {
	From      string
	Candidate webrtc.ICECandidateInit
}

// ICEStateChanged is posted by the peer link.
type ICEStateChanged struct{ State webrtc.ICEConnectionState }

// LocalCandidate is a locally gathered candidate to trickle to the peer.
type LocalCandidate struct{ Candidate webrtc.ICECandidateInit }

// RemoteTrack carries the peer's audio.
type RemoteTrack struct{ Track RemoteMedia }

type DataChannelOpened struct{}

type DataMessageReceived struct{ Data []byte }

type ToggleMute struct{}

// EndCall releases every owned resource and returns to idle.
type EndCall struct{}

// internal events

type mediaReady struct {
	call  uint64
	media LocalMedia
	err   error
}

type linkEvent struct {
	link  uint64
	inner Event
}

type sendData struct{ data []byte }

func (RoomJoined) event()          {}
func (StartCall) event()           {}
func (PeerJoined) event()          {}
func (PeerLeft) event()            {}
func (OfferReceived) event()       {}
func (AnswerReceived) event()      {}
func (CandidateReceived) event()   {}
func (ICEStateChanged) event()     {}
func (LocalCandidate) event()      {}
func (RemoteTrack) event()         {}
func (DataChannelOpened) event()   {}
func (DataMessageReceived) event() {}
func (ToggleMute) event()          {}
func (EndCall) event()             {}
func (mediaReady) event()          {}
func (linkEvent) event()           {}
func (sendData) event()            {}
