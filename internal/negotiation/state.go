package negotiation

import "github.com/pion/webrtc/v4"

// State is the call state shown to the user.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// stateForICE maps an ICE connection state onto the call state. ok is false
// for ICE states that do not move the call.
func stateForICE(s webrtc.ICEConnectionState) (State, bool) {
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return StateConnected, true
	case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		return StateDisconnected, true
	}
	return 0, false
}
