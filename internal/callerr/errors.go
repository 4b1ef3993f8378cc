package callerr

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound                = errors.New("room not found")
	ErrRoomFull                    = errors.New("room is full")
	ErrMediaAcquisitionFailed      = errors.New("media acquisition failed")
	ErrNegotiationTransport        = errors.New("negotiation transport error")
	ErrRecognitionTransient        = errors.New("transient recognition error")
	ErrRecognitionRestartExhausted = errors.New("speech recognition restart attempts exhausted")
	ErrSignaling                   = errors.New("signaling server error")
	ErrNotConnected                = errors.New("not connected to signaling server")
	ErrChannelNotOpen              = errors.New("data channel not open")
	ErrUnexpectedSignal            = errors.New("unexpected signal type")
)

// Error scopes a taxonomy error to the operation that produced it.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func Wrap(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// FromServer maps an error message received over signaling back onto the taxonomy.
func FromServer(op, message string) *Error {
	switch message {
	case ErrRoomNotFound.Error():
		return New(op, ErrRoomNotFound)
	case ErrRoomFull.Error():
		return New(op, ErrRoomFull)
	default:
		return Wrap(op, ErrSignaling, message)
	}
}
