package negotiation

import (
	"encoding/json"
	"time"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

const envelopeTranscript = "transcript"

// Envelope is one transcript entry as sent over the data channel.
type Envelope struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

// EncodeTranscript serializes a transcript entry for the peer.
func EncodeTranscript(id, text string, isFinal bool, ts time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      envelopeTranscript,
		ID:        id,
		Text:      text,
		IsFinal:   isFinal,
		Timestamp: ts,
	})
}

// DecodeEnvelope parses a frame received from the peer.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, callerr.Wrap("decode envelope", callerr.ErrUnexpectedSignal, err.Error())
	}
	if env.Type != envelopeTranscript {
		return Envelope{}, callerr.Wrap("decode envelope", callerr.ErrUnexpectedSignal, env.Type)
	}
	if env.ID == "" {
		return Envelope{}, callerr.Wrap("decode envelope", callerr.ErrUnexpectedSignal, "missing id")
	}
	return env, nil
}
