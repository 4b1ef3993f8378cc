package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

func TestEnvelope_WireShape(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	data, err := EncodeTranscript("id-1", "おはよう", false, ts)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"transcript","id":"id-1","text":"おはよう","isFinal":false,"timestamp":"2025-01-02T03:04:05.000006Z"}`, string(data))

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, "id-1", env.ID)
	require.True(t, env.Timestamp.Equal(ts))
}

func TestDecodeEnvelope_Rejects(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"chat","id":"x","text":"hi"}`,
		`{"type":"transcript","text":"no id"}`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		require.ErrorIs(t, err, callerr.ErrUnexpectedSignal, raw)
	}
}

func TestSampleCapture_OpenFailure(t *testing.T) {
	capture := &SampleCapture{Open: func(context.Context, Constraints) (SampleSource, error) {
		return nil, errors.New("no input device")
	}}
	_, err := capture.Acquire(context.Background(), VoiceConstraints)
	require.ErrorIs(t, err, callerr.ErrMediaAcquisitionFailed)
}
