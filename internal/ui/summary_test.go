package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warptalk/internal/transcript"
)

func TestTranscriptTable(t *testing.T) {
	out := TranscriptTable([]transcript.Entry{
		{ID: "a", Speaker: transcript.SpeakerLocal, Text: "おはよう", IsFinal: true, Timestamp: time.Now()},
		{ID: "b", Speaker: transcript.SpeakerRemote, Text: "still talking", Timestamp: time.Now()},
	})

	require.Contains(t, out, "You")
	require.Contains(t, out, "Peer")
	require.Contains(t, out, "おはよう")
	require.Contains(t, out, "still talking …")

	require.Contains(t, TranscriptTable(nil), "nothing was said")
}

func TestCallSummaryView(t *testing.T) {
	out := CallSummaryView(CallSummary{
		RoomID:   "ab12cd34",
		Duration: 95 * time.Second,
		Entries: []transcript.Entry{
			{Speaker: transcript.SpeakerLocal},
			{Speaker: transcript.SpeakerRemote},
			{Speaker: transcript.SpeakerRemote},
		},
	})
	require.Contains(t, out, "ab12cd34")
	require.Contains(t, out, "1m35s")
	require.Contains(t, out, "Peer segments")
}
