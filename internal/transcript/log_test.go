package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func remote(id, text string, final bool) Entry {
	return Entry{ID: id, Speaker: SpeakerRemote, Text: text, IsFinal: final, Timestamp: time.Unix(1700000000, 0)}
}

func TestLog_RemoteReplayIsIdempotent(t *testing.T) {
	l := NewLog()

	require.True(t, l.Upsert(remote("r1", "こんにちは", false)))
	require.False(t, l.Upsert(remote("r1", "こんにちは", false)))
	require.True(t, l.Upsert(remote("r1", "こんにちは世界", true)))
	require.False(t, l.Upsert(remote("r1", "こんにちは世界", true)))

	entries := l.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "こんにちは世界", entries[0].Text)
	require.True(t, entries[0].IsFinal)
}

func TestLog_FinalEntriesAreImmutable(t *testing.T) {
	l := NewLog()
	l.Upsert(remote("r1", "done", true))

	require.False(t, l.Upsert(remote("r1", "rewritten", false)))
	e, ok := l.Get(SpeakerRemote, "r1")
	require.True(t, ok)
	require.Equal(t, "done", e.Text)
	require.True(t, e.IsFinal)
}

func TestLog_KeepsInsertionOrderAndSpeakers(t *testing.T) {
	l := NewLog()
	l.Upsert(Entry{ID: "x", Speaker: SpeakerLocal, Text: "mine"})
	l.Upsert(remote("x", "theirs", false))
	l.Upsert(Entry{ID: "y", Speaker: SpeakerLocal, Text: "again"})
	l.Upsert(Entry{ID: "x", Speaker: SpeakerLocal, Text: "mine, edited"})

	entries := l.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "mine, edited", entries[0].Text)
	require.Equal(t, SpeakerRemote, entries[1].Speaker)
	require.Equal(t, "again", entries[2].Text)
}

func TestLog_WatchAndClear(t *testing.T) {
	l := NewLog()

	var seen []string
	unwatch := l.Watch(func(e Entry) { seen = append(seen, e.Text) })

	l.Upsert(remote("a", "one", false))
	l.Upsert(remote("a", "one", false))
	l.Upsert(remote("a", "one two", true))
	require.Equal(t, []string{"one", "one two"}, seen)

	unwatch()
	l.Upsert(remote("b", "three", false))
	require.Len(t, seen, 2)

	l.Clear()
	require.Zero(t, l.Len())
	_, ok := l.Get(SpeakerRemote, "a")
	require.False(t, ok)

	// Cleared ids can be written again.
	require.True(t, l.Upsert(remote("a", "fresh", false)))
}
