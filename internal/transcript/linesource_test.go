package transcript

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recordingSink) SpeechStarted()      { r.add("start") }
func (r *recordingSink) Partial(text string) { r.add("partial:" + text) }
func (r *recordingSink) Final(text string)   { r.add("final:" + text) }
func (r *recordingSink) SegmentEnded()       { r.add("end") }

func waitDone(t *testing.T, src *LineSource) {
	t.Helper()
	select {
	case <-src.done:
	case <-time.After(2 * time.Second):
		t.Fatal("line source did not finish")
	}
}

func TestLineSource_EmitsCumulativeResults(t *testing.T) {
	sink := &recordingSink{}
	src := NewLineSource(strings.NewReader("good morning\nhow are you\n\nbye\n"), 0)
	src.Attach(sink)
	require.NoError(t, src.Start("en-US"))
	waitDone(t, src)

	require.Equal(t, []string{
		"start",
		"partial:good",
		"partial:good morning",
		"final:good morning",
		"start",
		"partial:good morning how",
		"partial:good morning how are",
		"partial:good morning how are you",
		"final:good morning how are you",
		"end",
		"start",
		"partial:bye",
		"final:bye",
	}, sink.events)
}

func TestLineSource_DropsLinesWhileStopped(t *testing.T) {
	sink := &recordingSink{}
	r, w := io.Pipe()
	src := NewLineSource(r, 0)
	src.Attach(sink)
	require.NoError(t, src.Start(""))
	require.NoError(t, src.Stop())

	_, err := io.WriteString(w, "ignored\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	waitDone(t, src)

	require.Empty(t, sink.events)
}

func TestLineSource_DrivesSegmenter(t *testing.T) {
	log := NewLog()
	src := NewLineSource(strings.NewReader("おはよう\n元気 です\n\nまた ね\n"), 0)
	seg := NewSegmenter(SegmenterConfig{
		Log:    log,
		Source: src,
		Clock:  newFakeClock(),
	})
	src.Attach(seg)

	require.NoError(t, seg.Start())
	waitDone(t, src)

	var texts []string
	for _, e := range log.Entries() {
		require.True(t, e.IsFinal)
		texts = append(texts, e.Text)
	}
	require.Equal(t, []string{"おはよう", "元気 です", "また ね"}, texts)
}
