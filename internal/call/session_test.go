package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/negotiation"
	"github.com/BioHazard786/Warptalk/internal/signaling"
	"github.com/BioHazard786/Warptalk/internal/transcript"
)

type relayed struct {
	Type, RoomID, To string
	Payload          any
}

type fakeClient struct {
	mu     sync.Mutex
	calls  []string
	relays []relayed
}

func (c *fakeClient) record(call string) error {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) CreateRoom() error            { return c.record("create") }
func (c *fakeClient) JoinRoom(roomID string) error { return c.record("join " + roomID) }
func (c *fakeClient) LeaveRoom(roomID string) error {
	return c.record("leave " + roomID)
}

func (c *fakeClient) Relay(msgType, roomID, to string, payload any) error {
	c.mu.Lock()
	c.relays = append(c.relays, relayed{msgType, roomID, to, payload})
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) called(call string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

func (c *fakeClient) find(msgType, to string) (relayed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.relays {
		if r.Type == msgType && r.To == to {
			return r, true
		}
	}
	return relayed{}, false
}

type fakeMedia struct{}

func (fakeMedia) SetMuted(bool) {}
func (fakeMedia) Close() error  { return nil }

type fakeCapture struct{}

func (fakeCapture) Acquire(context.Context, negotiation.Constraints) (negotiation.LocalMedia, error) {
	return fakeMedia{}, nil
}

type fakeLink struct {
	post func(negotiation.Event)

	mu   sync.Mutex
	sent [][]byte
}

func (l *fakeLink) AttachMedia(negotiation.LocalMedia) error { return nil }
func (l *fakeLink) OpenDataChannel(string) error             { return nil }
func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}
func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}
func (l *fakeLink) SetRemoteDescription(webrtc.SessionDescription) error { return nil }
func (l *fakeLink) AddICECandidate(webrtc.ICECandidateInit) error        { return nil }
func (l *fakeLink) Close() error                                         { return nil }

func (l *fakeLink) Send(data []byte) error {
	l.mu.Lock()
	l.sent = append(l.sent, data)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) sentTexts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, data := range l.sent {
		if env, err := negotiation.DecodeEnvelope(data); err == nil {
			out = append(out, env.Text)
		}
	}
	return out
}

type fakeLinks struct {
	mu    sync.Mutex
	links []*fakeLink
}

func (f *fakeLinks) NewLink(post func(negotiation.Event)) (negotiation.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeLink{post: post}
	f.links = append(f.links, l)
	return l, nil
}

func (f *fakeLinks) last() *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.links) == 0 {
		return nil
	}
	return f.links[len(f.links)-1]
}

type fakeSpeech struct{}

func (fakeSpeech) Start(string) error { return nil }
func (fakeSpeech) Stop() error        { return nil }

// stillClock never fires, so entries stay open until the test closes them.
type stillClock struct{}

func (stillClock) Now() time.Time { return time.Unix(1700000000, 0) }
func (stillClock) AfterFunc(time.Duration, func()) transcript.Timer {
	return time.NewTimer(time.Hour)
}

type fixture struct {
	session *Session
	client  *fakeClient
	links   *fakeLinks
	events  chan signaling.Event
	done    chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client: &fakeClient{},
		links:  &fakeLinks{},
		events: make(chan signaling.Event, 16),
		done:   make(chan error, 1),
	}
	f.session = NewSession(Config{
		Client:   f.client,
		Events:   f.events,
		Media:    fakeCapture{},
		Links:    f.links,
		Speech:   fakeSpeech{},
		Language: "ja-JP",
		Clock:    stillClock{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { f.done <- f.session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

func (f *fixture) waitUpdate(t *testing.T, kind UpdateKind) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-f.session.Updates():
			if u.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("no %s update", kind)
		}
	}
}

func sdpPayload(t *testing.T, typ webrtc.SDPType) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(webrtc.SessionDescription{Type: typ, SDP: typ.String()})
	require.NoError(t, err)
	return raw
}

func TestSession_CreatorOffersAndShipsTranscript(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.session.Create())
	require.True(t, f.client.called("create"))

	f.events <- signaling.Event{Type: signaling.TypeRoomCreated, RoomID: "ab12cd34"}
	require.Equal(t, "ab12cd34", f.waitUpdate(t, UpdateRoomCreated).RoomID)
	require.Eventually(t, func() bool { return f.client.called("join ab12cd34") }, time.Second, 5*time.Millisecond)

	f.events <- signaling.Event{Type: signaling.TypeRoomJoined, RoomID: "ab12cd34", Participants: []string{}}
	f.waitUpdate(t, UpdateRoomJoined)
	require.NoError(t, f.session.Start())
	require.True(t, f.session.Listening())

	f.events <- signaling.Event{Type: signaling.TypeUserJoined, UserID: "B"}
	require.Eventually(t, func() bool {
		r, ok := f.client.find(signaling.TypeOffer, "B")
		return ok && r.RoomID == "ab12cd34"
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "B", f.session.PeerID())

	f.events <- signaling.Event{Type: signaling.TypeAnswer, UserID: "B", Payload: sdpPayload(t, webrtc.SDPTypeAnswer)}

	// Said before the channel opened: delivered by the replay.
	f.session.segmenter.Partial("おはよう")

	link := f.links.last()
	link.post(negotiation.DataChannelOpened{})
	require.Eventually(t, func() bool {
		texts := link.sentTexts()
		return len(texts) > 0 && texts[len(texts)-1] == "おはよう"
	}, time.Second, 5*time.Millisecond)

	f.session.segmenter.Partial("おはようございます")
	require.Eventually(t, func() bool {
		texts := link.sentTexts()
		return len(texts) > 0 && texts[len(texts)-1] == "おはようございます"
	}, time.Second, 5*time.Millisecond)
}

func TestSession_JoinerAnswersWithoutOffering(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.session.Join("ab12cd34"))
	f.events <- signaling.Event{Type: signaling.TypeRoomJoined, RoomID: "ab12cd34", Participants: []string{"A"}}
	f.waitUpdate(t, UpdateRoomJoined)
	require.NoError(t, f.session.Start())

	require.Eventually(t, func() bool { return f.links.last() != nil }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool {
		_, ok := f.client.find(signaling.TypeOffer, "A")
		return ok
	}, 100*time.Millisecond, 10*time.Millisecond)

	f.events <- signaling.Event{Type: signaling.TypeOffer, UserID: "A", Payload: sdpPayload(t, webrtc.SDPTypeOffer)}
	require.Eventually(t, func() bool {
		_, ok := f.client.find(signaling.TypeAnswer, "A")
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, negotiation.StateConnecting, f.session.State())
}

func TestSession_RemoteTranscriptMerge(t *testing.T) {
	f := newFixture(t)

	f.events <- signaling.Event{Type: signaling.TypeRoomJoined, RoomID: "ab12cd34", Participants: []string{"A"}}
	f.events <- signaling.Event{Type: signaling.TypeOffer, UserID: "A", Payload: sdpPayload(t, webrtc.SDPTypeOffer)}
	require.Eventually(t, func() bool { return f.links.last() != nil }, time.Second, 5*time.Millisecond)

	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	interim, err := negotiation.EncodeTranscript("r1", "こんにちは", false, ts)
	require.NoError(t, err)
	final, err := negotiation.EncodeTranscript("r1", "こんにちは世界", true, ts)
	require.NoError(t, err)

	link := f.links.last()
	link.post(negotiation.DataMessageReceived{Data: interim})
	link.post(negotiation.DataMessageReceived{Data: interim})
	link.post(negotiation.DataMessageReceived{Data: final})
	link.post(negotiation.DataMessageReceived{Data: []byte(`{"type":"chat"}`)})
	link.post(negotiation.DataMessageReceived{Data: final})

	require.Eventually(t, func() bool {
		entries := f.session.Transcript()
		return len(entries) == 1 && entries[0].IsFinal
	}, time.Second, 5*time.Millisecond)

	e := f.session.Transcript()[0]
	require.Equal(t, transcript.SpeakerRemote, e.Speaker)
	require.Equal(t, "こんにちは世界", e.Text)
	require.True(t, e.Timestamp.Equal(ts))

	// Remote entries are never echoed back.
	require.Empty(t, link.sentTexts())
}

func TestSession_SurfacesServerErrors(t *testing.T) {
	f := newFixture(t)

	f.events <- signaling.Event{Type: signaling.TypeRoomFull, Err: callerr.New("join room", callerr.ErrRoomFull)}
	require.ErrorIs(t, f.waitUpdate(t, UpdateError).Err, callerr.ErrRoomFull)

	f.events <- signaling.Event{Type: signaling.TypeError, Err: callerr.FromServer("signaling", "room not found")}
	require.ErrorIs(t, f.waitUpdate(t, UpdateError).Err, callerr.ErrRoomNotFound)
}

func TestSession_LeaveEndsCallAndLeavesRoom(t *testing.T) {
	f := newFixture(t)

	f.events <- signaling.Event{Type: signaling.TypeRoomJoined, RoomID: "ab12cd34"}
	f.waitUpdate(t, UpdateRoomJoined)
	require.NoError(t, f.session.Start())
	require.Eventually(t, func() bool { return f.links.last() != nil }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.session.Leave())
	require.True(t, f.client.called("leave ab12cd34"))
	require.Empty(t, f.session.RoomID())
	require.False(t, f.session.Listening())
	require.Eventually(t, func() bool {
		return f.session.State() == negotiation.StateIdle
	}, time.Second, 5*time.Millisecond)

	// Nothing to leave the second time.
	require.NoError(t, f.session.Leave())
}

func TestSession_StopsWhenSignalingCloses(t *testing.T) {
	client := &fakeClient{}
	events := make(chan signaling.Event)
	s := NewSession(Config{Client: client, Events: events, Media: fakeCapture{}, Links: &fakeLinks{}})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	close(events)

	select {
	case err := <-done:
		require.ErrorIs(t, err, callerr.ErrNotConnected)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
