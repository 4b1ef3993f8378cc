package negotiation

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warptalk/internal/config"
	"github.com/BioHazard786/Warptalk/internal/signaling"
)

// loopback delivers relayed messages straight to the other controller.
type loopback struct {
	self string
	peer *Controller
}

func (l *loopback) Relay(msgType, roomID, to string, payload any) error {
	switch msgType {
	case signaling.TypeOffer:
		l.peer.Post(OfferReceived{From: l.self, Offer: payload.(webrtc.SessionDescription)})
	case signaling.TypeAnswer:
		l.peer.Post(AnswerReceived{From: l.self, Answer: payload.(webrtc.SessionDescription)})
	case signaling.TypeICECandidate:
		l.peer.Post(CandidateReceived{From: l.self, Candidate: payload.(webrtc.ICECandidateInit)})
	}
	return nil
}

func newVNetFactory(t *testing.T, n *vnet.Net) *PionFactory {
	t.Helper()
	api, err := NewAPI(logging.NewDefaultLoggerFactory(), func(s *webrtc.SettingEngine) {
		s.SetNet(n)
	})
	require.NoError(t, err)
	return NewPionFactory(api, webrtc.Configuration{})
}

func TestPionCall_OverVirtualNetwork(t *testing.T) {
	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	require.NoError(t, err)
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	require.NoError(t, err)
	require.NoError(t, router.AddNet(netA))
	require.NoError(t, router.AddNet(netB))
	require.NoError(t, router.Start())

	sigA := &loopback{self: "A"}
	sigB := &loopback{self: "B"}

	var mu sync.Mutex
	var received [][]byte

	a := New(Options{
		Signaler: sigA,
		Media:    &SampleCapture{},
		Links:    newVNetFactory(t, netA),
		OnData: func(b []byte) {
			mu.Lock()
			received = append(received, b)
			mu.Unlock()
		},
	})
	b := New(Options{
		Signaler: sigB,
		Media:    &SampleCapture{},
		Links:    newVNetFactory(t, netB),
	})
	sigA.peer = b
	sigB.peer = a

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	go b.Run(ctx)

	a.Post(RoomJoined{RoomID: "ab12cd34"})
	b.Post(RoomJoined{RoomID: "ab12cd34"})
	a.Post(StartCall{})
	b.Post(StartCall{})
	a.Post(PeerJoined{UserID: "B"})

	require.Eventually(t, func() bool {
		return a.State() == StateConnected && b.State() == StateConnected
	}, 15*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return a.ChannelOpen() && b.ChannelOpen()
	}, 10*time.Second, 20*time.Millisecond)

	payload, err := EncodeTranscript("e1", "こんにちは", true, time.Now())
	require.NoError(t, err)
	b.Send(payload)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 20*time.Millisecond)

	env, err := DecodeEnvelope(received[0])
	require.NoError(t, err)
	require.Equal(t, "こんにちは", env.Text)

	require.Eventually(t, func() bool {
		return a.Remote() != nil && b.Remote() != nil
	}, 10*time.Second, 20*time.Millisecond)

	b.Post(EndCall{})
	require.Eventually(t, func() bool {
		return b.State() == StateIdle && a.State() == StateDisconnected
	}, 15*time.Second, 20*time.Millisecond)
}

func TestICEConfiguration(t *testing.T) {
	cfg := &config.Config{STUNServers: []string{config.DefaultSTUN}}
	ice := ICEConfiguration(cfg)
	require.Len(t, ice.ICEServers, 1)
	require.Equal(t, webrtc.ICETransportPolicyAll, ice.ICETransportPolicy)

	cfg.TURNServer = "turn:turn.example.com"
	cfg.TURNUser = "u"
	cfg.TURNPass = "p"
	cfg.ForceRelay = true
	ice = ICEConfiguration(cfg)
	require.Len(t, ice.ICEServers, 2)
	require.Equal(t, "u", ice.ICEServers[1].Username)
	require.Equal(t, webrtc.ICETransportPolicyRelay, ice.ICETransportPolicy)
}

type countingSource struct {
	mu     sync.Mutex
	frames int
	limit  int
	closed bool
}

func (s *countingSource) NextFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames >= s.limit {
		return nil, io.EOF
	}
	s.frames++
	return opusSilence, nil
}

func (s *countingSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func TestSampleCapture_PumpsAndCloses(t *testing.T) {
	src := &countingSource{limit: 3}
	capture := &SampleCapture{Open: func(context.Context, Constraints) (SampleSource, error) {
		return src, nil
	}}

	m, err := capture.Acquire(context.Background(), VoiceConstraints)
	require.NoError(t, err)
	require.NotNil(t, m.(*SampleMedia).Track())

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.frames == 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	require.True(t, src.closed)
	require.NoError(t, m.Close())
}
