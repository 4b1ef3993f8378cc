package negotiation

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/config"
)

// NewAPI builds a pion API with the default codecs and the given logger
// factory. Extra setting engine options (a virtual network in tests) are
// applied through configure.
func NewAPI(lf logging.LoggerFactory, configure func(*webrtc.SettingEngine)) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	s := webrtc.SettingEngine{}
	if lf != nil {
		s.LoggerFactory = lf
	}
	if configure != nil {
		configure(&s)
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)), nil
}

// ICEConfiguration builds the peer connection configuration from cfg.
// Relay-only transport is used when forced or when the host looks like it
// sits behind a VPN or carrier-grade NAT.
func ICEConfiguration(cfg *config.Config) webrtc.Configuration {
	iceServers := []webrtc.ICEServer{{URLs: cfg.STUNServers}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// ShouldForceRelay reports whether an interface looks like a VPN tunnel or
// carries a CGNAT address (100.64.0.0/10), where direct paths rarely work.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	_, cgnat, _ := net.ParseCIDR("100.64.0.0/10")

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, hint := range []string{"tun", "tap", "wg", "ppp", "warp"} {
			if strings.Contains(name, hint) {
				return true
			}
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && cgnat.Contains(ipNet.IP) {
				return true
			}
		}
	}
	return false
}

// PionFactory creates PionLinks that share one API and configuration.
type PionFactory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewPionFactory(api *webrtc.API, cfg webrtc.Configuration) *PionFactory {
	return &PionFactory{api: api, cfg: cfg}
}

func (f *PionFactory) NewLink(post func(Event)) (PeerLink, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, callerr.Wrap("create peer connection", callerr.ErrNegotiationTransport, err.Error())
	}

	// The audio transceiver exists from the start so media acquired after
	// negotiation only swaps the sender's track.
	audio, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		pc.Close()
		return nil, callerr.Wrap("add audio transceiver", callerr.ErrNegotiationTransport, err.Error())
	}

	l := &PionLink{pc: pc, audio: audio, post: post}
	l.wire()
	return l, nil
}

// PionLink is a PeerLink over a pion PeerConnection.
type PionLink struct {
	pc    *webrtc.PeerConnection
	audio *webrtc.RTPTransceiver
	post  func(Event)

	closed atomic.Bool

	mu sync.Mutex
	dc *webrtc.DataChannel
}

// trackSource is implemented by media that can feed a pion sender.
type trackSource interface {
	Track() webrtc.TrackLocal
}

func (l *PionLink) emit(ev Event) {
	if l.closed.Load() {
		return
	}
	l.post(ev)
}

func (l *PionLink) wire() {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		l.emit(LocalCandidate{Candidate: c.ToJSON()})
	})

	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		l.emit(ICEStateChanged{State: s})
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.emit(RemoteTrack{Track: track})

		// Decoding is out of scope; drain so the receive buffers never fill.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	l.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			slog.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		l.wireChannel(dc)
	})
}

func (l *PionLink) wireChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		l.mu.Lock()
		l.dc = dc
		l.mu.Unlock()
		l.emit(DataChannelOpened{})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.emit(DataMessageReceived{Data: msg.Data})
	})
}

func (l *PionLink) AttachMedia(m LocalMedia) error {
	src, ok := m.(trackSource)
	if !ok {
		return fmt.Errorf("attach media: %T has no pion track", m)
	}
	return l.audio.Sender().ReplaceTrack(src.Track())
}

func (l *PionLink) OpenDataChannel(label string) error {
	ordered := true
	dc, err := l.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return callerr.Wrap("create data channel", callerr.ErrNegotiationTransport, err.Error())
	}
	l.wireChannel(dc)
	return nil
}

func (l *PionLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, callerr.Wrap("create offer", callerr.ErrNegotiationTransport, err.Error())
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, callerr.Wrap("set local description", callerr.ErrNegotiationTransport, err.Error())
	}
	return offer, nil
}

func (l *PionLink) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, callerr.Wrap("create answer", callerr.ErrNegotiationTransport, err.Error())
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, callerr.Wrap("set local description", callerr.ErrNegotiationTransport, err.Error())
	}
	return answer, nil
}

func (l *PionLink) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return callerr.Wrap("set remote description", callerr.ErrNegotiationTransport, err.Error())
	}
	return nil
}

func (l *PionLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(c)
}

func (l *PionLink) Send(data []byte) error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return callerr.New("send transcript", callerr.ErrChannelNotOpen)
	}
	return dc.SendText(string(data))
}

func (l *PionLink) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.pc.Close()
	if errors.Is(err, webrtc.ErrConnectionClosed) {
		return nil
	}
	return err
}
