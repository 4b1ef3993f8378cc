package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/signaling"
)

// DataChannelLabel names the transcript channel the offerer opens.
const DataChannelLabel = "transcript"

const (
	eventBuffer = 128
	stateBuffer = 16
)

// Options wires the controller to its collaborators.
type Options struct {
	Signaler Signaler
	Media    MediaCapture
	Links    LinkFactory

	// OnData receives every data channel message, in order, on the
	// controller goroutine. It must not block.
	OnData func(data []byte)

	// OnChannelOpen runs on its own goroutine each time the transcript
	// channel opens.
	OnChannelOpen func()
}

// Controller drives one participant's side of a two-party call. Every input
// is an Event applied serially by Run; the getters are safe from any goroutine.
type Controller struct {
	opts    Options
	ctx     context.Context
	events  chan Event
	stopped chan struct{}
	states  chan State

	mu       sync.RWMutex
	state    State
	muted    bool
	err      error
	remote   RemoteMedia
	dataOpen bool

	// owned by the loop
	roomID    string
	remoteID  string
	media     LocalMedia
	call      uint64
	acquiring bool

	link      PeerLink
	linkGen   uint64
	linkPeer  string
	remoteSet bool
	pending   []CandidateReceived
	seen      map[string]struct{}
}

// New creates an idle controller.
func New(opts Options) *Controller {
	return &Controller{
		opts:    opts,
		ctx:     context.Background(),
		events:  make(chan Event, eventBuffer),
		stopped: make(chan struct{}),
		states:  make(chan State, stateBuffer),
		seen:    make(map[string]struct{}),
	}
}

// Run applies posted events until ctx is cancelled, then ends the call.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.stopped)

	for {
		select {
		case <-ctx.Done():
			c.endCall()
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Post queues an event. It is a no-op once Run has returned.
func (c *Controller) Post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

// Send ships data over the transcript channel. Delivery is best effort.
func (c *Controller) Send(data []byte) {
	c.Post(sendData{data: data})
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Muted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

// Err is the last failure, cleared by StartCall and EndCall.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Remote returns the peer's track, or nil.
func (c *Controller) Remote() RemoteMedia {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remote
}

// ChannelOpen reports whether transcripts can be sent.
func (c *Controller) ChannelOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataOpen
}

// States delivers state changes. Slow readers lose intermediate states.
func (c *Controller) States() <-chan State {
	return c.states
}

func (c *Controller) handle(ev Event) {
	switch e := ev.(type) {
	case RoomJoined:
		if e.RoomID != c.roomID {
			c.remoteID = ""
		}
		c.roomID = e.RoomID

	case StartCall:
		c.startCall()

	case mediaReady:
		c.mediaReady(e)

	case PeerJoined:
		c.peerJoined(e.UserID)

	case PeerLeft:
		c.peerLeft(e.UserID)

	case OfferReceived:
		c.offerReceived(e)

	case AnswerReceived:
		c.answerReceived(e)

	case CandidateReceived:
		c.candidateReceived(e)

	case linkEvent:
		if c.link == nil || e.link != c.linkGen {
			return
		}
		c.handleLink(e.inner)

	case ICEStateChanged, LocalCandidate, RemoteTrack, DataChannelOpened, DataMessageReceived:
		c.handleLink(ev)

	case sendData:
		if c.link == nil || !c.ChannelOpen() {
			slog.Debug("transcript dropped", "err", callerr.ErrChannelNotOpen)
			return
		}
		if err := c.link.Send(e.data); err != nil {
			slog.Warn("data channel send failed", "err", err)
		}

	case ToggleMute:
		if c.media == nil {
			return
		}
		muted := !c.Muted()
		c.media.SetMuted(muted)
		c.setMuted(muted)

	case EndCall:
		c.endCall()
	}
}

func (c *Controller) startCall() {
	if c.media != nil && c.State() == StateDisconnected {
		// Media is still held; renegotiate on a fresh link.
		c.setErr(nil)
		c.setState(StateConnecting)
		if c.remoteID != "" {
			c.offer(c.remoteID)
		}
		return
	}
	if c.media != nil || c.acquiring {
		slog.Debug("call already started", "state", c.State())
		return
	}

	c.call++
	c.acquiring = true
	c.setErr(nil)
	if c.State() != StateConnected {
		c.setState(StateConnecting)
	}

	call := c.call
	ctx := c.ctx
	go func() {
		media, err := c.opts.Media.Acquire(ctx, VoiceConstraints)
		c.Post(mediaReady{call: call, media: media, err: err})
	}()
}

func (c *Controller) mediaReady(e mediaReady) {
	if e.call != c.call || !c.acquiring {
		// The call ended while we waited.
		if e.media != nil {
			e.media.Close()
		}
		return
	}
	c.acquiring = false

	if e.err != nil {
		c.closeLink()
		c.setErr(callerr.Wrap("acquire media", callerr.ErrMediaAcquisitionFailed, e.err.Error()))
		c.setState(StateError)
		slog.Error("media acquisition failed", "err", e.err)
		return
	}

	c.media = e.media
	c.setMuted(false)

	if c.link == nil {
		if err := c.newLink(); err != nil {
			return
		}
	} else if err := c.link.AttachMedia(c.media); err != nil {
		slog.Error("attach local media failed", "err", err)
	}

	if c.remoteID != "" && c.linkPeer == "" {
		c.offer(c.remoteID)
	}
}

func (c *Controller) peerJoined(id string) {
	slog.Info("peer joined", "user_id", id)
	c.remoteID = id

	s := c.State()
	if c.media != nil && (s == StateConnecting || s == StateConnected || s == StateDisconnected) {
		c.offer(id)
		if s == StateDisconnected {
			c.setState(StateConnecting)
		}
	}
}

func (c *Controller) peerLeft(id string) {
	if id != c.remoteID {
		return
	}
	slog.Info("peer left", "user_id", id)
	c.remoteID = ""
	c.closeLink()

	switch c.State() {
	case StateConnecting, StateConnected:
		c.setState(StateDisconnected)
	}
}

func (c *Controller) offer(to string) {
	if c.link == nil || c.linkPeer != "" {
		if err := c.newLink(); err != nil {
			return
		}
	}
	c.linkPeer = to

	if err := c.link.OpenDataChannel(DataChannelLabel); err != nil {
		slog.Warn("open data channel failed", "err", err)
	}

	desc, err := c.link.CreateOffer()
	if err != nil {
		c.transportErr("create offer", err)
		return
	}
	slog.Debug("sending offer", "to", to)
	c.relay(signaling.TypeOffer, to, desc)
}

func (c *Controller) offerReceived(e OfferReceived) {
	slog.Debug("offer received", "from", e.From)
	c.remoteID = e.From

	if c.link == nil || c.linkPeer != "" {
		if err := c.newLink(); err != nil {
			return
		}
	}
	c.linkPeer = e.From

	if err := c.link.SetRemoteDescription(e.Offer); err != nil {
		c.transportErr("set remote description", err)
		return
	}
	c.remoteSet = true
	c.flushCandidates()

	answer, err := c.link.CreateAnswer()
	if err != nil {
		c.transportErr("create answer", err)
		return
	}
	c.relay(signaling.TypeAnswer, e.From, answer)

	switch c.State() {
	case StateIdle, StateDisconnected:
		c.setState(StateConnecting)
	}
}

func (c *Controller) answerReceived(e AnswerReceived) {
	if c.link == nil || e.From != c.linkPeer || c.remoteSet {
		slog.Debug("answer ignored", "from", e.From)
		return
	}
	if err := c.link.SetRemoteDescription(e.Answer); err != nil {
		c.transportErr("set remote description", err)
		return
	}
	c.remoteSet = true
	c.flushCandidates()
}

func (c *Controller) candidateReceived(e CandidateReceived) {
	key := e.Candidate.Candidate
	if key == "" {
		return
	}
	if c.link == nil || !c.remoteSet {
		for _, p := range c.pending {
			if p.Candidate.Candidate == key {
				return
			}
		}
		c.pending = append(c.pending, e)
		return
	}
	if e.From != c.linkPeer {
		return
	}
	c.addCandidate(e.Candidate)
}

func (c *Controller) flushCandidates() {
	pending := c.pending
	c.pending = nil
	for _, p := range pending {
		if p.From == c.linkPeer {
			c.addCandidate(p.Candidate)
		}
	}
}

func (c *Controller) addCandidate(cand webrtc.ICECandidateInit) {
	if _, dup := c.seen[cand.Candidate]; dup {
		return
	}
	c.seen[cand.Candidate] = struct{}{}
	if err := c.link.AddICECandidate(cand); err != nil {
		slog.Warn("add ICE candidate failed", "err", err)
	}
}

func (c *Controller) handleLink(ev Event) {
	switch e := ev.(type) {
	case ICEStateChanged:
		slog.Debug("ICE state changed", "ice", e.State.String())
		s, ok := stateForICE(e.State)
		if !ok || c.State() == StateError || c.State() == StateIdle {
			return
		}
		if e.State == webrtc.ICEConnectionStateFailed {
			c.setErr(callerr.Wrap("ice", callerr.ErrNegotiationTransport, e.State.String()))
		}
		c.setState(s)

	case LocalCandidate:
		if c.linkPeer == "" {
			return
		}
		c.relay(signaling.TypeICECandidate, c.linkPeer, e.Candidate)

	case RemoteTrack:
		slog.Info("remote track received", "track_id", e.Track.ID())
		c.mu.Lock()
		c.remote = e.Track
		c.mu.Unlock()

	case DataChannelOpened:
		c.mu.Lock()
		c.dataOpen = true
		c.mu.Unlock()
		if c.opts.OnChannelOpen != nil {
			go c.opts.OnChannelOpen()
		}

	case DataMessageReceived:
		if c.opts.OnData != nil {
			c.opts.OnData(e.Data)
		}
	}
}

func (c *Controller) endCall() {
	c.call++
	c.acquiring = false
	c.closeLink()
	if c.media != nil {
		if err := c.media.Close(); err != nil {
			slog.Warn("release local media failed", "err", err)
		}
		c.media = nil
	}
	c.pending = nil
	c.setMuted(false)
	c.setErr(nil)
	c.setState(StateIdle)
}

func (c *Controller) newLink() error {
	c.closeLink()

	c.linkGen++
	gen := c.linkGen
	link, err := c.opts.Links.NewLink(func(ev Event) {
		c.Post(linkEvent{link: gen, inner: ev})
	})
	if err != nil {
		c.transportErr("create peer connection", err)
		return err
	}

	c.link = link
	c.seen = make(map[string]struct{})
	if c.media != nil {
		if err := link.AttachMedia(c.media); err != nil {
			slog.Error("attach local media failed", "err", err)
		}
	}
	return nil
}

func (c *Controller) closeLink() {
	if c.link != nil {
		if err := c.link.Close(); err != nil {
			slog.Debug("close peer link", "err", err)
		}
	}
	c.link = nil
	c.linkPeer = ""
	c.remoteSet = false

	c.mu.Lock()
	c.remote = nil
	c.dataOpen = false
	c.mu.Unlock()
}

func (c *Controller) relay(msgType, to string, payload any) {
	if c.opts.Signaler == nil {
		return
	}
	if err := c.opts.Signaler.Relay(msgType, c.roomID, to, payload); err != nil {
		slog.Warn("relay failed", "type", msgType, "to", to, "err", err)
	}
}

func (c *Controller) transportErr(op string, err error) {
	slog.Error("negotiation failed", "op", op, "err", err)
	var ce *callerr.Error
	if !errors.As(err, &ce) {
		err = callerr.Wrap(op, callerr.ErrNegotiationTransport, err.Error())
	}
	c.setErr(err)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if !changed {
		return
	}

	slog.Info("call state changed", "state", s.String())
	select {
	case c.states <- s:
	default:
		select {
		case <-c.states:
		default:
		}
		select {
		case c.states <- s:
		default:
		}
	}
}

func (c *Controller) setMuted(m bool) {
	c.mu.Lock()
	c.muted = m
	c.mu.Unlock()
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}
