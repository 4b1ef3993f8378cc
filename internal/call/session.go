package call

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/negotiation"
	"github.com/BioHazard786/Warptalk/internal/signaling"
	"github.com/BioHazard786/Warptalk/internal/transcript"
)

const updateBuffer = 64

// Signaling is the part of *signaling.Client a session drives.
type Signaling interface {
	CreateRoom() error
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	Relay(msgType, roomID, targetUserID string, payload any) error
}

// attacher is a SpeechSource that needs to be told where results go, like
// *transcript.LineSource.
type attacher interface {
	Attach(sink transcript.Sink)
}

type Config struct {
	Client Signaling
	// Events is the ordered server event stream, usually Handler.Events().
	Events <-chan signaling.Event

	Media negotiation.MediaCapture
	Links negotiation.LinkFactory

	Speech   transcript.SpeechSource
	Language string
	Clock    transcript.Clock
}

// Session is one participant's call: room membership, the negotiation
// controller and both halves of the transcript.
type Session struct {
	client    Signaling
	events    <-chan signaling.Event
	ctrl      *negotiation.Controller
	log       *transcript.Log
	segmenter *transcript.Segmenter
	updates   chan Update

	mu     sync.RWMutex
	roomID string
	peerID string
}

func NewSession(cfg Config) *Session {
	s := &Session{
		client:  cfg.Client,
		events:  cfg.Events,
		log:     transcript.NewLog(),
		updates: make(chan Update, updateBuffer),
	}

	s.ctrl = negotiation.New(negotiation.Options{
		Signaler:      cfg.Client,
		Media:         cfg.Media,
		Links:         cfg.Links,
		OnData:        s.receiveTranscript,
		OnChannelOpen: s.replayTranscript,
	})

	if cfg.Speech != nil {
		s.segmenter = transcript.NewSegmenter(transcript.SegmenterConfig{
			Log:      s.log,
			Source:   cfg.Speech,
			Language: cfg.Language,
			Clock:    cfg.Clock,
			OnError: func(err error) {
				s.emit(Update{Kind: UpdateError, Err: err})
			},
		})
		if a, ok := cfg.Speech.(attacher); ok {
			a.Attach(s.segmenter)
		}
	}

	s.log.Watch(s.transcriptChanged)
	return s
}

// Run drives the session until ctx is cancelled or the signaling stream
// closes. The call is ended on the way out.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrlDone := make(chan struct{})
	go func() {
		defer close(ctrlDone)
		s.ctrl.Run(ctx)
	}()
	go s.forwardStates(ctx)

	defer func() {
		s.stopListening()
		cancel()
		<-ctrlDone
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.events:
			if !ok {
				err := callerr.New("signaling", callerr.ErrNotConnected)
				s.emit(Update{Kind: UpdateError, Err: err})
				return err
			}
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev signaling.Event) {
	if ev.Err != nil {
		slog.Warn("signaling error", "type", ev.Type, "err", ev.Err)
		s.emit(Update{Kind: UpdateError, Err: ev.Err})
		return
	}

	switch ev.Type {
	case signaling.TypeRoomCreated:
		slog.Info("room created", "room_id", ev.RoomID)
		s.emit(Update{Kind: UpdateRoomCreated, RoomID: ev.RoomID})
		if err := s.client.JoinRoom(ev.RoomID); err != nil {
			s.emit(Update{Kind: UpdateError, Err: err})
		}

	case signaling.TypeRoomJoined:
		s.mu.Lock()
		s.roomID = ev.RoomID
		s.peerID = ""
		if len(ev.Participants) > 0 {
			s.peerID = ev.Participants[0]
		}
		s.mu.Unlock()

		// The members already present send the offer, so no PeerJoined here.
		s.ctrl.Post(negotiation.RoomJoined{RoomID: ev.RoomID})
		slog.Info("joined room", "room_id", ev.RoomID, "participants", len(ev.Participants))
		s.emit(Update{Kind: UpdateRoomJoined, RoomID: ev.RoomID, Participants: ev.Participants})

	case signaling.TypeUserJoined:
		s.setPeer(ev.UserID)
		s.ctrl.Post(negotiation.PeerJoined{UserID: ev.UserID})
		s.emit(Update{Kind: UpdatePeerJoined, UserID: ev.UserID})

	case signaling.TypeUserLeft:
		s.mu.Lock()
		if s.peerID == ev.UserID {
			s.peerID = ""
		}
		s.mu.Unlock()
		s.ctrl.Post(negotiation.PeerLeft{UserID: ev.UserID})
		s.emit(Update{Kind: UpdatePeerLeft, UserID: ev.UserID})

	case signaling.TypeOffer:
		var sdp webrtc.SessionDescription
		if !s.decode(ev, &sdp) {
			return
		}
		s.setPeer(ev.UserID)
		s.ctrl.Post(negotiation.OfferReceived{From: ev.UserID, Offer: sdp})

	case signaling.TypeAnswer:
		var sdp webrtc.SessionDescription
		if !s.decode(ev, &sdp) {
			return
		}
		s.ctrl.Post(negotiation.AnswerReceived{From: ev.UserID, Answer: sdp})

	case signaling.TypeICECandidate:
		var cand webrtc.ICECandidateInit
		if !s.decode(ev, &cand) {
			return
		}
		s.ctrl.Post(negotiation.CandidateReceived{From: ev.UserID, Candidate: cand})
	}
}

func (s *Session) decode(ev signaling.Event, v any) bool {
	if err := ev.Decode(v); err != nil {
		slog.Warn("dropping malformed signal", "type", ev.Type, "user_id", ev.UserID, "err", err)
		return false
	}
	return true
}

func (s *Session) setPeer(id string) {
	s.mu.Lock()
	s.peerID = id
	s.mu.Unlock()
}

func (s *Session) forwardStates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.ctrl.States():
			s.emit(Update{Kind: UpdateState, State: st, Err: s.ctrl.Err()})
		}
	}
}

// Create asks the server for a new room and joins it once created.
func (s *Session) Create() error {
	return s.client.CreateRoom()
}

func (s *Session) Join(roomID string) error {
	return s.client.JoinRoom(roomID)
}

// Leave ends the call and leaves the current room.
func (s *Session) Leave() error {
	s.End()

	s.mu.Lock()
	roomID := s.roomID
	s.roomID = ""
	s.peerID = ""
	s.mu.Unlock()

	if roomID == "" {
		return nil
	}
	// Forget the room so a stale remote id cannot receive the next offer.
	s.ctrl.Post(negotiation.RoomJoined{})
	return s.client.LeaveRoom(roomID)
}

// Start acquires the microphone, negotiates with the peer and starts
// transcribing local speech. A recognizer that fails to start does not stop
// the call.
func (s *Session) Start() error {
	s.ctrl.Post(negotiation.StartCall{})
	if s.segmenter == nil {
		return nil
	}
	if err := s.segmenter.Start(); err != nil {
		slog.Warn("speech recognition unavailable", "err", err)
		s.emit(Update{Kind: UpdateError, Err: err})
		return err
	}
	return nil
}

// End releases local media and the peer connection but stays in the room.
func (s *Session) End() {
	s.stopListening()
	s.ctrl.Post(negotiation.EndCall{})
}

func (s *Session) ToggleMute() {
	s.ctrl.Post(negotiation.ToggleMute{})
}

// ClearTranscript drops the history on this side only.
func (s *Session) ClearTranscript() {
	if s.segmenter != nil {
		s.segmenter.Clear()
		return
	}
	s.log.Clear()
}

func (s *Session) Transcript() []transcript.Entry { return s.log.Entries() }

// Updates delivers what the UI needs to redraw. Slow readers miss updates
// but never block the call.
func (s *Session) Updates() <-chan Update { return s.updates }

func (s *Session) State() negotiation.State { return s.ctrl.State() }

func (s *Session) Muted() bool { return s.ctrl.Muted() }

// PeerAudio reports whether the peer's audio track has arrived.
func (s *Session) PeerAudio() bool { return s.ctrl.Remote() != nil }

func (s *Session) ChannelOpen() bool { return s.ctrl.ChannelOpen() }

func (s *Session) Listening() bool {
	return s.segmenter != nil && s.segmenter.Listening()
}

func (s *Session) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// PeerID is the other participant, if known.
func (s *Session) PeerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerID
}

func (s *Session) stopListening() {
	if s.segmenter != nil {
		s.segmenter.Stop()
	}
}

// transcriptChanged ships local entries to the peer and wakes the UI.
func (s *Session) transcriptChanged(e transcript.Entry) {
	if e.Speaker == transcript.SpeakerLocal {
		s.sendEntry(e)
	}
	s.emit(Update{Kind: UpdateTranscript, Entry: e})
}

func (s *Session) sendEntry(e transcript.Entry) {
	data, err := negotiation.EncodeTranscript(e.ID, e.Text, e.IsFinal, e.Timestamp)
	if err != nil {
		slog.Warn("encode transcript", "err", err)
		return
	}
	s.ctrl.Send(data)
}

// replayTranscript sends the local history when a channel opens, so a peer
// that arrives late still sees what was said.
func (s *Session) replayTranscript() {
	for _, e := range s.log.Entries() {
		if e.Speaker == transcript.SpeakerLocal {
			s.sendEntry(e)
		}
	}
}

func (s *Session) receiveTranscript(data []byte) {
	env, err := negotiation.DecodeEnvelope(data)
	if err != nil {
		slog.Debug("dropping data channel message", "err", err)
		return
	}
	s.log.Upsert(transcript.Entry{
		ID:        env.ID,
		Speaker:   transcript.SpeakerRemote,
		Text:      env.Text,
		IsFinal:   env.IsFinal,
		Timestamp: env.Timestamp,
	})
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		slog.Debug("update dropped", "kind", u.Kind.String())
	}
}
