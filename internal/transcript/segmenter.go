package transcript

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

const (
	DefaultSilenceTimeout = 2000 * time.Millisecond
	MaxRestartAttempts    = 3

	restartBaseDelay = 300 * time.Millisecond
	restartStepDelay = 200 * time.Millisecond
)

// SpeechSource is a recognizer the Segmenter can start and stop. It reports
// results back through the Segmenter's Partial, Final, SpeechStarted,
// SegmentEnded and Error methods.
type SpeechSource interface {
	Start(language string) error
	Stop() error
}

// Error codes that mean the recognizer heard nothing worth restarting for.
var benignErrors = map[string]bool{
	"no-speech": true,
	"aborted":   true,
	"7":         true,
}

type SegmenterConfig struct {
	Log            *Log
	Source         SpeechSource
	Language       string
	Clock          Clock
	SilenceTimeout time.Duration
	// OnError receives ErrRecognitionRestartExhausted once listening gives up.
	OnError func(error)
	NewID   func() string
}

// Segmenter turns the local recognizer's callbacks into Log entries. It
// keeps at most one open entry and strips text that earlier entries already
// committed when the recognizer reports cumulative results.
type Segmenter struct {
	cfg SegmenterConfig

	mu        sync.Mutex
	listening bool
	err       error

	openID   string
	openText string
	openAt   time.Time
	// openUsed is how many characters of the raw result the open entry covers.
	openUsed int

	finalizedLength int

	silenceGen   uint64
	silence      Timer
	restartGen   uint64
	restartTimer Timer
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.Log == nil {
		cfg.Log = NewLog()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Segmenter{cfg: cfg}
}

// Listening reports whether recognition is wanted and has not given up.
func (s *Segmenter) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Err is the error that ended listening, if any.
func (s *Segmenter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Segmenter) Start() error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return nil
	}
	s.listening = true
	s.err = nil
	s.finalizedLength = 0
	s.mu.Unlock()

	if err := s.cfg.Source.Start(s.cfg.Language); err != nil {
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
		return callerr.Wrap("start listening", callerr.ErrRecognitionTransient, err.Error())
	}
	slog.Info("listening started", "language", s.cfg.Language)
	return nil
}

// Stop finalizes the open entry and stops the recognizer.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	wasListening := s.listening
	s.listening = false
	s.closeOpenLocked()
	s.finalizedLength = 0
	s.stopSilenceLocked()
	s.cancelRestartLocked()
	s.mu.Unlock()

	if wasListening {
		if err := s.cfg.Source.Stop(); err != nil {
			slog.Debug("stop recognizer", "err", err)
		}
		slog.Info("listening stopped")
	}
}

// Clear empties the transcript history.
func (s *Segmenter) Clear() {
	s.mu.Lock()
	s.openID = ""
	s.openText = ""
	s.finalizedLength = 0
	s.stopSilenceLocked()
	s.mu.Unlock()

	s.cfg.Log.Clear()
}

// Partial handles an interim result.
func (s *Segmenter) Partial(text string) { s.accept(text, false) }

// Final handles a final result. The entry is committed and closed.
func (s *Segmenter) Final(text string) { s.accept(text, true) }

// SpeechStarted arms the silence timer.
func (s *Segmenter) SpeechStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		s.armSilenceLocked()
	}
}

// SegmentEnded handles the recognizer closing its segment. Its internal
// buffer has reset, so the offset goes back to zero and the recognizer is
// restarted.
func (s *Segmenter) SegmentEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeOpenLocked()
	s.stopSilenceLocked()
	if s.listening {
		s.finalizedLength = 0
		s.scheduleRestartLocked(0)
	}
}

// Error handles a recognizer error code.
func (s *Segmenter) Error(code string) {
	if benignErrors[code] {
		slog.Debug("recognizer error ignored", "code", code)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening {
		return
	}
	slog.Warn("recognizer error", "err", callerr.Wrap("recognize", callerr.ErrRecognitionTransient, code))
	s.scheduleRestartLocked(0)
}

func (s *Segmenter) accept(raw string, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening {
		return
	}

	text, used := newText(raw, s.finalizedLength)
	if strings.TrimSpace(text) == "" {
		return
	}

	if s.openID == "" {
		s.openID = s.cfg.NewID()
		s.openAt = s.cfg.Clock.Now()
	}
	s.openText = text
	s.openUsed = used
	s.upsertOpenLocked(final)

	if final {
		s.finalizedLength += used
		s.openID = ""
		s.openText = ""
		s.stopSilenceLocked()
		return
	}
	s.armSilenceLocked()
}

// newText strips the part of a cumulative result that closed entries already
// hold and reports how many characters it consumed past the offset. An empty
// remainder means the recognizer reset its buffer, so the whole text is used.
func newText(text string, offset int) (string, int) {
	runes := []rune(text)
	if offset == 0 || offset >= len(runes) {
		return text, len(runes)
	}
	if rest := strings.TrimSpace(string(runes[offset:])); rest != "" {
		return rest, len(runes) - offset
	}
	return text, len(runes)
}

func (s *Segmenter) upsertOpenLocked(final bool) {
	s.cfg.Log.Upsert(Entry{
		ID:        s.openID,
		Speaker:   SpeakerLocal,
		Text:      s.openText,
		IsFinal:   final,
		Timestamp: s.openAt,
	})
}

// closeOpenLocked marks the open entry final without touching the offset.
func (s *Segmenter) closeOpenLocked() {
	if s.openID == "" {
		return
	}
	s.upsertOpenLocked(true)
	s.openID = ""
	s.openText = ""
}

func (s *Segmenter) armSilenceLocked() {
	s.stopSilenceLocked()
	s.silenceGen++
	gen := s.silenceGen
	s.silence = s.cfg.Clock.AfterFunc(s.cfg.SilenceTimeout, func() { s.silenceElapsed(gen) })
}

func (s *Segmenter) stopSilenceLocked() {
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
	s.silenceGen++
}

func (s *Segmenter) silenceElapsed(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.silenceGen || !s.listening || s.openID == "" {
		return
	}
	s.silence = nil
	s.finalizedLength += s.openUsed
	s.closeOpenLocked()
}

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay + time.Duration(attempt)*restartStepDelay
}

func (s *Segmenter) scheduleRestartLocked(attempt int) {
	s.cancelRestartLocked()
	gen := s.restartGen
	s.restartTimer = s.cfg.Clock.AfterFunc(restartDelay(attempt), func() { s.restart(gen, attempt) })
}

func (s *Segmenter) cancelRestartLocked() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	s.restartGen++
}

func (s *Segmenter) restart(gen uint64, attempt int) {
	s.mu.Lock()
	if gen != s.restartGen || !s.listening {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	_ = s.cfg.Source.Stop()
	err := s.cfg.Source.Start(s.cfg.Language)

	s.mu.Lock()
	if gen != s.restartGen || !s.listening {
		s.mu.Unlock()
		if err == nil {
			_ = s.cfg.Source.Stop()
		}
		return
	}
	s.restartTimer = nil
	if err == nil {
		s.mu.Unlock()
		slog.Debug("recognizer restarted", "attempt", attempt)
		return
	}
	if attempt+1 < MaxRestartAttempts {
		slog.Debug("recognizer restart failed", "attempt", attempt, "err", err)
		s.scheduleRestartLocked(attempt + 1)
		s.mu.Unlock()
		return
	}

	s.listening = false
	s.closeOpenLocked()
	s.stopSilenceLocked()
	s.err = callerr.Wrap("restart recognizer", callerr.ErrRecognitionRestartExhausted, err.Error())
	exhausted, onError := s.err, s.cfg.OnError
	s.mu.Unlock()

	slog.Error("listening stopped", "err", exhausted)
	if onError != nil {
		onError(exhausted)
	}
}
