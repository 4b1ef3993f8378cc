package negotiation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

// FrameDuration is the Opus packet duration written to the track.
const FrameDuration = 20 * time.Millisecond

// opusSilence is a single Opus frame that decodes to 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SampleSource yields encoded Opus frames, one per FrameDuration.
type SampleSource interface {
	NextFrame() ([]byte, error)
	Close() error
}

// SourceOpener opens the microphone.
type SourceOpener func(ctx context.Context, c Constraints) (SampleSource, error)

// SilenceSource produces comfort silence forever.
type SilenceSource struct{}

func (SilenceSource) NextFrame() ([]byte, error) { return opusSilence, nil }
func (SilenceSource) Close() error               { return nil }

// OpenSilence is the SourceOpener used when no encoder is plugged in.
func OpenSilence(context.Context, Constraints) (SampleSource, error) {
	return SilenceSource{}, nil
}

// SampleCapture is a MediaCapture that pumps frames from a SampleSource
// into a pion sample track.
type SampleCapture struct {
	Open SourceOpener
}

func (s *SampleCapture) Acquire(ctx context.Context, c Constraints) (LocalMedia, error) {
	open := s.Open
	if open == nil {
		open = OpenSilence
	}

	src, err := open(ctx, c)
	if err != nil {
		return nil, callerr.Wrap("open microphone", callerr.ErrMediaAcquisitionFailed, err.Error())
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+uuid.NewString()[:8],
		"warptalk",
	)
	if err != nil {
		src.Close()
		return nil, callerr.Wrap("create audio track", callerr.ErrMediaAcquisitionFailed, err.Error())
	}

	m := &SampleMedia{
		track: track,
		src:   src,
		done:  make(chan struct{}),
	}
	m.wg.Add(1)
	go m.pump()

	slog.Debug("microphone acquired",
		"echo_cancellation", c.EchoCancellation,
		"noise_suppression", c.NoiseSuppression,
		"auto_gain", c.AutoGainControl)
	return m, nil
}

// SampleMedia is the LocalMedia produced by SampleCapture.
type SampleMedia struct {
	track *webrtc.TrackLocalStaticSample
	src   SampleSource
	muted atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (m *SampleMedia) Track() webrtc.TrackLocal { return m.track }

func (m *SampleMedia) SetMuted(muted bool) { m.muted.Store(muted) }

func (m *SampleMedia) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		err = m.src.Close()
	})
	return err
}

func (m *SampleMedia) pump() {
	defer m.wg.Done()

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		frame, err := m.src.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("microphone read failed", "err", err)
			}
			return
		}
		if m.muted.Load() {
			continue
		}
		if err := m.track.WriteSample(media.Sample{Data: frame, Duration: FrameDuration}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			slog.Debug("write sample failed", "err", err)
		}
	}
}
