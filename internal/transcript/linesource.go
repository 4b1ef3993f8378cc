package transcript

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sink receives recognizer callbacks. *Segmenter implements it.
type Sink interface {
	SpeechStarted()
	Partial(text string)
	Final(text string)
	SegmentEnded()
}

// LineSource is a SpeechSource over text lines. It acts like a cumulative
// recognizer: each line is revealed word by word on top of everything said
// since the last Start, then reported final. An empty line ends the segment.
type LineSource struct {
	r         io.Reader
	sink      Sink
	wordDelay time.Duration

	mu     sync.Mutex
	active bool
	spoken string

	once sync.Once
	// done is closed when the reader is exhausted.
	done chan struct{}
}

// NewLineSource reads from r. wordDelay paces the partials; zero emits
// them back to back.
func NewLineSource(r io.Reader, wordDelay time.Duration) *LineSource {
	return &LineSource{
		r:         r,
		wordDelay: wordDelay,
		done:      make(chan struct{}),
	}
}

// Attach sets where results go. It must be called before Start.
func (l *LineSource) Attach(sink Sink) {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

func (l *LineSource) Start(string) error {
	l.mu.Lock()
	l.active = true
	l.spoken = ""
	l.mu.Unlock()

	l.once.Do(func() { go l.read() })
	return nil
}

func (l *LineSource) Stop() error {
	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
	return nil
}

func (l *LineSource) read() {
	defer close(l.done)

	scanner := bufio.NewScanner(l.r)
	for scanner.Scan() {
		l.speak(strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("line source stopped", "err", err)
	}
}

func (l *LineSource) speak(line string) {
	l.mu.Lock()
	active, sink, prefix := l.active, l.sink, l.spoken
	l.mu.Unlock()
	if !active || sink == nil {
		slog.Debug("line dropped while recognizer is stopped")
		return
	}

	if line == "" {
		l.mu.Lock()
		l.spoken = ""
		l.mu.Unlock()
		sink.SegmentEnded()
		return
	}

	sink.SpeechStarted()
	heard := prefix
	for _, word := range strings.Fields(line) {
		if heard != "" {
			heard += " "
		}
		heard += word
		sink.Partial(heard)
		if l.wordDelay > 0 {
			time.Sleep(l.wordDelay)
		}
	}
	sink.Final(heard)

	l.mu.Lock()
	if l.active {
		l.spoken = heard
	}
	l.mu.Unlock()
}
