package transcript

import (
	"slices"
	"sync"
	"time"
)

// Speaker tags who said an entry.
type Speaker string

const (
	SpeakerLocal  Speaker = "local"
	SpeakerRemote Speaker = "remote"
)

// Entry is one segment of recognized speech. Once IsFinal is set the text
// never changes.
type Entry struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

type entryKey struct {
	speaker Speaker
	id      string
}

// Log is the ordered transcript of both speakers, keyed by entry id.
type Log struct {
	mu        sync.Mutex
	entries   []Entry
	index     map[entryKey]int
	observers map[int]func(Entry)
	nextObs   int
}

func NewLog() *Log {
	return &Log{
		index:     make(map[entryKey]int),
		observers: make(map[int]func(Entry)),
	}
}

// Upsert inserts e, or overwrites the entry with the same speaker and id in
// place. Writes to a final entry are ignored, which makes replays no-ops.
// It reports whether the log changed.
func (l *Log) Upsert(e Entry) bool {
	l.mu.Lock()
	key := entryKey{e.Speaker, e.ID}
	if i, ok := l.index[key]; ok {
		cur := &l.entries[i]
		if cur.IsFinal || (cur.Text == e.Text && cur.IsFinal == e.IsFinal) {
			l.mu.Unlock()
			return false
		}
		cur.Text = e.Text
		cur.IsFinal = e.IsFinal
		e = *cur
	} else {
		l.index[key] = len(l.entries)
		l.entries = append(l.entries, e)
	}
	observers := l.snapshotObservers()
	l.mu.Unlock()

	for _, fn := range observers {
		fn(e)
	}
	return true
}

// Get returns the entry for speaker and id.
func (l *Log) Get(speaker Speaker, id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[entryKey{speaker, id}]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Entries returns a copy of the log in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Len is the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear drops the whole history.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.index = make(map[entryKey]int)
	l.mu.Unlock()
}

// Watch calls fn after every change, synchronously and outside the log's
// lock. fn must not block. The returned func removes the watcher.
func (l *Log) Watch(fn func(Entry)) func() {
	l.mu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

func (l *Log) snapshotObservers() []func(Entry) {
	if len(l.observers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]func(Entry), 0, len(ids))
	for _, id := range ids {
		out = append(out, l.observers[id])
	}
	return out
}
