package rooms

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

// Timer is the subset of *time.Timer the store needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. It matches time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MemoryStore is the process-local room table.
type MemoryStore struct {
	mu            sync.Mutex
	rooms         map[string]*Room
	byParticipant map[string]string
	deletions     map[string]Timer

	grace     time.Duration
	afterFunc AfterFunc
	now       func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithAfterFunc replaces the timer scheduler, mainly for tests.
func WithAfterFunc(f AfterFunc) MemoryOption {
	return func(s *MemoryStore) { s.afterFunc = f }
}

// NewMemoryStore creates an empty store that deletes empty rooms after grace.
func NewMemoryStore(grace time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		rooms:         make(map[string]*Room),
		byParticipant: make(map[string]string),
		deletions:     make(map[string]Timer),
		grace:         grace,
		afterFunc:     realAfterFunc,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newRoomID()
	for s.rooms[id] != nil {
		id = newRoomID()
	}
	s.rooms[id] = &Room{ID: id, CreatedAt: s.now()}

	// A room nobody ever joins must not live forever.
	s.scheduleDeletionLocked(id)

	slog.Info("room created", "room_id", id)
	return id, nil
}

func (s *MemoryStore) Join(ctx context.Context, roomID, participantID string) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return JoinResult{}, callerr.Wrap("join room", callerr.ErrRoomNotFound, roomID)
	}
	if slices.Contains(room.Participants, participantID) {
		return JoinResult{RoomID: roomID, Existing: otherThan(room.Participants, participantID)}, nil
	}
	if len(room.Participants) >= Capacity {
		return JoinResult{}, callerr.Wrap("join room", callerr.ErrRoomFull, roomID)
	}

	if t, ok := s.deletions[roomID]; ok {
		t.Stop()
		delete(s.deletions, roomID)
		slog.Info("room deletion cancelled", "room_id", roomID)
	}

	existing := slices.Clone(room.Participants)
	room.Participants = append(room.Participants, participantID)
	s.byParticipant[participantID] = roomID

	return JoinResult{RoomID: roomID, Existing: existing, Added: true}, nil
}

func (s *MemoryStore) Leave(ctx context.Context, roomID, participantID string) (LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.leaveLocked(roomID, participantID), nil
}

func (s *MemoryStore) Drop(ctx context.Context, participantID string) (LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.byParticipant[participantID]
	if !ok {
		return LeaveResult{}, nil
	}
	return s.leaveLocked(roomID, participantID), nil
}

func (s *MemoryStore) Get(ctx context.Context, roomID string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, callerr.Wrap("get room", callerr.ErrRoomNotFound, roomID)
	}
	return Room{ID: room.ID, Participants: slices.Clone(room.Participants), CreatedAt: room.CreatedAt}, nil
}

func (s *MemoryStore) leaveLocked(roomID, participantID string) LeaveResult {
	room, ok := s.rooms[roomID]
	if !ok {
		return LeaveResult{RoomID: roomID}
	}

	var removed bool
	room.Participants, removed = without(room.Participants, participantID)
	if removed && s.byParticipant[participantID] == roomID {
		delete(s.byParticipant, participantID)
	}

	if removed && len(room.Participants) == 0 {
		s.scheduleDeletionLocked(roomID)
	}

	return LeaveResult{RoomID: roomID, Removed: removed, Remaining: slices.Clone(room.Participants)}
}

func (s *MemoryStore) scheduleDeletionLocked(roomID string) {
	if t, ok := s.deletions[roomID]; ok {
		t.Stop()
	}

	var t Timer
	t = s.afterFunc(s.grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Stale timers (cancelled by a join, or replaced) must not delete.
		if s.deletions[roomID] != t {
			return
		}
		delete(s.deletions, roomID)

		room, ok := s.rooms[roomID]
		if !ok || len(room.Participants) > 0 {
			return
		}
		delete(s.rooms, roomID)
		slog.Info("room deleted", "room_id", roomID, "empty_for", s.grace)
	})
	s.deletions[roomID] = t

	slog.Info("room scheduled for deletion", "room_id", roomID, "after", s.grace)
}

func otherThan(ids []string, id string) []string {
	out, _ := without(ids, id)
	return out
}
