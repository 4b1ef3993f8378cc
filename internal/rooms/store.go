package rooms

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Capacity is the maximum number of participants in a room.
const Capacity = 2

// Room is a two-party rendezvous namespace.
type Room struct {
	ID           string    `msgpack:"id" json:"roomId"`
	Participants []string  `msgpack:"participants" json:"participants"`
	CreatedAt    time.Time `msgpack:"created_at" json:"createdAt"`
}

// JoinResult reports who was already in the room before the join. Added is
// false when the participant was already a member.
type JoinResult struct {
	RoomID   string
	Existing []string
	Added    bool
}

// LeaveResult reports the membership left behind by a leave or drop.
type LeaveResult struct {
	RoomID    string
	Removed   bool
	Remaining []string
}

// Store is the authoritative source of truth for room membership.
//
// Join fails with callerr.ErrRoomNotFound or callerr.ErrRoomFull. Leave and
// Drop are idempotent; a room that becomes empty is deleted only after the
// store's grace period unless a join arrives first.
type Store interface {
	Create(ctx context.Context) (string, error)
	Join(ctx context.Context, roomID, participantID string) (JoinResult, error)
	Leave(ctx context.Context, roomID, participantID string) (LeaveResult, error)
	Drop(ctx context.Context, participantID string) (LeaveResult, error)
	Get(ctx context.Context, roomID string) (Room, error)
}

// newRoomID returns an 8 character lowercase hex token.
func newRoomID() string {
	return uuid.NewString()[:8]
}

func without(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	removed := false
	for _, p := range ids {
		if p == id {
			removed = true
			continue
		}
		out = append(out, p)
	}
	return out, removed
}
