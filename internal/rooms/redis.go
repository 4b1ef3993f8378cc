package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

const (
	roomKeyPrefix   = "warptalk:room:"
	participantsKey = "warptalk:participants"
	maxTxRetries    = 8
)

// RedisStore keeps rooms in Redis so several signaling replicas can share
// them. An empty room carries a TTL equal to the grace period; a join
// removes the TTL.
type RedisStore struct {
	rdb   *redis.Client
	grace time.Duration
}

// Dial connects to addr, which is either a redis:// URL or a bare host:port.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	var rdb *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *redis.Client, grace time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, grace: grace}
}

func roomKey(id string) string { return roomKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	for i := 0; i < maxTxRetries; i++ {
		id := newRoomID()
		data, err := msgpack.Marshal(&Room{ID: id, CreatedAt: time.Now()})
		if err != nil {
			return "", err
		}

		ok, err := s.rdb.SetNX(ctx, roomKey(id), data, s.grace).Result()
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}
		if ok {
			slog.Info("room created", "room_id", id, "store", "redis")
			return id, nil
		}
	}
	return "", errors.New("create room: could not allocate a free room id")
}

func (s *RedisStore) Join(ctx context.Context, roomID, participantID string) (JoinResult, error) {
	var result JoinResult
	key := roomKey(roomID)

	err := s.retry(ctx, func(tx *redis.Tx) error {
		room, err := s.load(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if slices.Contains(room.Participants, participantID) {
			result = JoinResult{RoomID: roomID, Existing: otherThan(room.Participants, participantID)}
			return nil
		}
		if len(room.Participants) >= Capacity {
			return callerr.Wrap("join room", callerr.ErrRoomFull, roomID)
		}

		existing := slices.Clone(room.Participants)
		room.Participants = append(room.Participants, participantID)
		data, err := msgpack.Marshal(room)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.HSet(ctx, participantsKey, participantID, roomID)
			return nil
		})
		if err != nil {
			return err
		}
		result = JoinResult{RoomID: roomID, Existing: existing, Added: true}
		return nil
	}, key)

	return result, err
}

func (s *RedisStore) Leave(ctx context.Context, roomID, participantID string) (LeaveResult, error) {
	result := LeaveResult{RoomID: roomID}
	key := roomKey(roomID)

	err := s.retry(ctx, func(tx *redis.Tx) error {
		room, err := s.load(ctx, tx, roomID)
		if errors.Is(err, callerr.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		remaining, removed := without(room.Participants, participantID)
		if !removed {
			result = LeaveResult{RoomID: roomID, Remaining: remaining}
			return nil
		}
		room.Participants = remaining
		data, err := msgpack.Marshal(room)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			ttl := time.Duration(0)
			if len(remaining) == 0 {
				ttl = s.grace
			}
			pipe.Set(ctx, key, data, ttl)
			pipe.HDel(ctx, participantsKey, participantID)
			return nil
		})
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			slog.Info("room scheduled for deletion", "room_id", roomID, "after", s.grace, "store", "redis")
		}
		result = LeaveResult{RoomID: roomID, Removed: true, Remaining: remaining}
		return nil
	}, key)

	return result, err
}

func (s *RedisStore) Drop(ctx context.Context, participantID string) (LeaveResult, error) {
	roomID, err := s.rdb.HGet(ctx, participantsKey, participantID).Result()
	if errors.Is(err, redis.Nil) {
		return LeaveResult{}, nil
	}
	if err != nil {
		return LeaveResult{}, fmt.Errorf("drop participant: %w", err)
	}
	return s.Leave(ctx, roomID, participantID)
}

func (s *RedisStore) Get(ctx context.Context, roomID string) (Room, error) {
	room, err := s.load(ctx, s.rdb, roomID)
	if err != nil {
		return Room{}, err
	}
	return *room, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, g getter, roomID string) (*Room, error) {
	data, err := g.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, callerr.Wrap("get room", callerr.ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}

	var room Room
	if err := msgpack.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &room, nil
}

// retry runs fn under WATCH on keys, retrying when another writer wins.
func (s *RedisStore) retry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("room update: %w", redis.TxFailedErr)
}
