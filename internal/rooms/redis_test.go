package rooms

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warptalk/internal/callerr"
)

func newRedisStore(t *testing.T, grace time.Duration) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}

	rdb, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb, grace)
}

func TestRedisStore_JoinLeave(t *testing.T) {
	s := newRedisStore(t, time.Minute)
	ctx := context.Background()

	id, err := s.Create(ctx)
	require.NoError(t, err)

	res, err := s.Join(ctx, id, "alice")
	require.NoError(t, err)
	require.Empty(t, res.Existing)

	res, err = s.Join(ctx, id, "bob")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, res.Existing)
	require.True(t, res.Added)

	res, err = s.Join(ctx, id, "bob")
	require.NoError(t, err)
	require.False(t, res.Added)

	_, err = s.Join(ctx, id, "carol")
	require.ErrorIs(t, err, callerr.ErrRoomFull)

	ttl, err := s.rdb.TTL(ctx, roomKey(id)).Result()
	require.NoError(t, err)
	require.Equal(t, time.Duration(-1), ttl)

	left, err := s.Drop(ctx, "bob")
	require.NoError(t, err)
	require.True(t, left.Removed)
	require.Equal(t, []string{"alice"}, left.Remaining)

	left, err = s.Leave(ctx, id, "alice")
	require.NoError(t, err)
	require.Empty(t, left.Remaining)

	ttl, err = s.rdb.TTL(ctx, roomKey(id)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	// Joining again removes the pending expiry.
	_, err = s.Join(ctx, id, "dave")
	require.NoError(t, err)
	ttl, err = s.rdb.TTL(ctx, roomKey(id)).Result()
	require.NoError(t, err)
	require.Equal(t, time.Duration(-1), ttl)

	_, _ = s.Leave(ctx, id, "dave")
}

func TestRedisStore_Expires(t *testing.T) {
	s := newRedisStore(t, 100*time.Millisecond)
	ctx := context.Background()

	id, err := s.Create(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.Get(ctx, id)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)

	_, err = s.Join(ctx, id, "alice")
	require.ErrorIs(t, err, callerr.ErrRoomNotFound)
}
