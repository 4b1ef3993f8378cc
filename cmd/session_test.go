package cmd

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/config"
	"github.com/BioHazard786/Warptalk/internal/rooms"
	"github.com/BioHazard786/Warptalk/internal/server"
	"github.com/BioHazard786/Warptalk/internal/signaling"
)

func startServer(t *testing.T) (*config.Config, rooms.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := rooms.NewMemoryStore(time.Minute)
	hub := signaling.NewHub(store)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	cfg, err := config.Load(config.Options{Server: srv.URL})
	require.NoError(t, err)
	return cfg, store
}

func TestProbeRoom(t *testing.T) {
	cfg, store := startServer(t)
	ctx := context.Background()

	err := probeRoom(ctx, cfg, "deadbeef")
	require.ErrorIs(t, err, callerr.ErrRoomNotFound)

	id, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, probeRoom(ctx, cfg, id))

	_, err = store.Join(ctx, id, "a")
	require.NoError(t, err)
	_, err = store.Join(ctx, id, "b")
	require.NoError(t, err)
	require.ErrorIs(t, probeRoom(ctx, cfg, id), callerr.ErrRoomFull)
}

func TestNewConnectionContext(t *testing.T) {
	cfg, _ := startServer(t)

	conn, err := NewConnectionContext(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()
	require.NotEmpty(t, conn.Handler.SelfID())

	require.NoError(t, conn.Client.CreateRoom())
	select {
	case ev := <-conn.Handler.Events():
		require.Equal(t, signaling.TypeRoomCreated, ev.Type)
		require.Len(t, ev.RoomID, 8)
	case <-time.After(2 * time.Second):
		t.Fatal("no room-created event")
	}
}

func TestNewConnectionContext_Unreachable(t *testing.T) {
	cfg, err := config.Load(config.Options{Server: "ws://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = NewConnectionContext(context.Background(), cfg)
	require.ErrorIs(t, err, callerr.ErrNotConnected)
}
