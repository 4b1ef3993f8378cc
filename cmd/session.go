package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/config"
	"github.com/BioHazard786/Warptalk/internal/dns"
	"github.com/BioHazard786/Warptalk/internal/logging"
	"github.com/BioHazard786/Warptalk/internal/negotiation"
	"github.com/BioHazard786/Warptalk/internal/rooms"
	"github.com/BioHazard786/Warptalk/internal/signaling"
	"github.com/BioHazard786/Warptalk/internal/ui"
)

const welcomeTimeout = 10 * time.Second

// ConnectionContext is an open signaling connection plus its event router.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()

	client := signaling.NewClient(cfg.WebSocketURL)
	if err := client.Connect(ctx); err != nil {
		return nil, callerr.Wrap("connect to server", callerr.ErrNotConnected, err.Error())
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	select {
	case <-handler.Ready():
	case <-time.After(welcomeTimeout):
		client.Close()
		return nil, callerr.Wrap("connect to server", callerr.ErrNotConnected, "no welcome from server")
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}

	slog.Debug("connected to signaling server", "user_id", handler.SelfID())
	return &ConnectionContext{Client: client, Handler: handler, Config: cfg}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// probeRoom checks a room over HTTP before we bother acquiring the
// microphone, so a mistyped id fails fast.
func probeRoom(ctx context.Context, cfg *config.Config, roomID string) error {
	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DialContext: dns.DialContext},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.GetRoomURL(roomID), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		// The websocket join reports the real outcome.
		slog.Debug("room probe failed", "room_id", roomID, "err", err)
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return callerr.Wrap("join room", callerr.ErrRoomNotFound, roomID)
	case http.StatusOK:
	default:
		return nil
	}

	var room rooms.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil
	}
	if len(room.Participants) >= rooms.Capacity {
		return callerr.Wrap("join room", callerr.ErrRoomFull, roomID)
	}
	return nil
}

func newLinkFactory(cfg *config.Config) (*negotiation.PionFactory, error) {
	api, err := negotiation.NewAPI(logging.PionFactory(slog.LevelError, os.Stderr), nil)
	if err != nil {
		return nil, fmt.Errorf("create webrtc api: %w", err)
	}
	return negotiation.NewPionFactory(api, negotiation.ICEConfiguration(cfg)), nil
}
