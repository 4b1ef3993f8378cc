package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warptalk/internal/config"
	"github.com/BioHazard786/Warptalk/internal/logging"
	"github.com/BioHazard786/Warptalk/internal/rooms"
	"github.com/BioHazard786/Warptalk/internal/server"
	"github.com/BioHazard786/Warptalk/internal/signaling"
)

const shutdownTimeout = 10 * time.Second

var (
	flagAddr     string
	flagGrace    time.Duration
	flagRedisURL string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the room registry and signaling relay.

Examples:
  warptalk serve
  warptalk serve --addr :9000 --grace 2m
  warptalk serve --redis redis://localhost:6379/0`,
	PreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(slog.LevelInfo)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOptions{
			Addr:        flagAddr,
			GracePeriod: flagGrace,
			RedisURL:    flagRedisURL,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func openStore(ctx context.Context, cfg *config.ServerConfig) (rooms.Store, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("using in-memory room store", "grace", cfg.GracePeriod)
		return rooms.NewMemoryStore(cfg.GracePeriod), func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rdb, err := rooms.Dial(dialCtx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using redis room store", "grace", cfg.GracePeriod)
	return rooms.NewRedisStore(rdb, cfg.GracePeriod), func() { _ = rdb.Close() }, nil
}

func serve(ctx context.Context, cfg *config.ServerConfig) error {
	gin.SetMode(cfg.GinMode)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := signaling.NewHub(store)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("signaling server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}

	stopHub()
	<-hubDone

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default :8080, or :$PORT)")
	serveCmd.Flags().DurationVarP(&flagGrace, "grace", "g", 0, "How long an empty room is kept (default 5m)")
	serveCmd.Flags().StringVar(&flagRedisURL, "redis", "", "Redis URL for a shared room store")
}
