package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/signaling"
	"github.com/BioHazard786/Warptalk/internal/version"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Callers are unauthenticated; any origin may open a socket.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter builds the HTTP surface for hub.
func NewRouter(hub *signaling.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", health)
	r.GET("/ws", serveWS(hub))
	r.GET("/rooms/:id", getRoom(hub))

	return r
}

func health(c *gin.Context) {
	c.String(http.StatusOK, "Signaling server is healthy. version=%s protocol=%s", version.Version, version.Protocol)
}

// serveWS upgrades the request and hands the socket to the hub. The handler
// returns when the socket closes.
func serveWS(hub *signaling.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "err", err, "ip", c.ClientIP())
			return
		}
		signaling.NewConn(hub, ws).Serve()
	}
}

func getRoom(hub *signaling.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, err := hub.Store().Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, callerr.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": callerr.ErrRoomNotFound.Error()})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": http.StatusText(http.StatusInternalServerError)})
			return
		}
		if room.Participants == nil {
			room.Participants = []string{}
		}
		c.JSON(http.StatusOK, room)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.Error("request", attrs...)
		case status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Debug("request", attrs...)
		}
	}
}
