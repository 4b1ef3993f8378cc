package signaling

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates fits.
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Conn is the server side of one participant's websocket.
type Conn struct {
	// ID is the participant id, fresh for every connection.
	ID string

	hub  *Hub
	ws   *websocket.Conn
	send chan *Message

	// roomID is owned by the hub goroutine.
	roomID string
}

// NewConn wraps an upgraded websocket for hub.
func NewConn(hub *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:   uuid.NewString(),
		hub:  hub,
		ws:   ws,
		send: make(chan *Message, sendBuffer),
	}
}

// Serve registers the connection and runs its pumps until the socket closes.
func (c *Conn) Serve() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		c.ws.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the websocket connection to the hub.
//
// There is at most one reader on a connection; all reads happen here.
func (c *Conn) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "user_id", c.ID, "err", err)
			}
			return
		}

		msg.conn = c
		select {
		case c.hub.inbound <- &msg:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// There is at most one writer on a connection; all writes happen here.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				slog.Warn("websocket write failed", "user_id", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
