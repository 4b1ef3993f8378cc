package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warptalk/internal/callerr"
	"github.com/BioHazard786/Warptalk/internal/dns"
)

const handshakeTimeout = 10 * time.Second

// Client manages the websocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *Message
	outgoing  chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *Message, 16),
		outgoing:  make(chan *Message, 16),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: handshakeTimeout,
		Proxy:            websocket.DefaultDialer.Proxy,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the websocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the websocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the server.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return callerr.New("send "+msg.Type, callerr.ErrNotConnected)
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return callerr.New("send "+msg.Type, callerr.ErrNotConnected)
	}
}

// CreateRoom asks the server for a fresh room.
func (c *Client) CreateRoom() error {
	return c.Send(&Message{Type: TypeCreateRoom})
}

// JoinRoom asks the server to add this connection to roomID.
func (c *Client) JoinRoom(roomID string) error {
	return c.Send(&Message{Type: TypeJoinRoom, RoomID: roomID})
}

// LeaveRoom removes this connection from roomID.
func (c *Client) LeaveRoom(roomID string) error {
	return c.Send(&Message{Type: TypeLeaveRoom, RoomID: roomID})
}

// Relay sends an offer, answer or ICE candidate to targetUserID.
func (c *Client) Relay(msgType, roomID, targetUserID string, payload any) error {
	if !IsRelayed(msgType) {
		return callerr.Wrap("relay", callerr.ErrUnexpectedSignal, msgType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}

	return c.Send(&Message{
		Type:         msgType,
		RoomID:       roomID,
		TargetUserID: targetUserID,
		Payload:      data,
	})
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection drops.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Close closes the websocket connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
