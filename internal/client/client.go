package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/pokerlobby/internal/protocol"
)

const writeWait = 10 * time.Second

var ErrNotConnected = errors.New("not connected")

// Client is a websocket client for the lobby server
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan []byte
	events    chan protocol.Event
	echoes    chan string
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewClient creates a new client for serverURL. ws, wss, http and https
// schemes are accepted.
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL: serverURL,
		send:      make(chan []byte, 256),
		events:    make(chan protocol.Event, 256),
		echoes:    make(chan string, 16),
		logger:    logger.WithPrefix("client"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect establishes the websocket connection
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	go c.readPump()
	go c.writePump()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the connection. Events() is closed once the read side
// has stopped.
func (c *Client) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn == nil {
			return
		}
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
		c.logger.Info("Disconnected from server")
	})
	return err
}

// Events delivers every envelope received from the server in order
func (c *Client) Events() <-chan protocol.Event {
	return c.events
}

// Echoes delivers legacy echo replies
func (c *Client) Echoes() <-chan string {
	return c.echoes
}

// Send encodes and queues an event
func (c *Client) Send(e protocol.Event) error {
	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	return c.SendRaw(frame)
}

// SendRaw queues a frame as-is
func (c *Client) SendRaw(frame []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	select {
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// CreateGame asks the server for a new room
func (c *Client) CreateGame(name string) error {
	return c.Send(&protocol.CreateGame{Name: name})
}

// JoinGame asks to join the room with code
func (c *Client) JoinGame(code, name string) error {
	return c.Send(&protocol.JoinGame{Code: code, Name: name})
}

// SendMessage sends a legacy echo message
func (c *Client) SendMessage(text string) error {
	return c.Send(&protocol.Message{Message: text})
}

// WaitFor reads events until one of type t arrives. Events of other types
// read along the way are discarded.
func (c *Client) WaitFor(ctx context.Context, t protocol.Type) (protocol.Event, error) {
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				return nil, ErrNotConnected
			}
			if e.EventType() == t {
				return e, nil
			}
			c.logger.Debug("Skipping event", "type", e.EventType(), "want", t)
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for %s: %w", t, ctx.Err())
		}
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		close(c.events)
		close(c.echoes)
		c.cancel()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && c.ctx.Err() == nil {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		event, err := protocol.Decode(frame)
		if err != nil {
			var reply protocol.EchoReply
			if json.Unmarshal(frame, &reply) == nil && reply.Response != "" {
				select {
				case c.echoes <- reply.Response:
				case <-c.ctx.Done():
					return
				}
				continue
			}
			c.logger.Warn("Dropping unreadable frame", "error", err)
			continue
		}

		c.logger.Debug("Received event", "type", event.EventType())

		select {
		case c.events <- event:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
