package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/lox/pokerlobby/internal/lobby"
	"github.com/lox/pokerlobby/internal/protocol"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Limits bounds the resources a single connection may use
type Limits struct {
	// SendBuffer is the number of outbound frames queued before the peer is
	// considered stalled and dropped
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration // must be less than PongWait
}

// DefaultLimits returns the limits used when none are configured
func DefaultLimits() Limits {
	return DefaultServerConfig().Limits()
}

// Connection is one client websocket. It implements lobby.Conn.
type Connection struct {
	conn      *websocket.Conn
	send      chan []byte
	registry  *lobby.Registry
	logger    *log.Logger
	clock     quartz.Clock
	limits    Limits
	echo      bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, registry *lobby.Registry, logger *log.Logger, clock quartz.Clock, limits Limits, echo bool) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:     conn,
		send:     make(chan []byte, limits.SendBuffer),
		registry: registry,
		logger:   logger.WithPrefix("conn").With("remote", conn.RemoteAddr().String()),
		clock:    clock,
		limits:   limits,
		echo:     echo,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Serve handles the connection until the peer goes away, then releases the
// player's seat. It blocks.
func (c *Connection) Serve() {
	go c.writePump()
	c.readPump()

	if d, ok := c.registry.Leave(c); ok {
		c.logger.Info("Released seat", "code", d.Code, "player", d.Player.ID, "roomClosed", d.RoomClosed)
	}
	_ = c.Close()
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		// Deadlines are wall clock because net.Conn compares against time.Now
		deadline := time.Now().Add(c.limits.WriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

// Send queues a frame for the client without blocking. A peer that lets its
// buffer fill up is disconnected.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		// Send may run under the registry lock; closing writes to the socket
		go func() { _ = c.Close() }()
		return ErrSendBufferFull
	}
}

// SendEvent encodes and queues an event
func (c *Connection) SendEvent(e protocol.Event) error {
	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// readPump handles incoming messages from the client, one at a time
func (c *Connection) readPump() {
	c.conn.SetReadLimit(c.limits.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.limits.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.limits.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("Connection closed normally")
			case c.ctx.Err() != nil:
				c.logger.Debug("Connection closed locally")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
				c.logger.Warn("WebSocket error", "error", err)
			default:
				c.logger.Info("Connection dropped", "error", err)
			}
			return
		}

		c.handleFrame(raw)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := c.clock.NewTicker(c.limits.PingPeriod, "conn", "ping")
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.limits.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.limits.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleFrame decodes one inbound frame and dispatches it
func (c *Connection) handleFrame(raw []byte) {
	event, err := protocol.Decode(raw)
	if err != nil {
		var invalid *protocol.ValidationError
		if errors.As(err, &invalid) && !invalid.Type.FromClient() {
			c.logger.Debug("Ignoring server event sent by client", "type", invalid.Type)
			return
		}
		if invalid != nil {
			c.logger.Warn("Invalid event", "type", invalid.Type, "field", invalid.Field)
			c.sendError(fmt.Sprintf("Invalid %s request: missing %s.", invalid.Type, invalid.Field))
			return
		}
		c.logger.Warn("Received invalid message, skipping", "error", err)
		return
	}

	c.logger.Debug("Received event", "type", event.EventType())

	switch e := event.(type) {
	case *protocol.CreateGame:
		c.handleCreate(e)
	case *protocol.JoinGame:
		c.handleJoin(e)
	case *protocol.Message:
		c.handleEcho(e)
	default:
		c.logger.Debug("Ignoring unhandled event", "type", event.EventType())
	}
}

func (c *Connection) handleCreate(e *protocol.CreateGame) {
	// The registry sends game_joined and game_created while it holds the room
	room, player, err := c.registry.CreateRoom(e.Name, c)
	if err != nil {
		c.logger.Info("Create game rejected", "name", e.Name, "error", err)
		c.sendError(errorMessage(err))
		return
	}
	c.logger.Debug("Created game", "code", room.Code, "player", player.ID)
}

func (c *Connection) handleJoin(e *protocol.JoinGame) {
	// player_joined and game_joined go out under the registry lock
	room, player, err := c.registry.JoinRoom(e.Code, e.Name, c)
	if err != nil {
		c.logger.Info("Join game rejected", "code", e.Code, "name", e.Name, "error", err)
		c.sendError(errorMessage(err))
		return
	}
	c.logger.Debug("Joined game", "code", room.Code, "player", player.ID, "players", len(room.Players))
}

func (c *Connection) handleEcho(e *protocol.Message) {
	if !c.echo {
		c.logger.Debug("Echo disabled, ignoring message")
		return
	}

	c.logger.Info("Received message", "message", e.Message)
	reply, err := protocol.EncodeEcho(e.Message)
	if err != nil {
		c.logger.Error("Failed to encode echo", "error", err)
		return
	}
	_ = c.Send(reply)
}

// sendError sends an error event to the client
func (c *Connection) sendError(message string) {
	_ = c.SendEvent(&protocol.Error{Message: message}) // Ignore send errors during error handling
}

// errorMessage maps domain errors to the text shown to players
func errorMessage(err error) string {
	switch {
	case errors.Is(err, lobby.ErrRoomNotFound):
		return "Invalid game code."
	case errors.Is(err, lobby.ErrRoomFull):
		return "Game is full."
	case errors.Is(err, lobby.ErrAlreadySeated):
		return "Already in a game."
	case errors.Is(err, lobby.ErrNameRequired):
		return "Player name required."
	case errors.Is(err, lobby.ErrNameTooLong):
		return "Player name is too long."
	case errors.Is(err, lobby.ErrCodeExhausted):
		return "Could not create a game, please try again."
	default:
		return "Request failed."
	}
}
