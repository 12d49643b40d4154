package lobby

import (
	"time"

	"github.com/lox/pokerlobby/internal/protocol"
)

// Conn is the transport handle a Player sends through. The registry never
// closes it; its lifecycle belongs to the connection handler. Implementations
// must be comparable (pointer types).
type Conn interface {
	Send(frame []byte) error
}

// Player is one seated participant
type Player struct {
	ID       string
	Name     string
	IsHost   bool
	JoinedAt time.Time

	conn Conn
}

// Conn returns the player's transport handle
func (p Player) Conn() Conn {
	return p.conn
}

// Info converts the player into its wire form
func (p Player) Info() protocol.PlayerInfo {
	return protocol.PlayerInfo{ID: p.ID, Name: p.Name, IsHost: p.IsHost}
}
