package lobby

import (
	"time"

	"github.com/lox/pokerlobby/internal/protocol"
)

// room is owned by the Registry and only touched with the registry lock held
type room struct {
	code      string
	createdAt time.Time
	players   []*Player // join order, index 0 is the host
}

func newRoom(code string, now time.Time) *room {
	return &room{code: code, createdAt: now}
}

func (r *room) add(p *Player) {
	p.IsHost = len(r.players) == 0
	r.players = append(r.players, p)
}

// remove drops the player holding conn. If the host left, the next player in
// join order is promoted and returned as newHost.
func (r *room) remove(conn Conn) (removed *Player, newHost *Player) {
	for i, p := range r.players {
		if p.conn != conn {
			continue
		}
		r.players = append(r.players[:i], r.players[i+1:]...)
		if p.IsHost && len(r.players) > 0 {
			r.players[0].IsHost = true
			newHost = r.players[0]
		}
		return p, newHost
	}
	return nil, nil
}

func (r *room) snapshot() RoomSnapshot {
	players := make([]Player, len(r.players))
	for i, p := range r.players {
		players[i] = *p
	}
	return RoomSnapshot{Code: r.code, CreatedAt: r.createdAt, Players: players}
}

// RoomSnapshot is a copy of a room's state taken under the registry lock
type RoomSnapshot struct {
	Code      string
	CreatedAt time.Time
	Players   []Player
}

// Host returns the host of the room, if any
func (s RoomSnapshot) Host() (Player, bool) {
	if len(s.Players) == 0 {
		return Player{}, false
	}
	return s.Players[0], true
}

// PlayerInfos lists the members in join order in wire form
func (s RoomSnapshot) PlayerInfos() []protocol.PlayerInfo {
	infos := make([]protocol.PlayerInfo, len(s.Players))
	for i, p := range s.Players {
		infos[i] = p.Info()
	}
	return infos
}

// Joined builds the game_joined snapshot for the player with id you
func (s RoomSnapshot) Joined(you string) *protocol.GameJoined {
	return &protocol.GameJoined{YourID: you, Code: s.Code, Players: s.PlayerInfos()}
}

// RoomSummary is the listing form of a room
type RoomSummary struct {
	Code      string    `json:"code"`
	Players   int       `json:"players"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"created_at"`
}
