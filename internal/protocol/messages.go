package protocol

// Type identifies the kind of event carried by an envelope
type Type string

const (
	// Client -> Server
	TypeCreateGame Type = "create_game"
	TypeCreate     Type = "create" // legacy alias of create_game
	TypeJoinGame   Type = "join_game"
	TypeJoin       Type = "join" // legacy alias of join_game
	TypeMessage    Type = "message"

	// Server -> Client
	TypeGameCreated  Type = "game_created"
	TypeGameJoined   Type = "game_joined"
	TypePlayerJoined Type = "player_joined"
	TypePlayerLeft   Type = "player_left"
	TypeHostChanged  Type = "host_changed"
	TypeError        Type = "error"
)

// FromClient reports whether clients send events of this type
func (t Type) FromClient() bool {
	switch t {
	case TypeCreateGame, TypeCreate, TypeJoinGame, TypeJoin, TypeMessage:
		return true
	}
	return false
}

// String returns the wire form of the type
func (t Type) String() string {
	return string(t)
}

// Event is a decoded envelope. Each concrete kind carries its own field set.
type Event interface {
	EventType() Type
}

// Client -> Server Events

// CreateGame asks the server to open a new room with the sender as host
type CreateGame struct {
	Name string `json:"name"`

	// Alias records whether the legacy "create" type was used on the wire
	Alias bool `json:"-"`
}

func (e *CreateGame) EventType() Type {
	if e.Alias {
		return TypeCreate
	}
	return TypeCreateGame
}

// JoinGame asks the server to seat the sender in the room with Code
type JoinGame struct {
	Code string `json:"code"`
	Name string `json:"name"`

	Alias bool `json:"-"`
}

func (e *JoinGame) EventType() Type {
	if e.Alias {
		return TypeJoin
	}
	return TypeJoinGame
}

// Message is the legacy echo request
type Message struct {
	Message string `json:"message"`
}

func (e *Message) EventType() Type { return TypeMessage }

// Server -> Client Events

type GameCreated struct {
	Code string `json:"code"`
}

func (e *GameCreated) EventType() Type { return TypeGameCreated }

// GameJoined is the full room snapshot sent to a player when they enter a room
type GameJoined struct {
	YourID  string       `json:"your_id"`
	Code    string       `json:"code"`
	Players []PlayerInfo `json:"players"`
}

func (e *GameJoined) EventType() Type { return TypeGameJoined }

// PlayerInfo describes one room member in join order
type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

type PlayerJoined struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e *PlayerJoined) EventType() Type { return TypePlayerJoined }

type PlayerLeft struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

func (e *PlayerLeft) EventType() Type { return TypePlayerLeft }

// HostChanged is broadcast when the host leaves and the next player is promoted
type HostChanged struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e *HostChanged) EventType() Type { return TypeHostChanged }

type Error struct {
	Message string `json:"message"`
}

func (e *Error) EventType() Type { return TypeError }

// Unrecognized holds any envelope whose type has no built-in handling
type Unrecognized struct {
	Type Type
	Data map[string]any
}

func (e *Unrecognized) EventType() Type { return e.Type }

// EchoReply is the legacy reply to a Message. It is not wrapped in an envelope.
type EchoReply struct {
	Response string `json:"response"`
}
