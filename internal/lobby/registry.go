package lobby

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/lox/pokerlobby/internal/protocol"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadySeated = errors.New("connection is already in a room")
	ErrNameRequired  = errors.New("player name required")
	ErrNameTooLong   = errors.New("player name too long")
	ErrCodeExhausted = errors.New("could not generate a unique room code")
)

const (
	DefaultMaxCodeAttempts = 16
	DefaultMaxNameLength   = 32
)

// Registry owns every active room. A single mutex serialises create, join,
// leave and broadcast across all rooms; Conn.Send must not block.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	seats map[Conn]string // conn -> room code

	codes           *CodeGenerator
	maxCodeAttempts int
	maxPlayers      int
	maxNameLength   int
	clock           quartz.Clock
	newID           func() string
	logger          *log.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithCodeGenerator sets the room code source
func WithCodeGenerator(g *CodeGenerator) Option {
	return func(r *Registry) { r.codes = g }
}

// WithMaxCodeAttempts bounds retries when a generated code is already in use
func WithMaxCodeAttempts(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxCodeAttempts = n
		}
	}
}

// WithMaxPlayers caps room size. Zero means unlimited.
func WithMaxPlayers(n int) Option {
	return func(r *Registry) { r.maxPlayers = n }
}

// WithMaxNameLength caps display names, counted in runes
func WithMaxNameLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxNameLength = n
		}
	}
}

// WithClock sets the clock used for join and creation times
func WithClock(c quartz.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithIDGenerator replaces the player id source
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// NewRegistry creates an empty registry
func NewRegistry(logger *log.Logger, opts ...Option) *Registry {
	r := &Registry{
		rooms:           make(map[string]*room),
		seats:           make(map[Conn]string),
		codes:           NewCodeGenerator(DefaultCodeBytes, nil),
		maxCodeAttempts: DefaultMaxCodeAttempts,
		maxNameLength:   DefaultMaxNameLength,
		clock:           quartz.NewReal(),
		newID:           uuid.NewString,
		logger:          logger.WithPrefix("lobby"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom opens a room under a fresh code with the requester as host and
// sends the requester game_joined followed by game_created
func (r *Registry) CreateRoom(name string, conn Conn) (RoomSnapshot, Player, error) {
	name, err := r.checkName(name)
	if err != nil {
		return RoomSnapshot{}, Player{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if code, seated := r.seats[conn]; seated {
		return RoomSnapshot{}, Player{}, fmt.Errorf("%w: %s", ErrAlreadySeated, code)
	}

	code, err := r.freshCodeLocked()
	if err != nil {
		return RoomSnapshot{}, Player{}, err
	}

	rm := newRoom(code, r.clock.Now())
	p := r.newPlayer(name, conn)
	rm.add(p)
	r.rooms[code] = rm
	r.seats[conn] = code

	snap := rm.snapshot()
	r.sendLocked(rm, p, snap.Joined(p.ID))
	r.sendLocked(rm, p, &protocol.GameCreated{Code: code})

	r.logger.Info("Room created", "code", code, "host", p.ID, "name", p.Name, "rooms", len(r.rooms))
	return snap, *p, nil
}

// JoinRoom seats the requester in the room with exactly this code. The other
// members receive player_joined and the requester receives game_joined within
// the same critical section.
func (r *Registry) JoinRoom(code, name string, conn Conn) (RoomSnapshot, Player, error) {
	name, err := r.checkName(name)
	if err != nil {
		return RoomSnapshot{}, Player{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, seated := r.seats[conn]; seated {
		return RoomSnapshot{}, Player{}, fmt.Errorf("%w: %s", ErrAlreadySeated, current)
	}

	rm, ok := r.rooms[code]
	if !ok {
		return RoomSnapshot{}, Player{}, ErrRoomNotFound
	}
	if r.maxPlayers > 0 && len(rm.players) >= r.maxPlayers {
		return RoomSnapshot{}, Player{}, ErrRoomFull
	}

	p := r.newPlayer(name, conn)
	rm.add(p)
	r.seats[conn] = code

	// Members hear about the joiner and the joiner gets its snapshot before any
	// later change to the room can be broadcast
	snap := rm.snapshot()
	r.broadcastLocked(rm, &protocol.PlayerJoined{ID: p.ID, Name: p.Name}, conn)
	r.sendLocked(rm, p, snap.Joined(p.ID))

	r.logger.Info("Player joined room", "code", code, "player", p.ID, "name", p.Name, "players", len(rm.players))
	return snap, *p, nil
}

// Departure describes the effect of a Leave
type Departure struct {
	Code       string
	Player     Player
	NewHost    *Player
	RoomClosed bool
}

// Leave removes the player seated through conn, notifies the rest of the room
// and drops the room once it is empty. Unknown connections are ignored.
func (r *Registry) Leave(conn Conn) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, seated := r.seats[conn]
	if !seated {
		return Departure{}, false
	}
	delete(r.seats, conn)

	rm, ok := r.rooms[code]
	if !ok {
		return Departure{}, false
	}

	removed, promoted := rm.remove(conn)
	if removed == nil {
		return Departure{}, false
	}

	d := Departure{Code: code, Player: *removed}

	if len(rm.players) == 0 {
		delete(r.rooms, code)
		d.RoomClosed = true
		r.logger.Info("Room closed", "code", code, "rooms", len(r.rooms))
		return d, true
	}

	r.broadcastLocked(rm, &protocol.PlayerLeft{PlayerID: removed.ID, PlayerName: removed.Name}, nil)
	if promoted != nil {
		np := *promoted
		d.NewHost = &np
		r.broadcastLocked(rm, &protocol.HostChanged{ID: np.ID, Name: np.Name}, nil)
		r.logger.Info("Host promoted", "code", code, "host", np.ID, "name", np.Name)
	}

	r.logger.Info("Player left room", "code", code, "player", removed.ID, "players", len(rm.players))
	return d, true
}

// Broadcast sends event to every member of the room except exclude and
// returns the number of successful deliveries
func (r *Registry) Broadcast(code string, event protocol.Event, exclude Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return 0
	}
	return r.broadcastLocked(rm, event, exclude)
}

func (r *Registry) broadcastLocked(rm *room, event protocol.Event, exclude Conn) int {
	frame, err := protocol.Encode(event)
	if err != nil {
		r.logger.Error("Failed to encode broadcast", "code", rm.code, "type", event.EventType(), "error", err)
		return 0
	}

	sent := 0
	for _, p := range rm.players {
		if exclude != nil && p.conn == exclude {
			continue
		}
		if err := p.conn.Send(frame); err != nil {
			r.logger.Warn("Failed to deliver event", "code", rm.code, "type", event.EventType(), "player", p.ID, "error", err)
			continue
		}
		sent++
	}

	r.logger.Debug("Broadcasted event to room", "code", rm.code, "type", event.EventType(), "recipients", sent)
	return sent
}

func (r *Registry) sendLocked(rm *room, p *Player, event protocol.Event) {
	frame, err := protocol.Encode(event)
	if err != nil {
		r.logger.Error("Failed to encode event", "code", rm.code, "type", event.EventType(), "error", err)
		return
	}
	if err := p.conn.Send(frame); err != nil {
		r.logger.Warn("Failed to deliver event", "code", rm.code, "type", event.EventType(), "player", p.ID, "error", err)
	}
}

// Room returns a snapshot of the room with the given code
func (r *Registry) Room(code string) (RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[code]
	if !ok {
		return RoomSnapshot{}, false
	}
	return rm.snapshot(), true
}

// RoomOf returns the code of the room conn is seated in
func (r *Registry) RoomOf(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.seats[conn]
	return code, ok
}

// Rooms lists active rooms, oldest first
func (r *Registry) Rooms() []RoomSummary {
	r.mu.Lock()
	summaries := make([]RoomSummary, 0, len(r.rooms))
	for _, rm := range r.rooms {
		s := RoomSummary{Code: rm.code, Players: len(rm.players), CreatedAt: rm.createdAt}
		if len(rm.players) > 0 {
			s.Host = rm.players[0].Name
		}
		summaries = append(summaries, s)
	}
	r.mu.Unlock()

	slices.SortFunc(summaries, func(a, b RoomSummary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return summaries
}

// Len returns the number of active rooms
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) freshCodeLocked() (string, error) {
	for attempt := 1; attempt <= r.maxCodeAttempts; attempt++ {
		code := r.codes.Generate()
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
		r.logger.Debug("Room code collision, regenerating", "code", code, "attempt", attempt)
	}
	return "", ErrCodeExhausted
}

func (r *Registry) newPlayer(name string, conn Conn) *Player {
	return &Player{
		ID:       r.newID(),
		Name:     name,
		JoinedAt: r.clock.Now(),
		conn:     conn,
	}
}

func (r *Registry) checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > r.maxNameLength {
		return "", fmt.Errorf("%w: limit is %d characters", ErrNameTooLong, r.maxNameLength)
	}
	return name, nil
}
