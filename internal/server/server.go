package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/lox/pokerlobby/internal/lobby"
)

// Server accepts websocket connections and runs one Connection per client.
// There is no cap on concurrent connections; every connection shares the one
// Registry.
type Server struct {
	upgrader    websocket.Upgrader
	registry    *lobby.Registry
	logger      *log.Logger
	clock       quartz.Clock
	limits      Limits
	echo        bool
	httpServer  *http.Server
	connections map[*Connection]struct{}
	closing     bool // set by Shutdown; later upgrades are refused
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithClock sets the clock used for connection keepalives
func WithClock(c quartz.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLimits sets per-connection limits
func WithLimits(l Limits) Option {
	return func(s *Server) { s.limits = l }
}

// WithEcho toggles the legacy message echo
func WithEcho(enabled bool) Option {
	return func(s *Server) { s.echo = enabled }
}

// NewServer creates a new WebSocket server around registry
func NewServer(registry *lobby.Registry, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Clients are terminals, not browsers
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		registry:    registry,
		logger:      logger.WithPrefix("server"),
		clock:       quartz.NewReal(),
		limits:      DefaultLimits(),
		echo:        true,
		connections: make(map[*Connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{Handler: s.Handler()}
	return s
}

// Handler returns the HTTP handler serving websocket upgrades on / and /ws
// alongside /health and /rooms
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/rooms", s.handleRooms)
	return mux
}

// Start binds addr and serves until Shutdown. Failing to bind is returned
// before any connection is accepted.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting WebSocket server", "addr", l.Addr().String())
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, closes every open connection and
// waits for their handlers to release their seats
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	open := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		open = append(open, conn)
	}
	s.mu.Unlock()

	for _, conn := range open {
		_ = conn.Close() // Ignore close errors during shutdown
	}

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// ConnectionCount returns the number of open connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// handleWebSocket handles WebSocket upgrade requests and runs the connection
// on the request goroutine
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.registry, s.logger, s.clock, s.limits, s.echo)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.logger.Debug("Refusing connection during shutdown", "remote", conn.RemoteAddr().String())
		_ = client.Close()
		return
	}
	// Added under mu so Shutdown's Wait never races a new registration
	s.wg.Add(1)
	s.connections[client] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	defer s.wg.Done()
	s.logger.Info("Client connected", "remote", conn.RemoteAddr().String(), "total", total)

	client.Serve()

	s.mu.Lock()
	delete(s.connections, client)
	total = len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client disconnected", "remote", conn.RemoteAddr().String(), "total", total)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

// handleRooms lists active rooms as JSON
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"rooms":       s.registry.Rooms(),
		"connections": s.ConnectionCount(),
	}); err != nil {
		s.logger.Error("Failed to encode rooms", "error", err)
	}
}
