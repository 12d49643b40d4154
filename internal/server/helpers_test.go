package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokerlobby/internal/lobby"
	"github.com/lox/pokerlobby/internal/protocol"
)

const readTimeout = 2 * time.Second

// testLogger creates a logger that discards output for tests
func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type testServer struct {
	srv      *Server
	registry *lobby.Registry
	http     *httptest.Server
	wsURL    string
}

func startTestServer(t *testing.T, regOpts []lobby.Option, opts ...Option) *testServer {
	t.Helper()

	registry := lobby.NewRegistry(testLogger(), regOpts...)
	srv := NewServer(registry, testLogger(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{
		srv:      srv,
		registry: registry,
		http:     ts,
		wsURL:    "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "failed to dial %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err, "expected a frame from the server")
	return frame
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()

	event, err := protocol.Decode(readFrame(t, conn))
	require.NoError(t, err)
	return event
}

func readAs[T protocol.Event](t *testing.T, conn *websocket.Conn) T {
	t.Helper()

	event := readEvent(t, conn)
	typed, ok := event.(T)
	require.True(t, ok, "unexpected event %T: %+v", event, event)
	return typed
}

// createGame runs the create handshake and returns the joined snapshot
func createGame(t *testing.T, conn *websocket.Conn, name string) *protocol.GameJoined {
	t.Helper()

	sendRaw(t, conn, `{"type":"create_game","data":{"name":"`+name+`"}}`)
	joined := readAs[*protocol.GameJoined](t, conn)
	created := readAs[*protocol.GameCreated](t, conn)
	require.Equal(t, joined.Code, created.Code)
	return joined
}

func joinGame(t *testing.T, conn *websocket.Conn, code, name string) {
	t.Helper()
	sendRaw(t, conn, `{"type":"join_game","data":{"code":"`+code+`","name":"`+name+`"}}`)
}
