package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokerlobby/internal/lobby"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lobby.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8001", cfg.GetServerAddress())
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.True(t, cfg.EchoEnabled())
	assert.Equal(t, 4, cfg.Lobby.CodeBytes)
	assert.Equal(t, 0, cfg.Lobby.MaxPlayers)
}

func TestLoadServerConfig(t *testing.T) {
	path := writeConfig(t, `
server {
  address   = "127.0.0.1"
  port      = 9100
  log_level = "debug"
  echo      = false
}

lobby {
  max_players     = 6
  max_name_length = 16
}

connection {
  send_buffer  = 32
  pong_wait_ms = 1000
}
`)

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9100", cfg.GetServerAddress())
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.False(t, cfg.EchoEnabled())
	assert.Equal(t, 6, cfg.Lobby.MaxPlayers)
	assert.Equal(t, 16, cfg.Lobby.MaxNameLength)
	// Unset values fall back to defaults
	assert.Equal(t, 4, cfg.Lobby.CodeBytes)
	assert.Equal(t, 16, cfg.Lobby.MaxCodeAttempts)

	limits := cfg.Limits()
	assert.Equal(t, 32, limits.SendBuffer)
	assert.Equal(t, int64(8192), limits.MaxMessageSize)
	assert.Equal(t, time.Second, limits.PongWait)
	assert.Equal(t, 900*time.Millisecond, limits.PingPeriod)
	assert.Equal(t, 10*time.Second, limits.WriteWait)

	assert.Len(t, cfg.RegistryOptions(), 4)
}

func TestLoadServerConfigOnlyServerBlock(t *testing.T) {
	path := writeConfig(t, `
server {
  port = 8002
}
`)

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8002", cfg.GetServerAddress())
	assert.Equal(t, 256, cfg.Connection.SendBuffer)
}

func TestLoadServerConfigErrors(t *testing.T) {
	_, err := LoadServerConfig(writeConfig(t, `server {`))
	assert.ErrorContains(t, err, "failed to parse HCL file")

	_, err = LoadServerConfig(writeConfig(t, `server { port = "lots" }`))
	assert.ErrorContains(t, err, "failed to decode HCL")

	_, err = LoadServerConfig(writeConfig(t, `tables { }`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"defaults", func(*ServerConfig) {}, ""},
		{"port too high", func(c *ServerConfig) { c.Server.Port = 70000 }, "invalid port"},
		{"bad log level", func(c *ServerConfig) { c.Server.LogLevel = "loud" }, "invalid log level"},
		{"code too short", func(c *ServerConfig) { c.Lobby.CodeBytes = 2 }, "code bytes"},
		{"code too long", func(c *ServerConfig) { c.Lobby.CodeBytes = 5 }, "code bytes"},
		{"negative players", func(c *ServerConfig) { c.Lobby.MaxPlayers = -1 }, "max players"},
		{"single seat room", func(c *ServerConfig) { c.Lobby.MaxPlayers = 1 }, "max players"},
		{"tiny messages", func(c *ServerConfig) { c.Connection.MaxMessageSize = 10 }, "max message size"},
		{"no send buffer", func(c *ServerConfig) { c.Connection.SendBuffer = -1 }, "send buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type discardConn struct{}

func (*discardConn) Send([]byte) error { return nil }

func TestCodeSeedIsReproducible(t *testing.T) {
	path := writeConfig(t, `
lobby {
  code_seed = 7
}
`)
	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	firstCode := func() string {
		registry := lobby.NewRegistry(testLogger(), cfg.RegistryOptions()...)
		room, _, err := registry.CreateRoom("Alice", &discardConn{})
		require.NoError(t, err)
		return room.Code
	}

	code := firstCode()
	assert.Len(t, code, 8)
	assert.Equal(t, code, firstCode())
}
