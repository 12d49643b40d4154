package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/pokerlobby/internal/lobby"
	"github.com/lox/pokerlobby/internal/randutil"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server     *ServerSettings     `hcl:"server,block"`
	Lobby      *LobbySettings      `hcl:"lobby,block"`
	Connection *ConnectionSettings `hcl:"connection,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
	Echo     *bool  `hcl:"echo,optional"`
}

// LobbySettings controls room codes and room membership limits
type LobbySettings struct {
	CodeBytes       int `hcl:"code_bytes,optional"`
	MaxCodeAttempts int `hcl:"max_code_attempts,optional"`
	MaxPlayers      int `hcl:"max_players,optional"`
	MaxNameLength   int `hcl:"max_name_length,optional"`
	// CodeSeed makes room codes reproducible. Zero uses crypto/rand.
	CodeSeed int64 `hcl:"code_seed,optional"`
}

// ConnectionSettings tunes each websocket connection
type ConnectionSettings struct {
	SendBuffer     int `hcl:"send_buffer,optional"`
	MaxMessageSize int `hcl:"max_message_size,optional"`
	WriteWaitMs    int `hcl:"write_wait_ms,optional"`
	PongWaitMs     int `hcl:"pong_wait_ms,optional"`
}

const (
	defaultPort           = 8001
	defaultLogLevel       = "info"
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 8192
	defaultWriteWaitMs    = 10000
	defaultPongWaitMs     = 60000
)

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadServerConfig loads server configuration from HCL file. A missing file
// yields the defaults.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Lobby == nil {
		c.Lobby = &LobbySettings{}
	}
	if c.Connection == nil {
		c.Connection = &ConnectionSettings{}
	}

	// Address stays empty by default: listen on all interfaces
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	if c.Server.Echo == nil {
		echo := true
		c.Server.Echo = &echo
	}

	if c.Lobby.CodeBytes == 0 {
		c.Lobby.CodeBytes = lobby.DefaultCodeBytes
	}
	if c.Lobby.MaxCodeAttempts == 0 {
		c.Lobby.MaxCodeAttempts = lobby.DefaultMaxCodeAttempts
	}
	if c.Lobby.MaxNameLength == 0 {
		c.Lobby.MaxNameLength = lobby.DefaultMaxNameLength
	}

	if c.Connection.SendBuffer == 0 {
		c.Connection.SendBuffer = defaultSendBuffer
	}
	if c.Connection.MaxMessageSize == 0 {
		c.Connection.MaxMessageSize = defaultMaxMessageSize
	}
	if c.Connection.WriteWaitMs == 0 {
		c.Connection.WriteWaitMs = defaultWriteWaitMs
	}
	if c.Connection.PongWaitMs == 0 {
		c.Connection.PongWaitMs = defaultPongWaitMs
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if c.Lobby.CodeBytes < 3 || c.Lobby.CodeBytes > 4 {
		return fmt.Errorf("code bytes must be 3 or 4, got %d", c.Lobby.CodeBytes)
	}
	if c.Lobby.MaxCodeAttempts < 1 {
		return fmt.Errorf("max code attempts must be positive")
	}
	if c.Lobby.MaxPlayers < 0 {
		return fmt.Errorf("max players cannot be negative")
	}
	if c.Lobby.MaxPlayers == 1 {
		return fmt.Errorf("max players must allow at least one guest")
	}
	if c.Lobby.MaxNameLength < 1 {
		return fmt.Errorf("max name length must be positive")
	}

	if c.Connection.SendBuffer < 1 {
		return fmt.Errorf("send buffer must be positive")
	}
	if c.Connection.MaxMessageSize < 64 {
		return fmt.Errorf("max message size must be at least 64 bytes")
	}
	if c.Connection.WriteWaitMs < 1 {
		return fmt.Errorf("write wait must be positive")
	}
	if c.Connection.PongWaitMs < 10 {
		return fmt.Errorf("pong wait must be at least 10ms")
	}

	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// EchoEnabled reports whether legacy message events are echoed back
func (c *ServerConfig) EchoEnabled() bool {
	return c.Server.Echo == nil || *c.Server.Echo
}

// RegistryOptions converts the lobby block into registry options
func (c *ServerConfig) RegistryOptions() []lobby.Option {
	var source lobby.RandSource
	if c.Lobby.CodeSeed != 0 {
		source = randutil.New(c.Lobby.CodeSeed)
	}
	return []lobby.Option{
		lobby.WithCodeGenerator(lobby.NewCodeGenerator(c.Lobby.CodeBytes, source)),
		lobby.WithMaxCodeAttempts(c.Lobby.MaxCodeAttempts),
		lobby.WithMaxPlayers(c.Lobby.MaxPlayers),
		lobby.WithMaxNameLength(c.Lobby.MaxNameLength),
	}
}

// Limits converts the connection block into per-connection limits
func (c *ServerConfig) Limits() Limits {
	pongWait := time.Duration(c.Connection.PongWaitMs) * time.Millisecond
	return Limits{
		SendBuffer:     c.Connection.SendBuffer,
		MaxMessageSize: int64(c.Connection.MaxMessageSize),
		WriteWait:      time.Duration(c.Connection.WriteWaitMs) * time.Millisecond,
		PongWait:       pongWait,
		PingPeriod:     (pongWait * 9) / 10,
	}
}
