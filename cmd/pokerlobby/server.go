package main

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/pokerlobby/cmd/pokerlobby/shared"
	"github.com/lox/pokerlobby/internal/lobby"
	"github.com/lox/pokerlobby/internal/server"
)

// ServerCmd runs the lobby server
type ServerCmd struct {
	Config   string `short:"c" default:"lobby.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Address to bind, e.g. ':8001' (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	NoEcho   bool   `help:"Disable the legacy message echo"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.NoEcho {
		echo := false
		cfg.Server.Echo = &echo
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	output, err := shared.OpenLogOutput(cfg.Server.LogFile)
	if err != nil {
		return err
	}
	defer output.Close()
	logger := shared.SetupLogger(cfg.Server.LogLevel, output)

	clock := quartz.NewReal()
	registry := lobby.NewRegistry(logger, append(cfg.RegistryOptions(), lobby.WithClock(clock))...)
	srv := server.NewServer(registry, logger,
		server.WithClock(clock),
		server.WithLimits(cfg.Limits()),
		server.WithEcho(cfg.EchoEnabled()),
	)

	logger.Info("Starting lobby server",
		"addr", addr,
		"echo", cfg.EchoEnabled(),
		"maxPlayers", cfg.Lobby.MaxPlayers,
		"codeLength", cfg.Lobby.CodeBytes*2)

	ctx := shared.SetupSignalHandler(logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A bind failure ends the group and the process
		return srv.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
