package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/pokerlobby/cmd/pokerlobby/shared"
	"github.com/lox/pokerlobby/internal/client"
	"github.com/lox/pokerlobby/internal/protocol"
)

// ClientCmd connects to a lobby server from the terminal
type ClientCmd struct {
	URL      string `default:"ws://localhost:8001" help:"Lobby server websocket URL"`
	Name     string `env:"USER" help:"Player name shown to the room"`
	Code     string `help:"Room code to join; a new room is created when empty"`
	LogLevel string `default:"warn" help:"Log level for connection diagnostics"`
}

func (c *ClientCmd) Run() error {
	logger := shared.SetupLogger(c.LogLevel, os.Stderr)
	ctx := shared.SetupSignalHandler(logger)

	cl := client.NewClient(c.URL, logger)
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := cl.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	defer cl.Disconnect()

	if c.Code != "" {
		err = cl.JoinGame(strings.ToLower(strings.TrimSpace(c.Code)), c.Name)
	} else {
		err = cl.CreateGame(c.Name)
	}
	if err != nil {
		return err
	}

	go c.readInput(ctx, cl, logger)

	var you string
	echoes := cl.Echoes()
	for {
		select {
		case <-ctx.Done():
			return nil
		case reply, ok := <-echoes:
			if !ok {
				echoes = nil
				continue
			}
			fmt.Println(infoStyle.Render(reply))
		case e, ok := <-cl.Events():
			if !ok {
				fmt.Println(infoStyle.Render("Disconnected from server"))
				return nil
			}
			if joined, isJoined := e.(*protocol.GameJoined); isJoined {
				you = joined.YourID
			}
			if line, show := describeEvent(e, you); show {
				fmt.Println(line)
			}
		}
	}
}

// readInput forwards stdin lines as message events until EOF or "exit"
func (c *ClientCmd) readInput(ctx context.Context, cl *client.Client, logger *log.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			_ = cl.Disconnect()
			return
		}
		if err := cl.SendMessage(line); err != nil {
			logger.Warn("Failed to send message", "error", err)
			return
		}
	}
}
