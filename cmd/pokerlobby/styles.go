package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/pokerlobby/internal/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#96CEB4"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFEAA7"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	codeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")).Bold(true)
)

// describeEvent renders one server event as a terminal line. It returns
// false for events that have nothing to show.
func describeEvent(e protocol.Event, you string) (string, bool) {
	switch ev := e.(type) {
	case *protocol.GameCreated:
		return successStyle.Render("✓ Game created, share code ") + codeStyle.Render(ev.Code), true
	case *protocol.GameJoined:
		names := make([]string, 0, len(ev.Players))
		for _, p := range ev.Players {
			name := p.Name
			if p.IsHost {
				name += " (host)"
			}
			if p.ID == ev.YourID {
				name += " (you)"
			}
			names = append(names, name)
		}
		return headerStyle.Render("Room "+ev.Code) + " " + infoStyle.Render(strings.Join(names, ", ")), true
	case *protocol.PlayerJoined:
		return successStyle.Render(fmt.Sprintf("+ %s joined", ev.Name)), true
	case *protocol.PlayerLeft:
		return warningStyle.Render(fmt.Sprintf("- %s left", ev.PlayerName)), true
	case *protocol.HostChanged:
		if ev.ID == you {
			return warningStyle.Render("★ You are now the host"), true
		}
		return warningStyle.Render(fmt.Sprintf("★ %s is now the host", ev.Name)), true
	case *protocol.Error:
		return errorStyle.Render("✗ " + ev.Message), true
	case *protocol.Unrecognized:
		return infoStyle.Render(fmt.Sprintf("? %s", ev.Type)), true
	default:
		return "", false
	}
}
