package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	wsapi "github.com/satriahrh/cocoa-fruit/companion/adapters/websocket"
	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
	counterpartStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("213")).
				Bold(true)
	replayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// renderFrame formats one server frame for the terminal. Unknown frames render empty.
func renderFrame(frame wsapi.OutboundMessage) string {
	switch frame.Type {
	case wsapi.TypeTurn:
		var event domain.TurnEvent
		if err := json.Unmarshal(frame.Event, &event); err != nil {
			return errorStyle.Render("unreadable turn: " + err.Error())
		}
		return renderTurn(event)
	case wsapi.TypeError:
		if frame.Error == nil {
			return errorStyle.Render("error")
		}
		return errorStyle.Render(fmt.Sprintf("%s: %s", frame.Error.Message, frame.Error.Details))
	}
	return ""
}

func renderTurn(event domain.TurnEvent) string {
	who := counterpartStyle.Render("them")
	if event.Turn.Speaker == domain.SpeakerUser {
		who = userStyle.Render("you")
	}

	text := event.Turn.Text
	switch event.Turn.Kind {
	case domain.KindNudge:
		if event.Turn.Speaker == domain.SpeakerUser {
			return systemStyle.Render("(a while passed)")
		}
	case domain.KindWelcomeBack:
		if event.Turn.Speaker == domain.SpeakerUser {
			return systemStyle.Render("(welcome back)")
		}
	}

	line := fmt.Sprintf("%s %s %s", event.Turn.SentAt.Local().Format("15:04"), who, text)
	if event.Replay {
		return replayStyle.Render(line)
	}
	return line
}
