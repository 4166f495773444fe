package domain

import "context"

// Display is the collaborator that renders turns reported by the engine.
type Display interface {
	Show(ctx context.Context, event TurnEvent)
}

// TurnEvent carries one turn to the display. Replay marks turns redrawn at session start.
type TurnEvent struct {
	Identity  string `json:"identity"`
	SessionID string `json:"session_id"`
	Turn      Turn   `json:"turn"`
	Replay    bool   `json:"replay"`
}
