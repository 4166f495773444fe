package domain

import "context"

// Llm abstracts the remote generation capability.
type Llm interface {
	// GenerateChat opens a chat session seeded with prior history.
	GenerateChat(ctx context.Context, req ChatRequest) (ChatSession, error)
}

type ChatSession interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

type ChatRequest struct {
	Credential        string
	SystemInstruction string
	History           []Turn
	MaxReplyTokens    int
}
