package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

// StubClient is an offline generation capability. It answers in character with
// canned text, which is enough to drive the session flow without a Gemini key.
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

// GenerateChat implements domain.Llm.
func (StubClient) GenerateChat(_ context.Context, req domain.ChatRequest) (domain.ChatSession, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, fmt.Errorf("missing credential")
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(req.SystemInstruction, "You are "), ",")
	return &stubSession{name: name, limit: req.MaxReplyTokens}, nil
}

type stubSession struct {
	name  string
	limit int
}

func (s *stubSession) SendMessage(_ context.Context, text string) (string, error) {
	reply := fmt.Sprintf("%s here! You said: %s", s.name, text)
	if words := strings.Fields(reply); s.limit > 0 && len(words) > s.limit {
		reply = strings.Join(words[:s.limit], " ")
	}
	return reply, nil
}
