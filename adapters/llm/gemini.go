package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

const DefaultModel = "gemini-2.0-flash-001"

type GeminiClient struct {
	model     string
	verifyKey bool
}

type GeminiOption func(*GeminiClient)

// WithModel overrides the Gemini model name.
func WithModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.model = model
		}
	}
}

// WithKeyVerification makes GenerateChat look up the model before opening the chat,
// so a rejected key fails the session start instead of the first message.
func WithKeyVerification(enabled bool) GeminiOption {
	return func(g *GeminiClient) { g.verifyKey = enabled }
}

func NewGeminiClient(opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{model: DefaultModel}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateChat implements domain.Llm. Credentials belong to the user, so every
// session gets its own genai client.
func (g *GeminiClient) GenerateChat(ctx context.Context, req domain.ChatRequest) (domain.ChatSession, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  req.Credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	if g.verifyKey {
		if _, err := client.Models.Get(ctx, g.model, nil); err != nil {
			return nil, fmt.Errorf("verifying model access: %w", err)
		}
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
	}
	if req.MaxReplyTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxReplyTokens)
	}

	chat, err := client.Chats.Create(ctx, g.model, config, toGeminiHistory(req.History))
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	return &GeminiChatSession{chat: chat}, nil
}

func toGeminiHistory(turns []domain.Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleModel)
		if t.Speaker == domain.SpeakerUser {
			role = genai.RoleUser
		}
		history = append(history, genai.NewContentFromText(t.Text, role))
	}
	return history
}

type GeminiChatSession struct {
	chat *genai.Chat
}

// SendMessage implements domain.ChatSession.
func (g *GeminiChatSession) SendMessage(ctx context.Context, text string) (string, error) {
	resp, err := g.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.Text(), nil
}
