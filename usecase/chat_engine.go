package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

// FallbackReply stands in for a reply the generation capability failed to produce.
const FallbackReply = "Sorry, I'm having trouble right now."

// ChatEngine binds one persona and conversation log to a live generation session.
// It is Uninitialized until Start succeeds and again after Stop.
type ChatEngine struct {
	llm            domain.Llm
	maxReplyTokens int
	now            func() time.Time

	mu        sync.Mutex
	session   domain.ChatSession
	sessionID string
	log       *domain.ConversationLog
	awaiting  bool
}

func NewChatEngine(llm domain.Llm, maxReplyTokens int, now func() time.Time) *ChatEngine {
	if now == nil {
		now = time.Now
	}
	return &ChatEngine{llm: llm, maxReplyTokens: maxReplyTokens, now: now}
}

// Start opens a generation session seeded with the log's current turns.
// On failure the engine is left Uninitialized.
func (e *ChatEngine) Start(ctx context.Context, credential string, persona domain.PersonaConfig, history *domain.ConversationLog) error {
	e.Stop()

	instruction := persona.SystemInstruction()
	session, err := e.llm.GenerateChat(ctx, domain.ChatRequest{
		Credential:        credential,
		SystemInstruction: instruction,
		History:           history.Snapshot(),
		MaxReplyTokens:    e.maxReplyTokens,
	})
	if err != nil {
		log.WithCtx(ctx).Error("❌ Failed to start chat session", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrInitialization, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = session
	e.sessionID = uuid.NewString()
	e.log = history

	log.WithCtx(ctx).Info("💬 Chat session started",
		zap.String("session_id", e.sessionID),
		zap.String("persona", persona.Name),
		zap.Int("history", history.Len()))
	return nil
}

// Stop drops the generation session. A reply already in flight still lands in the log.
func (e *ChatEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = nil
	e.sessionID = ""
}

func (e *ChatEngine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

func (e *ChatEngine) AwaitingReply() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.awaiting
}

func (e *ChatEngine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// History returns a snapshot of the session's log.
func (e *ChatEngine) History() []domain.Turn {
	e.mu.Lock()
	l := e.log
	e.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Snapshot()
}

// Send records text as a user turn, waits for the reply and records it.
// A failed or empty reply is recorded as FallbackReply and reported with
// domain.ErrGeneration together with the fallback turn; the engine stays Ready.
// Only one send may be in flight; a concurrent call gets domain.ErrSendInFlight.
func (e *ChatEngine) Send(ctx context.Context, text string, kind domain.TurnKind) (domain.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Turn{}, fmt.Errorf("%w: message is empty", domain.ErrValidation)
	}

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return domain.Turn{}, domain.ErrEngineNotReady
	}
	if e.awaiting {
		e.mu.Unlock()
		return domain.Turn{}, domain.ErrSendInFlight
	}
	e.awaiting = true
	session, history, sessionID := e.session, e.log, e.sessionID
	history.Append(domain.Turn{Speaker: domain.SpeakerUser, Text: text, SentAt: e.now(), Kind: kind})
	e.mu.Unlock()

	// A caller going away must not abandon a message already in the log.
	reply, err := session.SendMessage(context.WithoutCancel(ctx), text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = fmt.Errorf("empty reply")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.awaiting = false

	if err != nil {
		log.WithCtx(ctx).Warn("⚠️ Generation failed, recording fallback",
			zap.String("session_id", sessionID), zap.Error(err))
		turn := history.Append(domain.Turn{Speaker: domain.SpeakerCounterpart, Text: FallbackReply, SentAt: e.now(), Kind: kind})
		return turn, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	return history.Append(domain.Turn{Speaker: domain.SpeakerCounterpart, Text: reply, SentAt: e.now(), Kind: kind}), nil
}
