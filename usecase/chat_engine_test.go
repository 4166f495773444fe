package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

func startedEngine(t *testing.T, llm *fakeLlm, history *domain.ConversationLog) *ChatEngine {
	t.Helper()
	clock := newFakeClock(t0)
	e := NewChatEngine(llm, 100, func() time.Time {
		clock.Advance(time.Second)
		return clock.Now()
	})
	require.NoError(t, e.Start(context.Background(), "key", jisu, history))
	return e
}

func TestEngineStartBuildsInstructionFromPersona(t *testing.T) {
	llm := newFakeLlm()
	history := domain.NewConversationLog(
		domain.Turn{Speaker: domain.SpeakerUser, Text: "hello", SentAt: t0},
		domain.Turn{Speaker: domain.SpeakerCounterpart, Text: "hi there!", SentAt: t0},
	)
	e := startedEngine(t, llm, history)

	require.Len(t, llm.Requests(), 1)
	req := llm.Requests()[0]
	assert.Equal(t, "key", req.Credential)
	assert.Equal(t, jisu.SystemInstruction(), req.SystemInstruction)
	assert.Equal(t, 100, req.MaxReplyTokens)
	assert.Equal(t, history.Snapshot(), req.History)
	assert.True(t, e.Ready())
	assert.NotEmpty(t, e.SessionID())
}

func TestEngineSendAppendsUserThenReply(t *testing.T) {
	llm := newFakeLlm()
	history := domain.NewConversationLog()
	e := startedEngine(t, llm, history)

	reply, err := e.Send(context.Background(), "hello", domain.KindMessage)
	require.NoError(t, err)
	assert.Equal(t, "hi there!", reply.Text)
	assert.Equal(t, domain.SpeakerCounterpart, reply.Speaker)

	turns := history.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, domain.Turn{Speaker: domain.SpeakerUser, Text: "hello", SentAt: turns[0].SentAt}, turns[0])
	assert.Equal(t, reply, turns[1])
	assert.False(t, turns[1].SentAt.Before(turns[0].SentAt))
	assert.Equal(t, []string{"hello"}, llm.Sent())
	assert.Equal(t, turns, e.History())
}

func TestEngineSendFailureRecordsFallback(t *testing.T) {
	llm := newFakeLlm()
	llm.sendErr = errors.New("quota exceeded")
	history := domain.NewConversationLog()
	e := startedEngine(t, llm, history)

	turn, err := e.Send(context.Background(), "hi", domain.KindMessage)
	require.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, FallbackReply, turn.Text)

	turns := history.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].Text)
	assert.Equal(t, domain.SpeakerUser, turns[0].Speaker)
	assert.Equal(t, FallbackReply, turns[1].Text)
	assert.True(t, e.Ready(), "generation errors are recoverable")
	assert.False(t, e.AwaitingReply())

	llm.mu.Lock()
	llm.sendErr = nil
	llm.mu.Unlock()
	_, err = e.Send(context.Background(), "retry", domain.KindMessage)
	require.NoError(t, err)
	assert.Equal(t, 4, history.Len())
}

func TestEngineTreatsEmptyReplyAsFailure(t *testing.T) {
	llm := newFakeLlm()
	llm.reply = func(string) string { return "  " }
	e := startedEngine(t, llm, domain.NewConversationLog())

	turn, err := e.Send(context.Background(), "hi", domain.KindMessage)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, FallbackReply, turn.Text)
}

func TestEngineRejectsSendWhileAwaitingReply(t *testing.T) {
	llm := newFakeLlm()
	llm.block = make(chan struct{})
	history := domain.NewConversationLog()
	e := startedEngine(t, llm, history)

	done := make(chan error, 1)
	go func() {
		_, err := e.Send(context.Background(), "first", domain.KindMessage)
		done <- err
	}()
	require.Eventually(t, e.AwaitingReply, time.Second, time.Millisecond)

	_, err := e.Send(context.Background(), "second", domain.KindMessage)
	assert.ErrorIs(t, err, domain.ErrSendInFlight)

	close(llm.block)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"first"}, llm.Sent())
	assert.Equal(t, 2, history.Len())
}

func TestEngineRejectsEmptyText(t *testing.T) {
	history := domain.NewConversationLog()
	e := startedEngine(t, newFakeLlm(), history)

	_, err := e.Send(context.Background(), "   ", domain.KindMessage)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, history.Len())
}

func TestEngineStartFailureLeavesItUninitialized(t *testing.T) {
	llm := newFakeLlm()
	llm.startErr = errors.New("API key not valid")
	e := NewChatEngine(llm, 100, nil)

	err := e.Start(context.Background(), "bad", jisu, domain.NewConversationLog())
	require.ErrorIs(t, err, domain.ErrInitialization)
	assert.False(t, e.Ready())

	_, err = e.Send(context.Background(), "hello", domain.KindMessage)
	assert.ErrorIs(t, err, domain.ErrEngineNotReady)
}

func TestEngineStopMakesItUnready(t *testing.T) {
	e := startedEngine(t, newFakeLlm(), domain.NewConversationLog())
	e.Stop()
	assert.False(t, e.Ready())
	assert.Empty(t, e.SessionID())

	_, err := e.Send(context.Background(), "hello", domain.KindMessage)
	assert.ErrorIs(t, err, domain.ErrEngineNotReady)
}
