package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

func TestStubClientRequiresCredential(t *testing.T) {
	_, err := NewStubClient().GenerateChat(context.Background(), domain.ChatRequest{})
	assert.Error(t, err)
}

func TestStubClientRepliesInCharacter(t *testing.T) {
	persona := domain.PersonaConfig{Name: "Jisu", Relationship: "friend", ReplyLanguage: domain.LanguageEnglish}
	sess, err := NewStubClient().GenerateChat(context.Background(), domain.ChatRequest{
		Credential:        "key",
		SystemInstruction: persona.SystemInstruction(),
		MaxReplyTokens:    100,
	})
	require.NoError(t, err)

	reply, err := sess.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Jisu here! You said: hello", reply)
}

func TestToGeminiHistoryMapsSpeakers(t *testing.T) {
	history := toGeminiHistory([]domain.Turn{
		{Speaker: domain.SpeakerUser, Text: "hello"},
		{Speaker: domain.SpeakerCounterpart, Text: "hi there!"},
	})
	require.Len(t, history, 2)
	assert.Equal(t, "user", string(history[0].Role))
	assert.Equal(t, "model", string(history[1].Role))
	assert.Equal(t, "hi there!", history[1].Parts[0].Text)
}
