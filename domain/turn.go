package domain

import (
	"sync"
	"time"
)

type Speaker string

const (
	SpeakerUser        Speaker = "user"
	SpeakerCounterpart Speaker = "counterpart"
)

// TurnKind tags turns that the engine initiated on its own.
type TurnKind string

const (
	KindMessage     TurnKind = ""
	KindNudge       TurnKind = "nudge"
	KindWelcomeBack TurnKind = "welcome_back"
)

// Turn is one immutable message in a conversation.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sentAt"`
	Kind    TurnKind  `json:"kind,omitempty"`
}

// ConversationLog is an append-only, chronologically ordered record of turns.
type ConversationLog struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewConversationLog(turns ...Turn) *ConversationLog {
	l := &ConversationLog{}
	for _, t := range turns {
		l.Append(t)
	}
	return l
}

// Append adds a turn at the tail. SentAt never goes backwards: a turn stamped
// before the current tail takes the tail's time.
func (l *ConversationLog) Append(t Turn) Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.turns); n > 0 && t.SentAt.Before(l.turns[n-1].SentAt) {
		t.SentAt = l.turns[n-1].SentAt
	}
	l.turns = append(l.turns, t)
	return t
}

func (l *ConversationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Snapshot returns a copy of the turns in order.
func (l *ConversationLog) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Last returns the newest turn, if any.
func (l *ConversationLog) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// LastFromUser reports whether the log is non-empty and ends with a user turn.
func (l *ConversationLog) LastFromUser() bool {
	t, ok := l.Last()
	return ok && t.Speaker == SpeakerUser
}
