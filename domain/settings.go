package domain

import (
	"context"
	"time"
)

const (
	DefaultDisplayLanguage = LanguageKorean
	DefaultTheme           = "theme-yellow"
)

// SessionSettings is the unit that gets persisted for one user or device.
type SessionSettings struct {
	APICredential   string
	DisplayLanguage Language
	Theme           string
	LightMode       bool
	Persona         PersonaConfig
	Log             *ConversationLog
	LastActivityAt  time.Time
}

func DefaultSettings() SessionSettings {
	return SessionSettings{
		DisplayLanguage: DefaultDisplayLanguage,
		Theme:           DefaultTheme,
		LightMode:       true,
		Log:             NewConversationLog(),
	}
}

// Clone copies the settings, including a fresh log holding the same turns.
func (s SessionSettings) Clone() SessionSettings {
	out := s
	if s.Log != nil {
		out.Log = NewConversationLog(s.Log.Snapshot()...)
	} else {
		out.Log = NewConversationLog()
	}
	return out
}

// EffectivePersona fills the reply language from the display language when unset.
func (s SessionSettings) EffectivePersona() PersonaConfig {
	p := s.Persona
	if p.ReplyLanguage == "" {
		p.ReplyLanguage = s.DisplayLanguage
	}
	if p.ReplyLanguage == "" {
		p.ReplyLanguage = DefaultDisplayLanguage
	}
	return p
}

// SettingsBackend is a key/document store. Get returns nil, nil when the key is absent.
type SettingsBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, document []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
