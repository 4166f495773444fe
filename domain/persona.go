package domain

import (
	"fmt"
	"strings"
)

// Language is a conversation or UI language code.
type Language string

const (
	LanguageKorean  Language = "ko"
	LanguageEnglish Language = "en"
)

// ParseLanguage accepts a language code, case-insensitively.
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageKorean:
		return LanguageKorean, nil
	case LanguageEnglish:
		return LanguageEnglish, nil
	}
	return "", fmt.Errorf("%w: unsupported language %q", ErrValidation, s)
}

// Name is the language name used inside the system instruction.
func (l Language) Name() string {
	switch l {
	case LanguageEnglish:
		return "English"
	case LanguageKorean:
		return "Korean"
	}
	return string(l)
}

// PersonaConfig describes the synthetic counterpart.
type PersonaConfig struct {
	Name                   string   `json:"name"`
	Relationship           string   `json:"relationship"`
	PersonalityDescription string   `json:"personalityDescription"`
	ToneExample            string   `json:"toneExample"`
	ReplyLanguage          Language `json:"replyLanguage,omitempty"`
}

// Validate checks what must hold before a session can start.
func (p PersonaConfig) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: please give your companion a name", ErrValidation)
	}
	return nil
}

// SystemInstruction renders the fixed persona template.
func (p PersonaConfig) SystemInstruction() string {
	return fmt.Sprintf(
		"You are %s, my %s. Your personality is %s. You talk like this: \"%s\". Reply in %s. Keep replies short and natural.",
		p.Name, p.Relationship, p.PersonalityDescription, p.ToneExample, p.ReplyLanguage.Name(),
	)
}
