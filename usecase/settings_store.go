package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
	"go.uber.org/zap"
)

// DeviceKey is the document key of the device-local record.
const DeviceKey = "device"

// SettingsStore owns the durable copy of SessionSettings. It writes to the
// device-local backend until an identity is bound, then to the account backend.
type SettingsStore struct {
	local   domain.SettingsBackend
	account domain.SettingsBackend
	hasher  domain.Hasher

	mu       sync.RWMutex
	identity string

	// seq orders saves by call time; written is the newest persisted one.
	writeMu sync.Mutex
	seq     uint64
	written uint64

	pending sync.WaitGroup
}

// NewSettingsStore builds a store. account may be nil for deployments without
// an account layer.
func NewSettingsStore(local, account domain.SettingsBackend, hasher domain.Hasher) *SettingsStore {
	return &SettingsStore{local: local, account: account, hasher: hasher}
}

// Bind selects the account-synced backend for identity. An empty identity
// goes back to device-local persistence. An account without a document of
// its own is seeded once with the device-local record.
func (s *SettingsStore) Bind(ctx context.Context, identity string) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()

	if identity != "" && s.account != nil {
		s.seed(ctx)
	}
}

func (s *SettingsStore) seed(ctx context.Context) {
	backend, key := s.target()
	existing, err := backend.Get(ctx, key)
	if err != nil {
		log.WithCtx(ctx).Warn("⚠️ Failed to read account settings", zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		return
	}
	if existing != nil {
		return
	}

	device, err := s.local.Get(ctx, DeviceKey)
	if err != nil || device == nil {
		return
	}
	if _, err := decodeSettings(device); err != nil {
		return
	}
	if err := s.write(ctx, s.nextSeq(), backend, key, device); err != nil {
		log.WithCtx(ctx).Warn("⚠️ Failed to seed account settings", zap.Error(err))
		return
	}
	log.WithCtx(ctx).Info("🌱 Account settings seeded from this device")
}

// Synced reports whether saves go to the account-synced backend.
func (s *SettingsStore) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != "" && s.account != nil
}

func (s *SettingsStore) target() (domain.SettingsBackend, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity != "" && s.account != nil {
		return s.account, s.hasher.Hash([]byte(s.identity))
	}
	return s.local, DeviceKey
}

// Load returns the persisted settings of the active backend. Missing or
// malformed records yield false and are never reported as errors.
func (s *SettingsStore) Load(ctx context.Context) (*domain.SessionSettings, bool) {
	backend, key := s.target()
	return s.loadFrom(ctx, backend, key)
}

func (s *SettingsStore) loadFrom(ctx context.Context, backend domain.SettingsBackend, key string) (*domain.SessionSettings, bool) {
	raw, err := backend.Get(ctx, key)
	if err != nil {
		log.WithCtx(ctx).Warn("⚠️ Failed to read settings", zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		return nil, false
	}
	if raw == nil {
		return nil, false
	}

	settings, err := decodeSettings(raw)
	if err != nil {
		log.WithCtx(ctx).Warn("⚠️ Ignoring malformed settings record", zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		return nil, false
	}
	return settings, true
}

// Save replaces the whole persisted record. A failure is returned wrapped in
// domain.ErrPersistence; the caller keeps working on its in-memory copy.
func (s *SettingsStore) Save(ctx context.Context, settings domain.SessionSettings) error {
	doc, err := encodeSettings(settings)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	backend, key := s.target()
	return s.write(ctx, s.nextSeq(), backend, key, doc)
}

// SaveAsync snapshots settings now and writes them in the background. done,
// if set, receives the outcome.
func (s *SettingsStore) SaveAsync(settings domain.SessionSettings, done func(error)) {
	doc, err := encodeSettings(settings)
	backend, key := s.target()
	seq := s.nextSeq()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err == nil {
			err = s.write(context.Background(), seq, backend, key, doc)
		} else {
			err = fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if done != nil {
			done(err)
		}
	}()
}

// Wait blocks until background saves have finished.
func (s *SettingsStore) Wait() {
	s.pending.Wait()
}

// Clear deletes the active record, and the device record behind an account,
// and discards saves that have not landed yet.
func (s *SettingsStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.seq++
	s.written = s.seq

	backend, key := s.target()
	if err := backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	// The device record would seed the account again on the next sign-in.
	if key != DeviceKey {
		if err := s.local.Delete(ctx, DeviceKey); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}
	return nil
}

func (s *SettingsStore) nextSeq() uint64 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.seq++
	return s.seq
}

// write persists doc unless a newer save already landed.
func (s *SettingsStore) write(ctx context.Context, seq uint64, backend domain.SettingsBackend, key string, doc []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if seq <= s.written {
		return nil
	}

	if err := backend.Put(ctx, key, doc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.written = seq
	return nil
}

type settingsDocument struct {
	APICredential   *string              `json:"apiCredential,omitempty"`
	DisplayLanguage string               `json:"displayLanguage"`
	Theme           string               `json:"theme"`
	LightMode       *bool                `json:"lightMode,omitempty"`
	Persona         domain.PersonaConfig `json:"persona"`
	ConversationLog []turnDocument       `json:"conversationLog"`
	LastActivityAt  int64                `json:"lastActivityAt,omitempty"`
}

type turnDocument struct {
	Speaker domain.Speaker  `json:"speaker"`
	Text    string          `json:"text"`
	SentAt  int64           `json:"sentAt"`
	Kind    domain.TurnKind `json:"kind,omitempty"`
}

func encodeSettings(s domain.SessionSettings) ([]byte, error) {
	doc := settingsDocument{
		DisplayLanguage: string(s.DisplayLanguage),
		Theme:           s.Theme,
		LightMode:       &s.LightMode,
		Persona:         s.Persona,
		ConversationLog: []turnDocument{},
	}
	if s.APICredential != "" {
		doc.APICredential = &s.APICredential
	}
	if !s.LastActivityAt.IsZero() {
		doc.LastActivityAt = s.LastActivityAt.UnixMilli()
	}
	if s.Log != nil {
		for _, t := range s.Log.Snapshot() {
			doc.ConversationLog = append(doc.ConversationLog, turnDocument{
				Speaker: t.Speaker,
				Text:    t.Text,
				SentAt:  t.SentAt.UnixMilli(),
				Kind:    t.Kind,
			})
		}
	}
	return json.Marshal(doc)
}

func decodeSettings(raw []byte) (*domain.SessionSettings, error) {
	var doc settingsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	settings := domain.DefaultSettings()
	if doc.APICredential != nil {
		settings.APICredential = *doc.APICredential
	}
	if doc.DisplayLanguage != "" {
		lang, err := domain.ParseLanguage(doc.DisplayLanguage)
		if err != nil {
			return nil, err
		}
		settings.DisplayLanguage = lang
	}
	if doc.Theme != "" {
		settings.Theme = doc.Theme
	}
	if doc.LightMode != nil {
		settings.LightMode = *doc.LightMode
	}
	settings.Persona = doc.Persona
	if doc.LastActivityAt > 0 {
		settings.LastActivityAt = time.UnixMilli(doc.LastActivityAt)
	}

	for i, t := range doc.ConversationLog {
		if t.Speaker != domain.SpeakerUser && t.Speaker != domain.SpeakerCounterpart {
			return nil, fmt.Errorf("turn %d: unknown speaker %q", i, t.Speaker)
		}
		settings.Log.Append(domain.Turn{
			Speaker: t.Speaker,
			Text:    t.Text,
			SentAt:  time.UnixMilli(t.SentAt),
			Kind:    t.Kind,
		})
	}
	return &settings, nil
}
