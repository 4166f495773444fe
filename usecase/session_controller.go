package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

const (
	NudgePrompt       = "I haven't heard from you in a bit, say something to gently restart the conversation based on your persona. For example: 'What are you up to?', 'Thinking of you!', or 'I'm bored...'."
	WelcomeBackPrompt = "I'm opening the app again after a long time. Greet me in character, like you missed me. For example: 'I missed you!', 'Where have you been?', or 'Finally! I was waiting...'."

	DefaultWelcomeBackAfter = time.Hour
)

type State int

const (
	StateUnauthenticated State = iota
	StateConfiguring
	StateChatting
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateConfiguring:
		return "configuring"
	case StateChatting:
		return "chatting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Opening is what the display needs when a chat session begins.
type Opening struct {
	SessionID   string        `json:"session_id"`
	Replay      []domain.Turn `json:"replay"`
	WelcomeBack *domain.Turn  `json:"welcome_back,omitempty"`
}

// Preferences are display settings that may change in any signed-in state.
// Empty or nil fields are left unchanged.
type Preferences struct {
	DisplayLanguage string `json:"displayLanguage,omitempty"`
	Theme           string `json:"theme,omitempty"`
	LightMode       *bool  `json:"lightMode,omitempty"`
}

// Status is a read-only view of the controller.
type Status struct {
	State         State                  `json:"state"`
	Identity      string                 `json:"identity,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	AwaitingReply bool                   `json:"awaiting_reply"`
	Settings      domain.SessionSettings `json:"-"`
}

type ControllerOption func(*SessionController)

func WithClock(now func() time.Time) ControllerOption {
	return func(c *SessionController) { c.now = now }
}

func WithWelcomeBackAfter(d time.Duration) ControllerOption {
	return func(c *SessionController) { c.welcomeBackAfter = d }
}

func WithNudgeDelay(delay func() time.Duration) ControllerOption {
	return func(c *SessionController) { c.nudgeDelay = delay }
}

// WithAccountLayer starts the controller Unauthenticated; SignIn binds it to an account.
func WithAccountLayer(enabled bool) ControllerOption {
	return func(c *SessionController) { c.accountLayer = enabled }
}

// SessionController sequences Unauthenticated → Configuring ⇄ Chatting for one
// user and owns that user's working copy of SessionSettings.
type SessionController struct {
	engine  *ChatEngine
	store   *SettingsStore
	display domain.Display
	nudge   *NudgeScheduler

	now              func() time.Time
	welcomeBackAfter time.Duration
	nudgeDelay       func() time.Duration
	accountLayer     bool

	mu       sync.Mutex
	state    State
	identity string
	// settings is the working copy; it is loaded on construction or SignIn
	// and written back after every change.
	settings domain.SessionSettings
	// starting is set while EnterChatting waits for the engine.
	starting bool
	// epoch moves on SignOut and ResetAll so a start that raced them is dropped.
	epoch uint64
}

func NewSessionController(engine *ChatEngine, store *SettingsStore, display domain.Display, opts ...ControllerOption) *SessionController {
	c := &SessionController{
		engine:           engine,
		store:            store,
		display:          display,
		now:              time.Now,
		welcomeBackAfter: DefaultWelcomeBackAfter,
		settings:         domain.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.nudge = NewNudgeScheduler(c.nudgeDelay, c.onNudge)

	if c.accountLayer {
		c.state = StateUnauthenticated
	} else {
		c.state = StateConfiguring
		c.reloadLocked(context.Background())
	}
	return c
}

func (c *SessionController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SessionController) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:         c.state,
		Identity:      c.identity,
		SessionID:     c.engine.SessionID(),
		AwaitingReply: c.engine.AwaitingReply(),
		Settings:      c.settings.Clone(),
	}
}

// SignIn binds the controller to an account. The account document, when it
// exists, replaces whatever the device had.
func (c *SessionController) SignIn(ctx context.Context, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accountLayer || c.state != StateUnauthenticated {
		return fmt.Errorf("%w: sign in from %s", domain.ErrInvalidTransition, c.state)
	}
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: identity is required", domain.ErrValidation)
	}

	ctx = log.WithContext(ctx, identity, "")
	c.identity = identity
	c.store.Bind(ctx, identity)
	c.reloadLocked(ctx)
	c.state = StateConfiguring
	return nil
}

func (c *SessionController) SignOut(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accountLayer || c.state == StateUnauthenticated {
		return fmt.Errorf("%w: sign out from %s", domain.ErrInvalidTransition, c.state)
	}

	c.nudge.Cancel()
	c.engine.Stop()
	c.store.Wait()
	c.store.Bind(ctx, "")
	c.identity = ""
	c.settings = domain.DefaultSettings()
	c.epoch++
	c.state = StateUnauthenticated
	return nil
}

// Configure sets the credential and persona. The persona of a running session
// cannot change, so this is only allowed while Configuring.
func (c *SessionController) Configure(ctx context.Context, credential string, persona domain.PersonaConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConfiguring {
		return fmt.Errorf("%w: configure while %s", domain.ErrInvalidTransition, c.state)
	}
	if c.starting {
		return fmt.Errorf("%w: a chat session is starting", domain.ErrInvalidTransition)
	}
	if persona.ReplyLanguage != "" {
		lang, err := domain.ParseLanguage(string(persona.ReplyLanguage))
		if err != nil {
			return err
		}
		persona.ReplyLanguage = lang
	}

	c.settings.APICredential = strings.TrimSpace(credential)
	c.settings.Persona = persona
	c.persistLocked(ctx, false)
	return nil
}

func (c *SessionController) UpdatePreferences(ctx context.Context, prefs Preferences) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUnauthenticated {
		return fmt.Errorf("%w: update preferences while %s", domain.ErrInvalidTransition, c.state)
	}
	if prefs.DisplayLanguage != "" {
		lang, err := domain.ParseLanguage(prefs.DisplayLanguage)
		if err != nil {
			return err
		}
		c.settings.DisplayLanguage = lang
	}
	if prefs.Theme != "" {
		c.settings.Theme = prefs.Theme
	}
	if prefs.LightMode != nil {
		c.settings.LightMode = *prefs.LightMode
	}
	c.persistLocked(ctx, false)
	return nil
}

// EnterChatting starts a chat session from the working copy, replays the
// log to the display and, after a long absence, asks for one welcome-back
// greeting before arming the nudge timer.
func (c *SessionController) EnterChatting(ctx context.Context) (Opening, error) {
	c.mu.Lock()
	if c.state != StateConfiguring {
		defer c.mu.Unlock()
		return Opening{}, fmt.Errorf("%w: start chat while %s", domain.ErrInvalidTransition, c.state)
	}
	if c.starting {
		c.mu.Unlock()
		return Opening{}, fmt.Errorf("%w: a chat session is already starting", domain.ErrInvalidTransition)
	}

	ctx = log.WithContext(ctx, c.identity, "")
	settings := c.settings

	if strings.TrimSpace(settings.APICredential) == "" {
		c.mu.Unlock()
		return Opening{}, fmt.Errorf("%w: please enter your API key", domain.ErrValidation)
	}
	persona := settings.EffectivePersona()
	if err := persona.Validate(); err != nil {
		c.mu.Unlock()
		return Opening{}, err
	}

	wasLongAbsence := settings.LastActivityAt.IsZero() || c.now().Sub(settings.LastActivityAt) > c.welcomeBackAfter
	epoch := c.epoch
	c.starting = true
	c.mu.Unlock()

	err := c.engine.Start(ctx, settings.APICredential, persona, settings.Log)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return Opening{}, err
	}
	if c.epoch != epoch || c.state != StateConfiguring {
		c.engine.Stop()
		c.mu.Unlock()
		return Opening{}, fmt.Errorf("%w: session was reset while starting", domain.ErrInvalidTransition)
	}
	c.state = StateChatting
	identity, sessionID := c.identity, c.engine.SessionID()
	c.mu.Unlock()

	ctx = log.WithContext(ctx, "", sessionID)
	opening := Opening{SessionID: sessionID, Replay: settings.Log.Snapshot()}
	for _, turn := range opening.Replay {
		c.display.Show(ctx, domain.TurnEvent{Identity: identity, SessionID: sessionID, Turn: turn, Replay: true})
	}

	if wasLongAbsence && len(opening.Replay) > 0 {
		log.WithCtx(ctx).Info("👋 Long absence, sending welcome back")
		turn, err := c.exchange(ctx, WelcomeBackPrompt, domain.KindWelcomeBack)
		switch {
		case err == nil, errors.Is(err, domain.ErrGeneration):
			opening.WelcomeBack = &turn
		default:
			log.WithCtx(ctx).Warn("⚠️ Welcome back skipped", zap.Error(err))
		}
	}

	c.mu.Lock()
	if c.state == StateChatting {
		c.nudge.Arm()
	}
	c.mu.Unlock()
	return opening, nil
}

// Send delivers a user message. A generation failure returns the fallback
// turn together with an error wrapping domain.ErrGeneration.
func (c *SessionController) Send(ctx context.Context, text string) (domain.Turn, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != StateChatting {
		return domain.Turn{}, fmt.Errorf("%w: send while %s", domain.ErrInvalidTransition, state)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Turn{}, fmt.Errorf("%w: message is empty", domain.ErrValidation)
	}
	if c.engine.AwaitingReply() {
		return domain.Turn{}, domain.ErrSendInFlight
	}

	turn, err := c.exchange(ctx, strings.TrimSpace(text), domain.KindMessage)
	if err == nil || errors.Is(err, domain.ErrGeneration) {
		c.mu.Lock()
		if c.state == StateChatting {
			c.nudge.Arm()
		}
		c.mu.Unlock()
	}
	return turn, err
}

// LeaveChatting ends the chat session but keeps persona and log.
func (c *SessionController) LeaveChatting(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateChatting {
		return fmt.Errorf("%w: leave chat while %s", domain.ErrInvalidTransition, c.state)
	}
	c.nudge.Cancel()
	c.engine.Stop()
	c.state = StateConfiguring
	return nil
}

// ResetAll wipes the persisted record and every piece of in-memory state.
// It is irreversible, so callers must pass confirmed.
func (c *SessionController) ResetAll(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return domain.ErrConfirmationRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUnauthenticated {
		return fmt.Errorf("%w: reset while %s", domain.ErrInvalidTransition, c.state)
	}

	c.nudge.Cancel()
	c.engine.Stop()
	if err := c.store.Clear(ctx); err != nil {
		log.WithCtx(ctx).Warn("⚠️ Failed to clear settings", zap.Error(err))
	}
	c.settings = domain.DefaultSettings()
	c.epoch++
	c.state = StateConfiguring
	return nil
}

// Close stops timers and waits for background saves.
func (c *SessionController) Close() {
	c.nudge.Cancel()
	c.engine.Stop()
	c.store.Wait()
}

// exchange sends text through the engine, shows the resulting turn and
// persists the log. Once sent, the exchange outlives the caller.
func (c *SessionController) exchange(ctx context.Context, text string, kind domain.TurnKind) (domain.Turn, error) {
	ctx = context.WithoutCancel(ctx)
	c.mu.Lock()
	identity, history := c.identity, c.settings.Log
	c.mu.Unlock()

	turn, err := c.engine.Send(ctx, text, kind)
	if err != nil && !errors.Is(err, domain.ErrGeneration) {
		return turn, err
	}

	c.display.Show(ctx, domain.TurnEvent{Identity: identity, SessionID: c.engine.SessionID(), Turn: turn})

	c.mu.Lock()
	// A reset during the call leaves the reply on the discarded log.
	if c.settings.Log == history {
		c.persistLocked(ctx, true)
	}
	c.mu.Unlock()
	return turn, err
}

func (c *SessionController) onNudge() {
	c.mu.Lock()
	chatting, identity, history := c.state == StateChatting, c.identity, c.settings.Log
	c.mu.Unlock()

	ctx := log.WithContext(context.Background(), identity, c.engine.SessionID())
	if !chatting || !c.engine.Ready() || c.engine.AwaitingReply() {
		return
	}
	if !history.LastFromUser() {
		log.WithCtx(ctx).Debug("Nudge skipped, last turn is not from the user")
		return
	}

	log.WithCtx(ctx).Info("🔔 Sending nudge")
	if _, err := c.exchange(ctx, NudgePrompt, domain.KindNudge); err != nil && !errors.Is(err, domain.ErrGeneration) {
		log.WithCtx(ctx).Debug("Nudge not sent", zap.Error(err))
	}
}

func (c *SessionController) reloadLocked(ctx context.Context) {
	if loaded, ok := c.store.Load(ctx); ok {
		c.settings = *loaded
	} else {
		c.settings = domain.DefaultSettings()
	}
}

func (c *SessionController) persistLocked(ctx context.Context, touch bool) {
	if touch {
		c.settings.LastActivityAt = c.now()
	}
	snapshot := c.settings.Clone()

	if c.store.Synced() {
		c.store.SaveAsync(snapshot, func(err error) { c.noteSave(ctx, err) })
		return
	}
	c.noteSave(ctx, c.store.Save(ctx, snapshot))
}

func (c *SessionController) noteSave(ctx context.Context, err error) {
	if err != nil {
		log.WithCtx(ctx).Warn("⚠️ Failed to save settings", zap.Error(err))
	}
}
