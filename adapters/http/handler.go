package http

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
	"github.com/satriahrh/cocoa-fruit/companion/usecase"
	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

const (
	// JWT settings
	DefaultJWTExpiry = 24 * time.Hour
	jwtIssuer        = "cocoa-fruit-companion"

	// Rate limiting
	MaxConcurrent = 10

	identityKey = "identity"
)

type Options struct {
	AccountLayer bool
	Accounts     map[string]string
	JWTSecret    string
	JWTExpiry    time.Duration
}

type SessionHandler struct {
	registry     *usecase.Registry
	accountLayer bool
	accounts     map[string]string
	jwtSecret    []byte
	jwtExpiry    time.Duration
	now          func() time.Time
	semaphore    chan struct{}
}

type JWTClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

type ConfigureRequest struct {
	APICredential string               `json:"apiCredential"`
	Persona       domain.PersonaConfig `json:"persona"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

type MessageResponse struct {
	Turn     domain.Turn `json:"turn"`
	Fallback bool        `json:"fallback"`
}

type SettingsView struct {
	HasAPICredential bool                 `json:"hasApiCredential"`
	DisplayLanguage  domain.Language      `json:"displayLanguage"`
	Theme            string               `json:"theme"`
	LightMode        bool                 `json:"lightMode"`
	Persona          domain.PersonaConfig `json:"persona"`
	ConversationLog  []domain.Turn        `json:"conversationLog"`
	LastActivityAt   *time.Time           `json:"lastActivityAt,omitempty"`
}

type StatusResponse struct {
	usecase.Status
	Settings SettingsView `json:"settings"`
}

func NewSessionHandler(registry *usecase.Registry, opts Options) *SessionHandler {
	if opts.JWTExpiry <= 0 {
		opts.JWTExpiry = DefaultJWTExpiry
	}
	return &SessionHandler{
		registry:     registry,
		accountLayer: opts.AccountLayer,
		accounts:     opts.Accounts,
		jwtSecret:    []byte(opts.JWTSecret),
		jwtExpiry:    opts.JWTExpiry,
		now:          time.Now,
		semaphore:    make(chan struct{}, MaxConcurrent),
	}
}

// GenerateJWT creates a JWT token for a configured account
func (h *SessionHandler) GenerateJWT(c echo.Context) error {
	if !h.accountLayer {
		return echo.NewHTTPError(http.StatusNotFound, "Account layer is disabled")
	}

	username := c.Request().Header.Get("X-API-Key")
	password := c.Request().Header.Get("X-API-Secret")

	secret, ok := h.accounts[username]
	if !ok || subtle.ConstantTimeCompare([]byte(secret), []byte(password)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	now := h.now()
	claims := &JWTClaims{
		Identity: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.jwtExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("❌ Error signing JWT", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token": tokenString,
		"type":  "Bearer",
	})
}

// IdentityMiddleware resolves who is calling. Without an account layer every
// request belongs to the single device identity.
func (h *SessionHandler) IdentityMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.accountLayer {
			c.Set(identityKey, "")
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			// Browsers cannot set headers on a websocket upgrade.
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			} else {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return h.jwtSecret, nil
		}, jwt.WithIssuer(jwtIssuer))
		if err != nil {
			log.WithCtx(c.Request().Context()).Debug("JWT validation error", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok || !token.Valid || claims.Identity == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}

		c.Set(identityKey, claims.Identity)
		c.SetRequest(c.Request().WithContext(log.WithContext(c.Request().Context(), claims.Identity, "")))
		return next(c)
	}
}

// Identity returns the identity resolved by IdentityMiddleware.
func (h *SessionHandler) Identity(c echo.Context) string {
	identity, _ := c.Get(identityKey).(string)
	return identity
}

// Rate limiting middleware
func (h *SessionHandler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		select {
		case h.semaphore <- struct{}{}:
			defer func() { <-h.semaphore }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
		}
	}
}

// Health check endpoint
func (h *SessionHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"service":   "companion",
	})
}

func (h *SessionHandler) GetSession(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse(ctrl.Status()))
}

func (h *SessionHandler) Configure(c echo.Context) error {
	var req ConfigureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.Configure(c.Request().Context(), req.APICredential, req.Persona); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, statusResponse(ctrl.Status()))
}

func (h *SessionHandler) UpdatePreferences(c echo.Context) error {
	var req usecase.Preferences
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.UpdatePreferences(c.Request().Context(), req); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, statusResponse(ctrl.Status()))
}

func (h *SessionHandler) Start(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	opening, err := ctrl.EnterChatting(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, opening)
}

func (h *SessionHandler) SendMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	turn, err := ctrl.Send(c.Request().Context(), req.Text)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, MessageResponse{Turn: turn})
	case errors.Is(err, domain.ErrGeneration):
		return c.JSON(http.StatusOK, MessageResponse{Turn: turn, Fallback: true})
	default:
		return toHTTPError(err)
	}
}

func (h *SessionHandler) Leave(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.LeaveChatting(c.Request().Context()); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, statusResponse(ctrl.Status()))
}

// Reset wipes everything stored for the caller. It needs ?confirm=true.
func (h *SessionHandler) Reset(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.ResetAll(c.Request().Context(), c.QueryParam("confirm") == "true"); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) SignOut(c echo.Context) error {
	if !h.accountLayer {
		return toHTTPError(fmt.Errorf("%w: no account layer", domain.ErrInvalidTransition))
	}
	if err := h.registry.SignOut(c.Request().Context(), h.Identity(c)); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Routes mounts the public and session endpoints on api.
func (h *SessionHandler) Routes(api *echo.Group) {
	// Public endpoints (no auth required)
	api.GET("/health", h.HealthCheck)
	api.POST("/auth/token", h.GenerateJWT)

	session := api.Group("/session")
	session.Use(h.IdentityMiddleware)
	session.Use(h.RateLimitMiddleware)

	session.GET("", h.GetSession)
	session.PUT("/settings", h.Configure)
	session.DELETE("/settings", h.Reset)
	session.PUT("/preferences", h.UpdatePreferences)
	session.POST("/start", h.Start)
	session.POST("/messages", h.SendMessage)
	session.POST("/leave", h.Leave)
	session.POST("/sign-out", h.SignOut)
}

func (h *SessionHandler) controller(c echo.Context) (*usecase.SessionController, error) {
	ctrl, err := h.registry.Get(c.Request().Context(), h.Identity(c))
	if err != nil {
		return nil, toHTTPError(err)
	}
	return ctrl, nil
}

func statusResponse(s usecase.Status) StatusResponse {
	view := SettingsView{
		HasAPICredential: s.Settings.APICredential != "",
		DisplayLanguage:  s.Settings.DisplayLanguage,
		Theme:            s.Settings.Theme,
		LightMode:        s.Settings.LightMode,
		Persona:          s.Settings.Persona,
		ConversationLog:  s.Settings.Log.Snapshot(),
	}
	if !s.Settings.LastActivityAt.IsZero() {
		at := s.Settings.LastActivityAt
		view.LastActivityAt = &at
	}
	return StatusResponse{Status: s, Settings: view}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSendInFlight), errors.Is(err, domain.ErrEngineNotReady):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConfirmationRequired):
		return echo.NewHTTPError(http.StatusBadRequest, "Reset must be confirmed with ?confirm=true")
	case errors.Is(err, domain.ErrInitialization):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
