package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/companion/adapters/display"
	"github.com/satriahrh/cocoa-fruit/companion/adapters/hasher"
	handler "github.com/satriahrh/cocoa-fruit/companion/adapters/http"
	"github.com/satriahrh/cocoa-fruit/companion/adapters/llm"
	"github.com/satriahrh/cocoa-fruit/companion/adapters/message_broker"
	"github.com/satriahrh/cocoa-fruit/companion/adapters/storage"
	"github.com/satriahrh/cocoa-fruit/companion/adapters/websocket"
	"github.com/satriahrh/cocoa-fruit/companion/config"
	"github.com/satriahrh/cocoa-fruit/companion/domain"
	"github.com/satriahrh/cocoa-fruit/companion/usecase"
	"github.com/satriahrh/cocoa-fruit/companion/utils/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.With().Fatal("❌ Invalid configuration", zap.Error(err))
	}
	log.Setup(cfg.Debug, cfg.LogFile)
	defer log.Sync()

	ctx := context.Background()

	local, err := storage.NewBackend(storage.BackendSQLite, storage.WithSQLitePath(cfg.LocalDBPath))
	if err != nil {
		log.With().Fatal("❌ Failed to open device store", zap.String("path", cfg.LocalDBPath), zap.Error(err))
	}
	defer local.Close()

	account, err := accountBackend(ctx, cfg)
	if err != nil {
		log.With().Fatal("❌ Failed to open account store", zap.Error(err))
	}
	defer account.Close()

	var generator domain.Llm
	if cfg.GeminiStub {
		log.With().Warn("⚠️ Using the offline stub instead of Gemini")
		generator = llm.NewStubClient()
	} else {
		generator = llm.NewGeminiClient(llm.WithModel(cfg.GeminiModel), llm.WithKeyVerification(cfg.GeminiVerifyKey))
	}

	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()
	turns := display.NewBrokerDisplay(broker)
	identityHasher := hasher.New("companion")

	registry := usecase.NewRegistry(func(identity string) *usecase.SessionController {
		return usecase.NewSessionController(
			usecase.NewChatEngine(generator, cfg.MaxReplyTokens, nil),
			usecase.NewSettingsStore(local, account, identityHasher),
			turns,
			usecase.WithAccountLayer(cfg.AccountLayer),
			usecase.WithWelcomeBackAfter(cfg.WelcomeBackAfter),
			usecase.WithNudgeDelay(usecase.UniformDelay(cfg.NudgeMinDelay, cfg.NudgeMaxDelay)),
		)
	})
	defer registry.Close()

	sessionHandler := handler.NewSessionHandler(registry, handler.Options{
		AccountLayer: cfg.AccountLayer,
		Accounts:     cfg.Accounts,
		JWTSecret:    cfg.JWTSecret,
		JWTExpiry:    cfg.JWTExpiry,
	})

	server := websocket.NewServer(broker, func(ctx context.Context, identity, text string) error {
		ctrl, err := registry.Get(ctx, identity)
		if err != nil {
			return err
		}
		// The fallback turn has already been shown.
		if _, err := ctrl.Send(ctx, text); err != nil && !errors.Is(err, domain.ErrGeneration) {
			return err
		}
		return nil
	}, sessionHandler.Identity)
	defer server.Close()

	e := echo.New()
	e.HideBanner = true

	// Security middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"}, // In production, specify exact origins
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"X-API-Key",
			"X-API-Secret",
		},
		MaxAge: 86400, // 24 hours
	}))

	e.Use(middleware.BodyLimit("1MB"))

	// Same identity resolution as the REST session group
	wsGroup := e.Group("/ws")
	wsGroup.Use(sessionHandler.IdentityMiddleware)
	wsGroup.GET("", server.Handler)

	sessionHandler.Routes(e.Group("/api/v1"))

	go func() {
		log.With().Info("🚀 Starting server",
			zap.String("addr", cfg.ListenAddr),
			zap.Bool("account_layer", cfg.AccountLayer),
			zap.Bool("stub", cfg.GeminiStub))
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.With().Fatal("❌ Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.With().Info("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	server.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.With().Error("❌ Graceful shutdown failed", zap.Error(err))
	}
}

// accountBackend picks redis when REDIS_URL is set. Without it account
// documents live in memory, which only suits development.
func accountBackend(ctx context.Context, cfg *config.Config) (domain.SettingsBackend, error) {
	if cfg.RedisURL == "" {
		if cfg.AccountLayer {
			log.With().Warn("⚠️ REDIS_URL not set, account settings are kept in memory")
		}
		return storage.NewBackend(storage.BackendMemory)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return storage.NewBackend(storage.BackendRedis, storage.WithRedisClient(client), storage.WithRedisTTL(cfg.RedisTTL))
}
