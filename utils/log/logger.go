package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const (
	IdentityKey  ctxKey = "identity"
	SessionIDKey ctxKey = "session_id"
)

var logger *zap.Logger

func init() {
	if os.Getenv("DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
}

// Setup replaces the package logger. When filePath is set, JSON entries are
// also written to a rotated file next to the console output.
func Setup(debug bool, filePath string) {
	consoleEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	level := zap.InfoLevel
	if debug {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level = zap.DebugLevel
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	if filePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    10, // Megabytes
			MaxBackups: 5,
			MaxAge:     30, // Days
			Compress:   true,
		}
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), zap.InfoLevel))
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// Sync flushes buffered entries.
func Sync() {
	_ = logger.Sync()
}

func WithContext(ctx context.Context, identity, sessionID string) context.Context {
	if identity != "" {
		ctx = context.WithValue(ctx, IdentityKey, identity)
	}
	if sessionID != "" {
		ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	}
	return ctx
}

func WithCtx(ctx context.Context) *zap.Logger {
	fields := []zap.Field{}

	if v := ctx.Value(IdentityKey); v != nil {
		fields = append(fields, zap.Any("identity", v))
	}
	if v := ctx.Value(SessionIDKey); v != nil {
		fields = append(fields, zap.Any("session_id", v))
	}

	return logger.With(fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}
