package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

type Config struct {
	ListenAddr string
	Debug      bool
	LogFile    string

	GeminiModel     string
	GeminiStub      bool
	GeminiVerifyKey bool
	MaxReplyTokens  int

	AccountLayer bool
	Accounts     map[string]string
	JWTSecret    string
	JWTExpiry    time.Duration

	LocalDBPath string
	RedisURL    string
	RedisTTL    time.Duration

	WelcomeBackAfter time.Duration
	NudgeMinDelay    time.Duration
	NudgeMaxDelay    time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = gotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		ListenAddr: p.str("LISTEN_ADDR", ":8080"),
		Debug:      p.boolean("DEBUG", false),
		LogFile:    p.str("LOG_FILE", ""),

		GeminiModel:     p.str("GEMINI_MODEL", "gemini-2.0-flash-001"),
		GeminiStub:      p.boolean("GEMINI_STUB", false),
		GeminiVerifyKey: p.boolean("GEMINI_VERIFY_KEY", true),
		MaxReplyTokens:  p.integer("MAX_REPLY_TOKENS", 100),

		AccountLayer: p.boolean("ACCOUNT_LAYER", false),
		Accounts:     p.accounts("ACCOUNTS"),
		JWTSecret:    p.str("JWT_SECRET", ""),
		JWTExpiry:    p.duration("JWT_EXPIRY", 24*time.Hour),

		LocalDBPath: p.str("LOCAL_DB_PATH", "companion.db"),
		RedisURL:    p.str("REDIS_URL", ""),
		RedisTTL:    p.duration("REDIS_TTL", 0),

		WelcomeBackAfter: p.duration("WELCOME_BACK_AFTER", time.Hour),
		NudgeMinDelay:    p.duration("NUDGE_MIN_DELAY", time.Minute),
		NudgeMaxDelay:    p.duration("NUDGE_MAX_DELAY", 5*time.Minute),
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.MaxReplyTokens <= 0 {
		return nil, fmt.Errorf("MAX_REPLY_TOKENS must be positive, got %d", cfg.MaxReplyTokens)
	}
	if cfg.NudgeMinDelay <= 0 || cfg.NudgeMaxDelay < cfg.NudgeMinDelay {
		return nil, fmt.Errorf("nudge delay range [%s, %s] is invalid", cfg.NudgeMinDelay, cfg.NudgeMaxDelay)
	}
	if cfg.AccountLayer {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required when ACCOUNT_LAYER is enabled")
		}
		if len(cfg.Accounts) == 0 {
			return nil, fmt.Errorf("ACCOUNTS is required when ACCOUNT_LAYER is enabled")
		}
	}
	return cfg, nil
}

// parser keeps the first error so Load can report it after reading every key.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

// accounts parses "user:secret,user2:secret2".
func (p *parser) accounts(key string) map[string]string {
	out := map[string]string{}
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		user, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || user == "" || secret == "" {
			p.fail(key, pair, fmt.Errorf("expected user:secret"))
			continue
		}
		out[user] = secret
	}
	return out
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
