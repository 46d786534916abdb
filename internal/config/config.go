// Package config loads process configuration from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	// Greeting window, local hour of day, [start, end).
	GreetingWindowStart = 6
	GreetingWindowEnd   = 10
	GreetingCooldown    = 24 * time.Hour

	// MaxSelfDestructSeconds is 48h: Telegram refuses to delete bot messages older than that.
	MaxSelfDestructSeconds = 48 * 60 * 60

	// MaxMentions caps the mention list of a greeting.
	MaxMentions = 8
	// RecentSendersPerRoom is how many distinct senders the roster remembers per room.
	RecentSendersPerRoom = 50

	DefaultFiltersFile  = "chat_filters.json"
	DefaultSettingsFile = "bot_settings.json"
)

// ErrMissingToken is returned when TELEGRAM_BOT_TOKEN is not set.
var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// Config is the validated process configuration.
type Config struct {
	BotToken            string `validate:"required"`
	FiltersFile         string `validate:"required"`
	SettingsFile        string `validate:"required"`
	DatabaseDSN         string
	RedisAddr           string `validate:"omitempty,hostname_port"`
	HTTPAddr            string
	CommunityURL        string `validate:"omitempty,url"`
	AdminJWTSecret      string `validate:"required_with=HTTPAddr"`
	LogLevel            string `validate:"oneof=trace debug info warn error"`
	SelfDestructSeconds int    `validate:"gte=0,lte=172800"`
}

// Load reads .env (if present) and the environment into a Config.
// A missing .env file is not an error; a missing bot token is.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, so tests don't have to touch the process env.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		BotToken:       getenv("TELEGRAM_BOT_TOKEN"),
		FiltersFile:    orDefault(getenv("FILTERS_FILE"), DefaultFiltersFile),
		SettingsFile:   orDefault(getenv("SETTINGS_FILE"), DefaultSettingsFile),
		DatabaseDSN:    getenv("DATABASE_DSN"),
		RedisAddr:      getenv("REDIS_ADDR"),
		HTTPAddr:       getenv("HTTP_ADDR"),
		CommunityURL:   getenv("COMMUNITY_URL"),
		AdminJWTSecret: getenv("ADMIN_JWT_SECRET"),
		LogLevel:       orDefault(getenv("LOG_LEVEL"), "info"),
	}
	if cfg.BotToken == "" {
		return nil, ErrMissingToken
	}

	if raw := getenv("SELF_DESTRUCT_SECONDS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SELF_DESTRUCT_SECONDS %q: %w", raw, err)
		}
		cfg.SelfDestructSeconds = n
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
