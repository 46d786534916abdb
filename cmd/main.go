package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filterbot/backend/internal/api/handler"
	"filterbot/backend/internal/broadcast"
	"filterbot/backend/internal/commands"
	"filterbot/backend/internal/config"
	"filterbot/backend/internal/ephemeral"
	"filterbot/backend/internal/localization"
	"filterbot/backend/internal/storage"
	"filterbot/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

// setupDependencies opens the stores. Postgres and Redis are optional; without them settings
// live in SETTINGS_FILE and greeting cursors in memory.
func setupDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage.FileStore, storage.SettingsStorage, broadcast.CursorStore) {
	filters, err := storage.NewFileStore(cfg.FiltersFile, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.FiltersFile).Msg("Failed to load filters")
	}

	var settings storage.SettingsStorage
	if cfg.DatabaseDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect PostgreSQL")
		}
		settings, err = storage.NewGormSettingsStore(db, cfg.SelfDestructSeconds)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to run settings migration")
		}
		log.Info().Msg("Settings stored in PostgreSQL")
	} else {
		settings, err = storage.NewFileSettingsStore(cfg.SettingsFile, cfg.SelfDestructSeconds)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SettingsFile).Msg("Failed to load settings")
		}
	}

	var cursors broadcast.CursorStore = broadcast.NewMemoryCursorStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect Redis")
		}
		cursors = broadcast.NewRedisCursorStore(rdb, 2*config.GreetingCooldown)
		log.Info().Msg("Greeting cursors stored in Redis")
	}

	return filters, settings, cursors
}

func serveAdmin(ctx context.Context, cfg *config.Config, h *handler.Handler, log zerolog.Logger) {
	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("Admin API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Admin API stopped")
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		startupLog := newLogger("info")
		startupLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := newLogger(cfg.LogLevel)
	log.Info().Msg("Starting filter bot...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filters, settings, cursors := setupDependencies(ctx, cfg, log)

	loc, err := localization.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load locales")
	}

	bot, err := telegram.NewBotAPI(cfg.BotToken, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start Telegram bot")
	}

	roster := telegram.NewRoster(config.RecentSendersPerRoom)
	client := telegram.NewClient(bot, roster)
	tracker := ephemeral.NewTracker(client, log)
	defer tracker.Stop()

	gate := broadcast.NewGate(cursors, log)
	facade := commands.NewFacade(client, filters, settings, tracker, gate, loc, log)
	facade.BotUsername = bot.Self.UserName
	facade.CommunityURL = cfg.CommunityURL

	if cfg.HTTPAddr != "" {
		go serveAdmin(ctx, cfg, handler.NewHandler(filters, settings, cfg.AdminJWTSecret, log), log)
	}

	telegram.NewBotService(bot, facade, roster, log).Run(ctx)
	log.Info().Int("pending_deletions", tracker.Len()).Msg("Shutting down")
}
