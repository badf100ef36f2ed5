package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/realty-assistant/internal/api"
	"github.com/RichardoC/realty-assistant/internal/assistant"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/conversation"
	"github.com/RichardoC/realty-assistant/internal/db"
	"github.com/RichardoC/realty-assistant/internal/llm"
	"github.com/RichardoC/realty-assistant/internal/property"
	"github.com/RichardoC/realty-assistant/internal/ratelimit"
	"github.com/RichardoC/realty-assistant/internal/version"
	"github.com/RichardoC/realty-assistant/internal/voice"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func newLogger(env string) (*zap.Logger, error) {
	if env == config.EnvDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Server.Development() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.Database.Path))
	}
	defer database.Close()

	generator, err := llm.New(cfg.AI, logger)
	if err != nil {
		logger.Fatal("failed to initialize response generator", zap.Error(err))
	}

	voiceClient, err := voice.NewClient(cfg.Voice, logger)
	if err != nil {
		logger.Fatal("failed to initialize voice client", zap.Error(err))
	}
	if !voiceClient.Configured() {
		logger.Warn("ELEVENLABS_API_KEY not set, voice synthesis will fail")
	}

	conversations := conversation.New(database, cfg.Conversation, logger)
	handler := api.NewHandler(api.Deps{
		Config:        cfg,
		Database:      database,
		Conversations: conversations,
		Assistant:     assistant.New(conversations, generator, voiceClient, cfg.AI, logger),
		Voice:         voiceClient,
		Properties:    property.New(database, cfg.RealEstate, logger),
		Logger:        logger,
	})

	limits, closeLimits, err := newLimits(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize rate limiters", zap.Error(err))
	}
	defer closeLimits()

	router, err := api.NewRouter(handler, limits)
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("version", version.Info()),
			zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newLimits uses Redis when REDIS_ADDR is set so limits hold across replicas,
// and in-process windows otherwise.
func newLimits(ctx context.Context, cfg *config.Config, logger *zap.Logger) (api.Limits, func(), error) {
	rl := cfg.RateLimit
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return api.Limits{}, nil, err
		}
		logger.Info("using redis rate limiter", zap.String("addr", cfg.Redis.Addr))
		return api.Limits{
			API:   ratelimit.NewRedis(client, "rl:api:", rl.API.Max, rl.API.Window),
			Chat:  ratelimit.NewRedis(client, "rl:chat:", rl.Chat.Max, rl.Chat.Window),
			Voice: ratelimit.NewRedis(client, "rl:voice:", rl.Voice.Max, rl.Voice.Window),
		}, func() { _ = client.Close() }, nil
	}

	apiLimit := ratelimit.NewMemory(rl.API.Max, rl.API.Window)
	chatLimit := ratelimit.NewMemory(rl.Chat.Max, rl.Chat.Window)
	voiceLimit := ratelimit.NewMemory(rl.Voice.Max, rl.Voice.Window)
	for _, m := range []*ratelimit.Memory{apiLimit, chatLimit, voiceLimit} {
		go m.RunSweeper(ctx, time.Minute)
	}
	return api.Limits{API: apiLimit, Chat: chatLimit, Voice: voiceLimit}, func() {}, nil
}
