// Command cleanup soft-deletes conversations older than the configured
// retention window. Run it from cron or a Kubernetes CronJob.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/conversation"
	"github.com/RichardoC/realty-assistant/internal/db"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
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

	n, err := conversation.New(database, cfg.Conversation, logger).CleanupOldConversations(ctx)
	if err != nil {
		logger.Error("cleanup failed", zap.Error(err))
		database.Close()
		os.Exit(1)
	}
	logger.Info("cleanup finished", zap.Int64("conversations", n))
}
