// Package main runs the background job worker (answer upload to S3, interview analysis).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-hire/backend/config"
	"github.com/aura-hire/backend/internal/ai"
	"github.com/aura-hire/backend/internal/catalog"
	"github.com/aura-hire/backend/internal/interviews"
	"github.com/aura-hire/backend/internal/worker"
	"github.com/aura-hire/backend/pkg/database"
	"github.com/aura-hire/backend/pkg/queue"
	"github.com/aura-hire/backend/pkg/redis"
	"github.com/aura-hire/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: int32(cfg.Database.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		AnswersBucket:        cfg.AWS.AnswersBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	cat, err := catalog.Load(cfg.Interview.CatalogPath)
	if err != nil {
		logger.Fatal("language catalog", zap.Error(err))
	}
	llm, closeLLM, err := ai.NewCompleter(ctx, cfg)
	if err != nil {
		logger.Fatal("ai provider", zap.Error(err))
	}
	defer func() { _ = closeLLM() }()

	interviewRepo := interviews.NewRepository(pool)
	analysisRunner := interviews.NewAnalysisRunner(interviewRepo, ai.NewAnalyzer(llm, cat, logger), logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(interviews.NewMediaRepository(pool), s3Client, analysisRunner, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started", zap.String("ai_provider", cfg.Interview.AIProvider))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
