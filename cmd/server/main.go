// Package main runs the interview platform HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-hire/backend/config"
	"github.com/aura-hire/backend/internal/ai"
	"github.com/aura-hire/backend/internal/auth"
	"github.com/aura-hire/backend/internal/catalog"
	"github.com/aura-hire/backend/internal/conduct"
	"github.com/aura-hire/backend/internal/interviews"
	"github.com/aura-hire/backend/internal/middleware"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/realtime"
	"github.com/aura-hire/backend/internal/session"
	"github.com/aura-hire/backend/pkg/database"
	"github.com/aura-hire/backend/pkg/queue"
	"github.com/aura-hire/backend/pkg/redis"
	"github.com/aura-hire/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AnswersBucket:        cfg.AWS.AnswersBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
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

	var transcriber session.Transcriber
	if cfg.OpenAI.APIKey != "" {
		transcriber = ai.NewOpenAIClient(ai.OpenAIConfigFrom(cfg.OpenAI))
	} else {
		logger.Warn("OPENAI_API_KEY not set, speech-to-text disabled")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.InviteExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	sfu := realtime.NewSFU(logger, realtime.ICEServers(cfg.WebRTC.ICEUrls))
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	interviewRepo := interviews.NewRepository(pool)

	// Live sessions
	conductDeps := conduct.Deps{
		Interviews: interviewRepo,
		Store:      interviewRepo,
		Jobs:       jobQueue,
		Archiver:   conduct.NewSpoolArchiver(cfg.Recording.OutputDir, jobQueue, logger),
		Hub:        hub,
		SFU:        sfu,
		JWT:        jwtService,
		Logger:     logger,
		Timing: conduct.Timing{
			SettleDelay:   cfg.Interview.SettleDelay(),
			DrainTimeout:  cfg.Interview.DrainTimeout(),
			DeviceTimeout: cfg.Interview.DeviceTimeout(),
		},
	}
	if transcriber != nil {
		conductDeps.Transcriber = transcriber
	}
	conductSvc := conduct.NewService(conductDeps)

	// Interviews
	mediaRepo := interviews.NewMediaRepository(pool)
	analysisRunner := interviews.NewAnalysisRunner(interviewRepo, ai.NewAnalyzer(llm, cat, logger), logger)
	interviewDeps := interviews.Deps{
		Store:      interviewRepo,
		Media:      mediaRepo,
		Candidates: authRepo,
		Questions:  ai.NewQuestionGenerator(llm, cat, cfg.Interview.QuestionCount, logger),
		Analysis:   analysisRunner,
		Sessions:   conductSvc,
		JWT:        jwtService,
		Logger:     logger,
	}
	if s3Client != nil {
		interviewDeps.Linker = s3Client
	}
	if transcriber != nil {
		interviewDeps.Transcriber = transcriber
	}
	interviewHandler := interviews.NewHandler(interviewDeps)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		checkCtx := c.Request.Context()
		dbOK := pool.Ping(checkCtx) == nil
		redisOK := rdb.Healthy(checkCtx)
		if !dbOK || !redisOK {
			c.JSON(http.StatusServiceUnavailable, response.Body{
				Success: false,
				Data:    gin.H{"database": dbOK, "redis": redisOK},
				Error:   "unhealthy",
			})
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)
	interviewHandler.Routes(api)

	// WebSocket (token in query; no Authorization header required)
	conductSvc.Routes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("ai_provider", cfg.Interview.AIProvider))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	conductSvc.Shutdown()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
