// Package main runs the live-streaming platform HTTP server with WebSocket
// gateway and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fanzlive/backend/config"
	"github.com/fanzlive/backend/internal/analytics"
	"github.com/fanzlive/backend/internal/auth"
	"github.com/fanzlive/backend/internal/chat"
	"github.com/fanzlive/backend/internal/gifts"
	"github.com/fanzlive/backend/internal/highlights"
	"github.com/fanzlive/backend/internal/live"
	"github.com/fanzlive/backend/internal/live/store"
	"github.com/fanzlive/backend/internal/middleware"
	"github.com/fanzlive/backend/internal/participants"
	"github.com/fanzlive/backend/internal/reactions"
	"github.com/fanzlive/backend/internal/recordings"
	"github.com/fanzlive/backend/internal/streams"
	"github.com/fanzlive/backend/internal/verification"
	"github.com/fanzlive/backend/internal/viewers"
	"github.com/fanzlive/backend/internal/worker"
	"github.com/fanzlive/backend/pkg/database"
	"github.com/fanzlive/backend/pkg/queue"
	"github.com/fanzlive/backend/pkg/redis"
	"github.com/fanzlive/backend/pkg/response"
	"github.com/fanzlive/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
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
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Repositories
	authRepo := auth.NewRepository(pool)
	streamRepo := streams.NewRepository(pool)
	participantRepo := participants.NewRepository(pool)
	chatRepo := chat.NewRepository(pool)
	giftRepo := gifts.NewRepository(pool)
	reactionRepo := reactions.NewRepository(pool)
	highlightRepo := highlights.NewRepository(pool)
	viewerRepo := viewers.NewRepository(pool)
	analyticsRepo := analytics.NewRepository(pool)
	recordingRepo := recordings.NewRepository(pool)

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Live core
	pubsub := live.NewRedisPubSub(rdb.Client, logger)
	hub := live.NewHub(logger, pubsub, pubsub)
	liveStore := &store.Store{
		Streams:      streamRepo,
		Participants: participantRepo,
		Chat:         chatRepo,
		Gifts:        giftRepo,
		Reactions:    reactionRepo,
		Highlights:   highlightRepo,
		Viewers:      viewerRepo,
		Analytics:    analyticsRepo,
		Recordings:   recordingRepo,
	}
	gate := verification.NewGate(authRepo)
	orch := live.NewOrchestrator(
		cfg.Stream,
		live.NewRegistry(),
		liveStore,
		&store.Users{Repo: authRepo},
		gate,
		&store.Jobs{Queue: jobQueue},
		hub,
		cfg.WebRTC.ICEUrls,
		logger,
	)

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	streamHandler := streams.NewHandler(streamRepo, orch, logger)
	analyticsHandler := analytics.NewHandler(analyticsRepo, streamRepo, orch, logger)
	recordingHandler := recordings.NewHandler(recordingRepo, s3Client, logger)

	wsAuth := func(token string) (uuid.UUID, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.UserID, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/users/:id/verify", middleware.RequireRole("admin"), authHandler.Verify)

		api.GET("/streams", streamHandler.List)
		api.GET("/streams/mine", streamHandler.ListMine)
		api.POST("/streams", middleware.RequireRole("creator", "admin"), streamHandler.Create)
		api.GET("/streams/:id", streamHandler.Get)
		api.GET("/streams/:id/analytics", analyticsHandler.Get)
		api.GET("/streams/:id/recordings", recordingHandler.ListByStream)
		api.GET("/recordings/:id/download-url", recordingHandler.DownloadURL)
	}

	// WebSocket gateway; authentication happens via the authenticate message.
	router.GET("/ws", live.ServeWs(hub, orch, wsAuth, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go orch.RunHighlightLoop(bgCtx)
	go orch.RunSweepLoop(bgCtx)
	go orch.RunRetentionLoop(bgCtx)

	// In-process post-processing worker; cmd/worker runs the same loop
	// standalone for deployments that separate it.
	if s3Client != nil {
		processor := worker.NewPostProcessor(recordingRepo, streamRepo, s3Client, jobQueue, logger)
		go processor.Run(bgCtx)
		logger.Info("post-processing worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
