package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable/api/swagger"
	"github.com/noah-isme/sma-timetable/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable/internal/middleware"
	"github.com/noah-isme/sma-timetable/internal/repository"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	"github.com/noah-isme/sma-timetable/internal/service"
	"github.com/noah-isme/sma-timetable/pkg/cache"
	"github.com/noah-isme/sma-timetable/pkg/config"
	"github.com/noah-isme/sma-timetable/pkg/database"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
	"github.com/noah-isme/sma-timetable/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable/pkg/middleware/requestid"
)

// @title Timetable API
// @version 1.0.0
// @description Constraint-based timetable generation over stored course catalogs
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, proposals stay in memory", zap.Error(err))
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	var backend service.ProposalBackend
	if redisClient != nil && cfg.Scheduler.CacheProposals {
		proposalRepo := repository.NewProposalCacheRepository(redisClient, "", logr)
		defer proposalRepo.Close() //nolint:errcheck
		backend = proposalRepo
	}
	proposals := service.NewCacheService(backend, metricsSvc, cfg.Scheduler.ProposalTTL, logr)

	generator := service.NewTimetableGeneratorService(
		repository.NewCatalogRepository(db),
		repository.NewTimetableRepository(db),
		repository.NewTimetableEntryRepository(db),
		proposals,
		db,
		service.NewExportService(nil, nil),
		metricsSvc,
		validator.New(),
		logr,
		service.TimetableGeneratorConfig{
			ProposalTTL: cfg.Scheduler.ProposalTTL,
			RunTimeout:  cfg.Scheduler.RunTimeout,
			Bounds: scheduler.DurationBounds{
				Min: cfg.Scheduler.MinSessionMinutes,
				Max: cfg.Scheduler.MaxSessionMinutes,
			},
			OnePerDay:       cfg.Scheduler.OnePerDay,
			MaxParallelRuns: cfg.Scheduler.MaxParallelRuns,
		},
	)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	var queue *jobs.Queue
	if cfg.Scheduler.Enabled {
		queue = jobs.NewQueue("timetable-generation", generator.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Scheduler.Workers,
			MaxRetries: cfg.Scheduler.Retries,
			RetryDelay: 2 * time.Second,
			Tracker:    jobs.NewTracker(cfg.Scheduler.ProposalTTL),
			Logger:     logr,
		})
		queue.Start(queueCtx)
		generator.AttachQueue(queue)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	opsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			return cache.Ping(ctx, redisClient)
		},
	})
	r.GET("/health", opsHandler.Health)
	r.GET("/ready", opsHandler.Ready)
	r.GET("/metrics", opsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	handler.NewTimetableHandler(generator).Register(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	if queue != nil {
		queue.Stop()
	}
	if redisClient != nil && backend == nil {
		_ = redisClient.Close()
	}
}
