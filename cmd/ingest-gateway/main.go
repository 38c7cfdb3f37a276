package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/adika-dev/presensi-core/internal/device"
	"github.com/adika-dev/presensi-core/internal/handler"
	"github.com/adika-dev/presensi-core/internal/middleware"
	"github.com/adika-dev/presensi-core/internal/models"
	"github.com/adika-dev/presensi-core/internal/repository"
	"github.com/adika-dev/presensi-core/internal/service"
	"github.com/adika-dev/presensi-core/pkg/cache"
	"github.com/adika-dev/presensi-core/pkg/config"
	"github.com/adika-dev/presensi-core/pkg/database"
	"github.com/adika-dev/presensi-core/pkg/logger"
	corsmiddleware "github.com/adika-dev/presensi-core/pkg/middleware/cors"
	reqidmiddleware "github.com/adika-dev/presensi-core/pkg/middleware/requestid"
)

// @title Presensi Core API
// @version 1.0.0
// @description Fingerprint attendance ingest and reconciliation backbone
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("redis connection failed", "error", err)
		}
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
	}

	fleet, err := device.LoadFleet(cfg.DevicesConfigPath)
	if err != nil {
		logr.Sugar().Fatalw("device fleet config invalid", "error", err)
	}
	deviceClient := device.NewClient(cfg.Sync.HTTPTimeout, cfg.Sync.HTTPRetries, logr)
	adapters := make([]device.Adapter, 0, len(fleet))
	for _, devCfg := range fleet {
		adapter, err := device.New(devCfg, deviceClient, logr)
		if err != nil {
			logr.Sugar().Fatalw("device adapter init failed", "device", devCfg.Name, "error", err)
		}
		adapters = append(adapters, adapter)
	}

	eventRepo := repository.NewEventRepository(db)
	correctionRepo := repository.NewCorrectionRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	reconcileRepo := repository.NewReconcileRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	hoursRepo := repository.NewWorkingHoursRepository(db)
	jobRepo := repository.NewJobRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	queueSvc := service.NewQueueService(jobRepo, notificationRepo, metricsSvc, logr, service.QueueServiceConfig{
		MaxAttempts:     cfg.Queue.MaxAttempts,
		Lease:           cfg.Queue.Lease,
		ReclaimInterval: cfg.Queue.ReclaimInterval,
	})
	reconcileSvc := service.NewReconcileService(reconcileRepo, employeeRepo, attendanceRepo, logr)
	hoursSvc := service.NewWorkHoursService(attendanceRepo, hoursRepo, logr)
	runner := service.NewProcedureRunner(reconcileSvc, hoursSvc, logr)

	var snapshots service.SnapshotCache
	if cacheRepo != nil {
		snapshots = cacheRepo
	}
	syncSvc := service.NewSyncService(adapters, eventRepo, queueSvc, snapshots, metricsSvc, cfg.Sync, logr)
	schedulerSvc := service.NewSchedulerService(syncSvc, queueSvc, cfg.Scheduler, logr)
	eventSvc := service.NewEventService(correctionRepo, metricsSvc, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo)

	pool := service.NewWorkerPool(queueSvc, logr, cfg.Queue.Workers, cfg.Queue.PollInterval)
	pool.Register(models.JobTypeProcedure, runner.Handle)
	pool.Start(ctx)
	queueSvc.StartReclaimer(ctx)
	if cfg.Scheduler.Enabled {
		schedulerSvc.Start(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	jobHandler := handler.NewJobHandler(queueSvc)
	syncHandler := handler.NewSyncHandler(syncSvc, eventSvc)
	schedulerHandler := handler.NewSchedulerHandler(schedulerSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/jobs", jobHandler.Create)
		api.GET("/jobs", jobHandler.List)
		api.GET("/jobs/stats", jobHandler.Stats)
		api.GET("/jobs/:id", jobHandler.Get)
		api.POST("/jobs/:id/retry", jobHandler.Retry)
		api.POST("/jobs/:id/cancel", jobHandler.Cancel)

		api.POST("/sync", syncHandler.Start)
		api.POST("/sync/devices/:name", syncHandler.StartDevice)
		api.GET("/sync/status", syncHandler.Status)
		api.POST("/sync/cancel", syncHandler.Cancel)
		api.POST("/corrections", syncHandler.AppendCorrections)

		api.POST("/scheduler/run", schedulerHandler.Run)
		api.PUT("/scheduler/interval", schedulerHandler.SetInterval)

		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown incomplete", "error", err)
	}
	pool.Stop()
	logr.Sugar().Infow("stopped")
}
