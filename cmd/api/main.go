package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edubase/center-ops-api/api/swagger"
	"github.com/edubase/center-ops-api/internal/handler"
	"github.com/edubase/center-ops-api/internal/middleware"
	"github.com/edubase/center-ops-api/internal/models"
	"github.com/edubase/center-ops-api/internal/repository"
	"github.com/edubase/center-ops-api/internal/service"
	"github.com/edubase/center-ops-api/pkg/cache"
	"github.com/edubase/center-ops-api/pkg/config"
	"github.com/edubase/center-ops-api/pkg/database"
	"github.com/edubase/center-ops-api/pkg/jobs"
	"github.com/edubase/center-ops-api/pkg/logger"
	corsmiddleware "github.com/edubase/center-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edubase/center-ops-api/pkg/middleware/requestid"
	"github.com/edubase/center-ops-api/pkg/storage"
)

// @title Center Ops API
// @version 0.1.0
// @description Student request lifecycle, attendance timelines and scheduling conflicts
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	cacheSvc := service.NewCacheService(nil, metrics, cfg.Overview.CacheTTL, logr, false)
	if cfg.Overview.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, overview cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Overview.CacheTTL, logr, true)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	requestRepo := repository.NewRequestRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	studentSessionRepo := repository.NewStudentSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services.
	authSvc := service.NewAuthService(cfg.JWT.Secret, logr)
	notifier := service.NewLoggingNotifier(logr)
	timelineSvc := service.NewTimelineService(studentSessionRepo, enrollmentRepo, sessionRepo, classRepo, cacheSvc, cfg.Overview.CacheTTL, logr)
	capacitySvc := service.NewCapacityService(classRepo, enrollmentRepo, sessionRepo, logr)
	conflictSvc := service.NewConflictService(resourceRepo, logr)
	requestSvc := service.NewRequestService(service.RequestServiceDeps{
		Requests:         requestRepo,
		Approvals:        approvalRepo,
		Students:         studentRepo,
		Users:            userRepo,
		Classes:          classRepo,
		Sessions:         sessionRepo,
		StudentSessions:  studentSessionRepo,
		Enrollments:      enrollmentRepo,
		Capacity:         capacitySvc,
		Timeline:         timelineSvc,
		Audit:            auditRepo,
		Notifier:         notifier,
		Metrics:          metrics,
		MinLeadTime:      cfg.Requests.MinLeadTime,
		AbsenceThreshold: cfg.Requests.AbsenceWarnThreshold,
		Logger:           logr,
	})
	expirySvc := service.NewExpiryService(requestRepo, auditRepo, notifier, metrics, cfg.Requests.ExpiryCutoff, cfg.Requests.ExpirySweepBatch, logr)

	expiryScheduler := jobs.NewScheduler("request-expiry", cfg.Requests.ExpirySweepInterval, func(ctx context.Context) error {
		_, err := expirySvc.Sweep(ctx)
		return err
	}, logr)
	expiryScheduler.Start(ctx)
	defer expiryScheduler.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requestHandler := handler.NewRequestHandler(requestSvc)
	attendanceHandler := handler.NewAttendanceHandler(timelineSvc)
	resourceHandler := handler.NewResourceHandler(conflictSvc)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	api.POST("/requests", requestHandler.Submit)
	api.GET("/requests", requestHandler.List)
	api.GET("/requests/:id", requestHandler.Get)
	api.POST("/requests/:id/decision", middleware.RequireStaff(), requestHandler.Decide)
	api.POST("/requests/:id/cancel", middleware.RBAC(models.RoleStudent), requestHandler.Cancel)

	api.GET("/students/:studentId/attendance", attendanceHandler.Overview)
	api.GET("/students/:studentId/attendance/:classId", attendanceHandler.Report)
	api.GET("/students/:studentId/absence-rate/:classId", attendanceHandler.AbsenceRate)

	api.GET("/resources/available", middleware.RequireStaff(), resourceHandler.Available)
	api.GET("/resources/:id/conflict", middleware.RequireStaff(), resourceHandler.Conflict)
	api.GET("/resources/:id/next-usage", middleware.RequireStaff(), resourceHandler.NextUsage)
	api.POST("/resources/:id/deactivate", middleware.RequireStaff(), resourceHandler.Deactivate)
	api.POST("/time-slots/:id/deactivate", middleware.RequireStaff(), resourceHandler.DeactivateTimeSlot)

	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportRepo := repository.NewReportJobRepository(db)
		exportSvc := service.NewExportService(timelineSvc, studentRepo, store, signer,
			service.ExportConfig{ResultTTL: cfg.Reports.SignedURLTTL}, logr, nil, nil)
		worker := service.NewReportWorker(reportRepo, exportSvc, metrics, cfg.Reports.WorkerRetries, logr)
		reportQueue := jobs.NewQueue("attendance-reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, metrics, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)

		reportHandler := handler.NewReportHandler(reportSvc)
		api.POST("/reports/attendance", middleware.Audit(auditRepo, models.AuditActionReportExport, "report_job"), reportHandler.Create)
		api.GET("/reports/attendance/:id", reportHandler.Status)
		// The signed token carries its own authorization; no JWT needed.
		r.GET(cfg.APIPrefix+"/reports/attendance/download", reportHandler.Download)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("shutdown incomplete", "error", err)
	}
}
