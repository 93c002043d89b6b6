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

	_ "github.com/noah-isme/markaz-adp-api/api/swagger"
	"github.com/noah-isme/markaz-adp-api/internal/handler"
	"github.com/noah-isme/markaz-adp-api/internal/repository"
	"github.com/noah-isme/markaz-adp-api/internal/router"
	"github.com/noah-isme/markaz-adp-api/internal/service"
	"github.com/noah-isme/markaz-adp-api/internal/validation"
	"github.com/noah-isme/markaz-adp-api/pkg/cache"
	"github.com/noah-isme/markaz-adp-api/pkg/config"
	"github.com/noah-isme/markaz-adp-api/pkg/database"
	"github.com/noah-isme/markaz-adp-api/pkg/jobs"
	"github.com/noah-isme/markaz-adp-api/pkg/logger"
)

// @title Markaz ADP API
// @version 1.0.0
// @description Administration API for a private tutoring institute
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// the dues cache is optional; the API serves uncached summaries
		logr.Sugar().Warnw("redis unavailable, dues cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := validation.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	levelRepo := repository.NewLevelRepository(db)
	pricingRepo := repository.NewPricingRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	teacherSvc := service.NewTeacherService(userRepo, validate, logr)
	levelSvc := service.NewLevelService(levelRepo, validate, logr)
	pricingSvc := service.NewPricingService(pricingRepo, userRepo, validate, logr)

	lessonSvc := service.NewLessonService(lessonRepo, pricingSvc, studentRepo, userRepo, validate, logr)
	duesSvc := service.NewDuesService(studentRepo, lessonRepo, paymentRepo, redisClient, service.DuesCacheConfig{
		Enabled: cfg.Dues.CacheEnabled,
		TTL:     cfg.Dues.CacheTTL,
	}, userRepo, logr)
	duesSvc.AttachMetrics(metricsSvc)
	lessonSvc.AttachDues(duesSvc)
	lessonSvc.AttachMetrics(metricsSvc)

	studentSvc := service.NewStudentService(studentRepo, lessonRepo, levelRepo, pricingSvc, userRepo, validate, logr)
	studentSvc.AttachDues(duesSvc)

	paymentSvc := service.NewPaymentService(paymentRepo, studentRepo, duesSvc, duesSvc, userRepo, validate, logr)

	exportSvc := service.NewExportService(duesSvc, reportRepo, studentRepo, lessonRepo, cfg.Reports.StorageDir, validate, logr)
	exportSvc.AttachMetrics(metricsSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportQueue := jobs.NewQueue("reports", exportSvc.ProcessReportJob, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportQueue.Start(ctx)
	defer reportQueue.Stop()
	exportSvc.AttachQueue(reportQueue)

	r := router.New(router.Dependencies{
		Config:   cfg,
		Logger:   logr,
		Auth:     authSvc,
		Metrics:  metricsSvc,
		UserRepo: userRepo,
		Handlers: router.Handlers{
			Auth:     handler.NewAuthHandler(authSvc),
			Teachers: handler.NewTeacherHandler(teacherSvc),
			Students: handler.NewStudentHandler(studentSvc, exportSvc),
			Levels:   handler.NewLevelHandler(levelSvc),
			Pricing:  handler.NewPricingHandler(pricingSvc),
			Lessons:  handler.NewLessonHandler(lessonSvc, exportSvc),
			Payments: handler.NewPaymentHandler(paymentSvc),
			Dues:     handler.NewDuesHandler(duesSvc, exportSvc),
			Reports:  handler.NewReportHandler(exportSvc),
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
