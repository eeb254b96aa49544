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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/coursedeep-api/api/swagger"
	"github.com/noah-isme/coursedeep-api/internal/handler"
	"github.com/noah-isme/coursedeep-api/internal/progress"
	"github.com/noah-isme/coursedeep-api/internal/repository"
	"github.com/noah-isme/coursedeep-api/internal/service"
	"github.com/noah-isme/coursedeep-api/pkg/cache"
	"github.com/noah-isme/coursedeep-api/pkg/config"
	"github.com/noah-isme/coursedeep-api/pkg/database"
	"github.com/noah-isme/coursedeep-api/pkg/logger"
)

// @title Course Deep API
// @version 1.0.0
// @description Course enrollment and lesson progress tracking
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.CourseCache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	validate := validator.New()
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	userRepo := repository.NewUserRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.CourseCache.TTL, logr, redisClient != nil)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, cfg.CourseCache.TTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseSvc, progress.NewEngine(nil), metrics, validate, logr)
	reportSvc := service.NewReportService(enrollmentRepo, courseSvc, service.ReportConfig{CertificateIssuer: cfg.Reports.CertificateIssuer}, logr, nil, nil)
	userSvc := service.NewUserService(userRepo, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Leeway: 30 * time.Second})

	checks := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}

	router := newRouter(cfg, logr, routeDeps{
		auth:        authSvc,
		metrics:     metrics,
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		reports:     handler.NewReportHandler(reportSvc),
		users:       handler.NewUserHandler(userSvc),
		courses:     handler.NewCourseHandler(courseSvc),
		audit:       userRepo,
		probes:      handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
