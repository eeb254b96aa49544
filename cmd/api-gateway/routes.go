package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/coursedeep-api/internal/handler"
	"github.com/noah-isme/coursedeep-api/internal/middleware"
	"github.com/noah-isme/coursedeep-api/internal/models"
	"github.com/noah-isme/coursedeep-api/internal/service"
	"github.com/noah-isme/coursedeep-api/pkg/config"
	"github.com/noah-isme/coursedeep-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/coursedeep-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/coursedeep-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth        *service.AuthService
	metrics     *service.MetricsService
	enrollments *handler.EnrollmentHandler
	reports     *handler.ReportHandler
	users       *handler.UserHandler
	courses     *handler.CourseHandler
	audit       middleware.AuditRecorder
	probes      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if deps.metrics != nil {
		r.Use(middleware.Metrics(deps.metrics))
	}

	r.GET("/health", deps.probes.Health)
	r.GET("/ready", deps.probes.Ready)
	if deps.metrics != nil {
		r.GET("/metrics", deps.probes.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := middleware.RequireRoles(models.RoleAdmin)
	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.auth))

	enrollments := api.Group("/enrollments")
	enrollments.GET("", admin, deps.enrollments.List)
	enrollments.POST("", deps.enrollments.Create)
	enrollments.GET("/user/:email", middleware.RBAC(string(models.RoleAdmin), middleware.SelfEmail), deps.enrollments.ListByUser)
	enrollments.GET("/check-duplicate/:courseId", deps.enrollments.CheckDuplicate)
	enrollments.GET("/:id", deps.enrollments.Get)
	enrollments.GET("/:id/course-content", deps.enrollments.CourseContent)
	enrollments.PATCH("/:id/progress", deps.enrollments.UpdateProgress)
	enrollments.POST("/:id/complete-lesson", deps.enrollments.CompleteLesson)

	if cfg.Reports.Enabled {
		enrollments.GET("/:id/certificate", deps.reports.Certificate)
		api.GET("/courses/:id/progress-report", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), deps.reports.ProgressReport)
	}

	api.DELETE("/courses/cache", admin,
		middleware.Audit(deps.audit, logr, models.AuditActionCourseCacheFlush, "course_cache"), deps.courses.FlushCache)
	api.DELETE("/users/:id", admin,
		middleware.Audit(deps.audit, logr, models.AuditActionUserDelete, "user"), deps.users.Delete)
	return r
}
