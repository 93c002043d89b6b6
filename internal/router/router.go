package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/markaz-adp-api/internal/handler"
	"github.com/noah-isme/markaz-adp-api/internal/middleware"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	"github.com/noah-isme/markaz-adp-api/internal/repository"
	"github.com/noah-isme/markaz-adp-api/internal/service"
	"github.com/noah-isme/markaz-adp-api/pkg/config"
	"github.com/noah-isme/markaz-adp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/markaz-adp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/markaz-adp-api/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Teachers *handler.TeacherHandler
	Students *handler.StudentHandler
	Levels   *handler.LevelHandler
	Pricing  *handler.PricingHandler
	Lessons  *handler.LessonHandler
	Payments *handler.PaymentHandler
	Dues     *handler.DuesHandler
	Reports  *handler.ReportHandler
}

// Dependencies carries the cross-cutting pieces the router wires in.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Auth     *service.AuthService
	Metrics  *service.MetricsService
	UserRepo *repository.UserRepository
	Handlers Handlers
}

// New builds the gin engine with all middleware and routes mounted.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	h := deps.Handlers

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	// everything below requires a valid access token
	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Auth))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.GET("/auth/me", h.Auth.Me)
	authed.POST("/auth/change-password", h.Auth.ChangePassword)
	authed.GET("/profile", h.Auth.Profile)
	authed.PUT("/profile", h.Auth.UpdateProfile)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	managers := middleware.RequireRoles(models.RoleAdmin, models.RoleSubAdmin)

	teachers := authed.Group("/teachers", adminOnly)
	{
		teachers.GET("", h.Teachers.List)
		teachers.GET("/:id", h.Teachers.Get)
		teachers.POST("", h.Teachers.Create)
		teachers.PUT("/:id", h.Teachers.Update)
		teachers.DELETE("/:id", h.Teachers.Deactivate)
	}

	students := authed.Group("/students")
	{
		students.GET("", h.Students.List)
		students.GET("/export", managers, middleware.Audit(deps.UserRepo, models.AuditActionExport, "students"), h.Students.Export)
		students.GET("/:id", h.Students.Get)
		students.POST("", managers, h.Students.Create)
		students.PUT("/:id", managers, h.Students.Update)
		students.DELETE("/:id", managers, h.Students.Delete)
	}

	levels := authed.Group("/education-levels")
	{
		levels.GET("", h.Levels.List)
		levels.GET("/:id", h.Levels.Get)
		levels.POST("", managers, h.Levels.Create)
	}

	pricing := authed.Group("/pricing")
	{
		pricing.GET("/rules", h.Pricing.ListRules)
		pricing.PUT("/rules", managers, h.Pricing.UpsertRule)
		pricing.GET("/remedial", h.Pricing.RemedialSettings)
		pricing.PUT("/remedial", managers, h.Pricing.UpdateRemedialSettings)
	}

	tiers := authed.Group("/group-pricing-tiers")
	{
		tiers.GET("", h.Pricing.ListTiers)
		tiers.POST("", managers, h.Pricing.CreateTier)
		tiers.DELETE("/:id", managers, h.Pricing.DeleteTier)
	}

	// teachers reach their own lessons; ownership is enforced in the
	// service layer, approval and deletion stay with managers
	lessons := authed.Group("/lessons")
	{
		lessons.GET("/export", managers, middleware.Audit(deps.UserRepo, models.AuditActionExport, "lessons"), h.Lessons.Export)

		individual := lessons.Group("/individual")
		{
			individual.GET("", h.Lessons.ListIndividual)
			individual.POST("", h.Lessons.CreateIndividual)
			individual.POST("/approve-all", managers, h.Lessons.ApproveAll(models.LessonTypeIndividual))
			individual.GET("/:id", h.Lessons.GetIndividual)
			individual.PUT("/:id", h.Lessons.UpdateIndividual)
			individual.DELETE("/:id", managers, h.Lessons.Delete(models.LessonTypeIndividual))
			individual.POST("/:id/approve", managers, h.Lessons.Approve(models.LessonTypeIndividual))
		}

		group := lessons.Group("/group")
		{
			group.GET("", h.Lessons.ListGroup)
			group.POST("", h.Lessons.CreateGroup)
			group.POST("/approve-all", managers, h.Lessons.ApproveAll(models.LessonTypeGroup))
			group.GET("/:id", h.Lessons.GetGroup)
			group.PUT("/:id", h.Lessons.UpdateGroup)
			group.DELETE("/:id", managers, h.Lessons.Delete(models.LessonTypeGroup))
			group.POST("/:id/approve", managers, h.Lessons.Approve(models.LessonTypeGroup))
			group.POST("/:id/participants/:studentId", h.Lessons.AddParticipant)
			group.DELETE("/:id/participants/:studentId", h.Lessons.RemoveParticipant)
		}

		remedial := lessons.Group("/remedial")
		{
			remedial.GET("", h.Lessons.ListRemedial)
			remedial.POST("", h.Lessons.CreateRemedial)
			remedial.POST("/approve-all", managers, h.Lessons.ApproveAll(models.LessonTypeRemedial))
			remedial.GET("/:id", h.Lessons.GetRemedial)
			remedial.PUT("/:id", h.Lessons.UpdateRemedial)
			remedial.DELETE("/:id", managers, h.Lessons.Delete(models.LessonTypeRemedial))
			remedial.POST("/:id/approve", managers, h.Lessons.Approve(models.LessonTypeRemedial))
		}
	}

	payments := authed.Group("/payments", managers)
	{
		payments.GET("", h.Payments.List)
		payments.GET("/:id", h.Payments.Get)
		payments.POST("", h.Payments.Create)
		payments.PUT("/:id", h.Payments.Update)
		payments.DELETE("/:id", h.Payments.Delete)
	}

	dues := authed.Group("/dues", managers)
	{
		dues.GET("", h.Dues.Summary)
		dues.GET("/export", middleware.Audit(deps.UserRepo, models.AuditActionExport, "dues"), h.Dues.Export)
		dues.GET("/:studentId", h.Dues.Student)
		dues.POST("/:studentId/auto-complete", h.Dues.AutoComplete)
	}

	reports := authed.Group("/reports", managers)
	{
		reports.POST("/dues", h.Reports.Create)
		reports.GET("", h.Reports.List)
		reports.GET("/:id", h.Reports.Get)
		reports.GET("/:id/download", h.Reports.Download)
	}

	return r
}
