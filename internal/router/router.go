// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/handlers"
	"github.com/javajoker/od-approval-backend/internal/middleware"
	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/services"
	"github.com/javajoker/od-approval-backend/internal/utils"
)

func Initialize(svc *services.Services, limiters *middleware.RateLimiters, cfg *config.Config, logger *logrus.Entry) *gin.Engine {
	httpLogger := logger.WithField("component", "http")

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth, httpLogger)
	userHandler := handlers.NewUserHandler(svc.Directory, httpLogger)
	odHandler := handlers.NewODRequestHandler(svc.ODRequests, httpLogger)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Users, httpLogger)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()
	if cfg.Server.MaxUploadMB > 0 {
		r.MaxMultipartMemory = int64(cfg.Server.MaxUploadMB) << 20
	}

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(httpLogger))
	r.Use(middleware.CORS(cfg))
	r.Use(middleware.I18nMiddleware())
	r.Use(limiters.General.Middleware())
	r.Use(middleware.AuditLogMiddleware(logger.WithField("component", "audit")))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	staff := middleware.RequireRoles(models.RoleFaculty, models.RoleHOD)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		{
			auth.POST("/login", limiters.Auth.Middleware(), authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())

		// OD request routes
		od := protected.Group("/od-requests")
		{
			od.POST("", middleware.RequireRoles(models.RoleStudent), odHandler.Create)
			od.GET("/my-requests", middleware.RequireRoles(models.RoleStudent), odHandler.ListMine)
			od.GET("/advisor", staff, odHandler.ListForAdvisor)
			od.GET("/hod", middleware.RequireRoles(models.RoleHOD), odHandler.ListForHOD)
			od.GET("/admin", middleware.AdminRequired(), odHandler.ListForAdmin)
			od.GET("/admin/all", middleware.AdminRequired(), odHandler.ListAll)

			od.GET("/:id", odHandler.Get)
			od.PUT("/:id/advisor-approve", staff, odHandler.AdvisorApprove)
			od.PUT("/:id/advisor-reject", staff, odHandler.AdvisorReject)
			od.POST("/:id/submit-proof", middleware.RequireRoles(models.RoleStudent), odHandler.SubmitProof)
			od.PUT("/:id/verify-proof", staff, odHandler.VerifyProof)
			od.PUT("/:id/hod-approve", middleware.RequireRoles(models.RoleHOD), odHandler.HodApprove)
			od.PUT("/:id/hod-reject", middleware.RequireRoles(models.RoleHOD), odHandler.HodReject)
			od.PUT("/:id/forward-to-hod", middleware.AdminRequired(), odHandler.ForwardToHod)
			od.GET("/:id/download-approved-pdf", odHandler.DownloadApprovedPDF)
			od.GET("/:id/od-letter", odHandler.DownloadODLetter)
			od.GET("/:id/proof", odHandler.DownloadProof)
		}

		// Directory routes
		protected.GET("/departments", middleware.AdminRequired(), userHandler.ListDepartments)
		protected.GET("/departments/:department/faculty", middleware.RequireRoles(models.RoleHOD, models.RoleAdmin), userHandler.ListDepartmentFaculty)
		protected.GET("/users/faculty", userHandler.ListFaculty)

		// Admin routes
		admin := protected.Group("/admin")
		admin.Use(middleware.AdminRequired())
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.POST("/escalations/run", adminHandler.RunEscalation)
			admin.POST("/users", adminHandler.CreateUser)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
		}
	}

	return r
}
