package v1

import (
	"context"
	"image-board-backend/config"
	"image-board-backend/internal/delivery/http/middleware"
	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/security"
	"image-board-backend/pkg/validation"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// HealthChecker reports the state of each backing dependency plus an
// overall "status" key.
type HealthChecker interface {
	Check(ctx context.Context) map[string]string
}

type RouterDeps struct {
	AuthUC        domain.AuthUsecase
	ViewerUC      domain.ViewerUsecase
	AdminUC       domain.AdminUsecase
	MediaUC       domain.MediaUsecase
	HealthUC      HealthChecker
	Verifier      middleware.TokenVerifier
	UploadLimiter *security.UploadLimiter
	Config        *config.Config
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validation.RegisterValidators(v)
	}

	cfg := deps.Config
	r := gin.New()

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.Env == "production")) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.RateLimitMiddleware(middleware.DefaultRateLimitConfig(cfg.RateLimitGlobalThreshold)))
	r.Use(middleware.CSRFMiddleware(cfg.CookieSecure))

	v1 := r.Group("/v1")

	// Health Check
	v1.GET("/health", func(c *gin.Context) {
		if deps.HealthUC == nil {
			response.Success(c, http.StatusOK, "System operational", gin.H{"status": "ok"})
			return
		}
		report := deps.HealthUC.Check(c.Request.Context())
		if report["status"] != "ok" {
			response.Success(c, http.StatusOK, "System degraded", report)
			return
		}
		response.Success(c, http.StatusOK, "System operational", report)
	})

	// Swagger
	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Public routes
	NewThemeHandler(v1)

	viewer := v1.Group("/viewer")
	viewer.Use(middleware.RateLimitMiddleware(middleware.ViewerRateLimitConfig(cfg.RateLimitViewerThreshold)))
	NewViewerHandler(viewer, deps.ViewerUC)

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.SessionAuth(deps.AuthUC, deps.Verifier))
	{
		authLimit := middleware.RateLimitMiddleware(middleware.AuthRateLimitConfig(cfg.RateLimitAuthThreshold))
		NewAuthHandler(v1, protected, deps.AuthUC, CookieConfig{
			MaxAge: cfg.SessionTTL,
			Secure: cfg.CookieSecure,
		}, authLimit)
		NewMediaHandler(protected, deps.MediaUC, deps.UploadLimiter, cfg.UploadMaxBytes)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		NewAdminHandler(admin, deps.AdminUC)
	}

	return r
}
