package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coursedocs-backend/internal/documents"
	"coursedocs-backend/internal/services/health"
	"coursedocs-backend/internal/shared/config"
	"coursedocs-backend/internal/shared/metrics"
	"coursedocs-backend/internal/shared/server/middleware"
	"coursedocs-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	Health          *health.Service
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigins),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Health))

	if deps.DocumentHandler != nil {
		authed := api.Group("")
		authed.Use(middleware.Auth())
		uploadLimit := middleware.RateLimit(middleware.RateLimitRule{
			Rate:  deps.Config.UploadRatePerSecond,
			Burst: deps.Config.UploadBurst,
		}, deps.RateLimiter)
		deps.DocumentHandler.RegisterRoutes(authed, uploadLimit)
	}

	return r
}

func healthHandler(svc *health.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		report := svc.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
