package router

import (
	"github.com/gin-gonic/gin"
	"github.com/shoplane/accounts/config"
	"github.com/shoplane/accounts/internal/dto"
	"github.com/shoplane/accounts/internal/handler"
	"github.com/shoplane/accounts/internal/middleware"
)

type Router struct {
	authHandler   *handler.AuthHandler
	userHandler   *handler.UserHandler
	healthHandler *handler.HealthHandler

	jwtMw  *middleware.JWTMiddleware
	config *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	user *handler.UserHandler,
	health *handler.HealthHandler,
	jwtMw *middleware.JWTMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:   auth,
		userHandler:   user,
		healthHandler: health,
		jwtMw:         jwtMw,
		config:        cfg,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	if r.config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dto.RegisterValidators()

	router := gin.New()

	router.Use(middleware.RequestContextMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.CORS())

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.Health)

		v1 := api.Group("/v1")
		{
			v1.Use(middleware.RateLimit(r.config.RateLimit.Request, r.config.RateLimit.Duration))

			r.authRoutes(v1)
			r.userRoutes(v1)
		}
	}

	return router
}
