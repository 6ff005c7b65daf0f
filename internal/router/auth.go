package router

import "github.com/gin-gonic/gin"

func (r *Router) authRoutes(version *gin.RouterGroup) {
	auth := version.Group("/auth")
	{
		// Public routes (no authentication required)
		auth.POST("/register", r.authHandler.Register)
		auth.POST("/login", r.authHandler.Login)
		auth.POST("/refresh", r.authHandler.Refresh)

		// Protected routes (JWT authentication required)
		protected := auth.Group("")
		protected.Use(r.jwtMw.RequireAuth())
		{
			// Logout accepts the refresh token in the body or query string
			protected.POST("/logout", r.authHandler.Logout)
			protected.GET("/logout", r.authHandler.Logout)

			protected.POST("/logout-all", r.authHandler.LogoutAll)
		}
	}
}
