package router

import "github.com/gin-gonic/gin"

func (r *Router) userRoutes(version *gin.RouterGroup) {
	profile := version.Group("/profile")
	{
		profile.Use(r.jwtMw.RequireAuth())
		{
			profile.GET("", r.userHandler.Profile)
			profile.PATCH("", r.userHandler.UpdateProfile)
		}
	}

	users := version.Group("/users")
	{
		// Admin listing requires an authenticated staff account
		users.Use(r.jwtMw.RequireAuth(), r.jwtMw.RequireStaff())
		{
			users.GET("", r.userHandler.List)
		}
	}
}
