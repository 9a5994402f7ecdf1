package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
)

type authRouteDeps struct {
	OTPHandler     *handlers.OTPHandler
	OAuthHandler   *handlers.OAuthHandler
	SessionHandler *handlers.SessionHandler
	RequireAuth    gin.HandlerFunc
}

func registerAuthRoutes(engine *gin.Engine, deps authRouteDeps) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/otp/request", deps.OTPHandler.Request)
		auth.POST("/otp/confirm", deps.OTPHandler.Confirm)
		auth.GET("/providers", deps.OAuthHandler.Providers)
		auth.GET("/oauth/:provider/login", deps.OAuthHandler.Login)
		auth.GET("/oauth/:provider/callback", deps.OAuthHandler.Callback)
	}

	session := engine.Group("/api/auth")
	session.Use(deps.RequireAuth)
	{
		session.GET("/me", deps.SessionHandler.Me)
		session.POST("/logout", deps.SessionHandler.Logout)
	}
}
