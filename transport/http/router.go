package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sleepy9988/decent-identity/ports"
	"github.com/Sleepy9988/decent-identity/service"
)

// SetupRouter sets up the Gin router.
func SetupRouter(
	authService *service.AuthService,
	identityService *service.IdentityService,
	requestService *service.RequestService,
	profiles ports.ProfileStore,
	notifier ports.Notifier,
) *gin.Engine {
	router := gin.Default()

	authHandlers := NewAuthHandlers(authService)
	identityHandlers := NewIdentityHandlers(identityService)
	requestHandlers := NewRequestHandlers(requestService, notifier)
	wsHandler := NewWSHandler(authService, notifier)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/challenge", authHandlers.Challenge)
		auth.POST("/authenticate", authHandlers.Authenticate)
		auth.POST("/refresh", authHandlers.Refresh)
		auth.POST("/logout", authHandlers.Logout)
	}

	// Public discovery routes
	users := router.Group("/users")
	{
		users.GET("/:did/contexts", identityHandlers.Contexts)
		users.GET("/:did/exists", func(c *gin.Context) {
			_, err := profiles.Get(c.Request.Context(), c.Param("did"))
			c.JSON(http.StatusOK, gin.H{"exists": err == nil})
		})
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", authHandlers.Me)

		api.POST("/identity", identityHandlers.Create)
		api.POST("/me/identities", identityHandlers.List)
		api.PUT("/me/identities/:id/active", identityHandlers.SetActive)
		api.POST("/me/identities/mass-delete", identityHandlers.MassDelete)

		api.GET("/requests/challenge", requestHandlers.Challenge)
		api.POST("/requests", requestHandlers.Create)
		api.GET("/me/requests", requestHandlers.List)
		api.PATCH("/requests/:id", requestHandlers.Update)
		api.DELETE("/me/requests/:id", requestHandlers.Cancel)
		api.POST("/requests/:id/shared-data", requestHandlers.SharedData)
		api.DELETE("/shared-data/:id", requestHandlers.Revoke)

		api.POST("/me/notifications/clear", requestHandlers.ClearNotifications)
	}

	// WebSocket notifications
	router.GET("/ws/notifications/:did", wsHandler.Notifications)

	return router
}
