package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gameqc/handlers"
	"gameqc/lifecycle"
	"gameqc/middleware"
	"gameqc/services"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	Version *handlers.VersionHandler
	Review  *handlers.ReviewHandler
	QA      *handlers.QAHandler
	WS      *handlers.WSHandler
}

func SetupRoutes(
	router *gin.Engine,
	h Handlers,
	auth *middleware.AuthMiddleware,
	harnessToken string,
	hub *services.Hub,
	bridge *services.RuntimeBridge,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", h.Auth.Register)
			authRoutes.POST("/login", h.Auth.Login)
		}

		// Games post results without a user session; attempts are idempotent.
		api.POST("/play/results", h.QA.SubmitPlayResult)

		// Protected routes
		protected := api.Group("/")
		protected.Use(auth.RequireAuth())
		{
			protected.GET("/auth/profile", h.Auth.GetProfile)
			protected.PUT("/users/:id/role", auth.RequirePermission(services.PermManageUsers), h.Auth.SetRole)

			games := protected.Group("/games")
			{
				games.GET("", h.Version.ListGames)
				games.POST("", auth.RequirePermission(lifecycle.PermSubmit), h.Version.CreateGame)
				games.GET("/:id", h.Version.GetGame)
				games.GET("/:id/versions", h.Version.ListVersions)
				games.POST("/:id/versions", auth.RequirePermission(lifecycle.PermSubmit), h.Version.UploadVersion)
			}

			// Lifecycle permissions are enforced by the state machine.
			versions := protected.Group("/versions")
			{
				versions.GET("/:id", h.Version.GetVersion)
				versions.POST("/:id/transitions", h.Review.Transition)
				versions.POST("/:id/decision", h.Review.Decide)
				versions.POST("/:id/decision/validate", h.Review.Validate)
				versions.POST("/:id/reupload", h.Version.Reupload)
				versions.POST("/:id/qa/run", h.QA.RunQA)
				versions.GET("/:id/qa", h.QA.GetEvidence)
				versions.GET("/:id/records", h.QA.ListRecords)
				versions.GET("/:id/reports", h.Review.History)
				versions.GET("/:id/attempts", h.Review.Attempts)
				versions.GET("/:id/audit", h.Review.AuditTrail)
			}
		}
	}

	// WebSocket endpoints
	router.GET("/ws/console", auth.RequireAuth(), h.WS.Console)
	router.GET("/ws/runtime/:harnessId", middleware.RequireHarnessToken(harnessToken), h.WS.Runtime)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"harnesses":       bridge.HarnessCount(),
			"console_clients": hub.ClientCount(),
		})
	})
}
