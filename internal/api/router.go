package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/civicembed/internal/api/handler"
	"github.com/timmy/civicembed/internal/api/middleware"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	healthHandler *handler.HealthHandler,
	embedHandler *handler.EmbedHandler,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		embed := v1.Group("/embed")
		embed.POST("/run", embedHandler.Run)
		embed.POST("/query", embedHandler.Query)
		embed.GET("/jobs/stats", embedHandler.Stats)
	}

	return r
}
