package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(handler *Handler, allowedOrigins []string) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Default to allow all origins if none are configured.
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	// API v1 routes.
	v1 := router.Group("/v1")
	// Dataset catalog.
	datasets := v1.Group("/datasets")
	datasets.GET("", handler.ListDatasets)
	datasets.GET("/:name", handler.GetDataset)

	// Dataset products.
	datasets.GET("/:name/file", handler.GetFile)
	datasets.GET("/:name/grid", handler.GetGrid)
	datasets.GET("/:name/info", handler.GetInfo)
	datasets.GET("/:name/plot.png", handler.GetPlot)
	datasets.GET("/:name/sample", handler.GetSample)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}
