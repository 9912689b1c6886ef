package api

import (
	"github.com/gin-gonic/gin"

	"animalitos-analytics/internal/api/handlers"
	"animalitos-analytics/internal/database"
	"animalitos-analytics/internal/services"
)

// SetupRoutes mounts the pipeline's HTTP surface on the router.
func SetupRoutes(router *gin.Engine, redis *database.RedisClient, pipeline *services.Pipeline) {
	healthHandler := handlers.NewHealthHandler(redis)
	drawsHandler := handlers.NewDrawsHandler(pipeline)
	predictionsHandler := handlers.NewPredictionsHandler(pipeline)

	router.GET("/health", healthHandler.Check)

	v1 := router.Group("/api/v1")
	{
		draws := v1.Group("/draws")
		{
			draws.GET("/:lottery", drawsHandler.GetHistory)
			draws.GET("/:lottery/today", drawsHandler.GetToday)
			draws.POST("/:lottery/refresh", drawsHandler.Refresh)
			draws.POST("/:lottery/manual", drawsHandler.AddManual)
			draws.POST("/:lottery/backfill", drawsHandler.Backfill)
			draws.GET("/:lottery/stats", drawsHandler.GetStats)
		}

		v1.GET("/predictions/:lottery", predictionsHandler.GetPredictions)
		v1.DELETE("/cache/:lottery", drawsHandler.InvalidateCache)
	}
}
