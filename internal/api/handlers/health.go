package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"animalitos-analytics/internal/database"
)

type HealthHandler struct {
	redis *database.RedisClient
}

func NewHealthHandler(redis *database.RedisClient) *HealthHandler {
	return &HealthHandler{redis: redis}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Redis string `json:"redis"`
}

// Check reports liveness plus the health of the backing store.
func (h *HealthHandler) Check(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Services:  Services{Redis: "healthy"},
	}

	status := http.StatusOK
	if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
		resp.Status = "degraded"
		resp.Services.Redis = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, resp)
}
