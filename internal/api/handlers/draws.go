package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"animalitos-analytics/internal/models"
	"animalitos-analytics/internal/services"
	"animalitos-analytics/internal/storage"
)

type DrawsHandler struct {
	pipeline *services.Pipeline
}

func NewDrawsHandler(pipeline *services.Pipeline) *DrawsHandler {
	return &DrawsHandler{pipeline: pipeline}
}

// HistoryResponse wraps a page of draw records.
type HistoryResponse struct {
	Lottery   models.LotteryID    `json:"lottery"`
	Records   []models.DrawRecord `json:"records"`
	Count     int                 `json:"count"`
	Timestamp time.Time           `json:"timestamp"`
}

// GetHistory returns persisted records, newest first. ?limit= truncates.
func (h *DrawsHandler) GetHistory(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = parsed
	}

	records, err := h.pipeline.History(c.Request.Context(), lottery, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Lottery:   lottery,
		Records:   records,
		Count:     len(records),
		Timestamp: time.Now(),
	})
}

// GetToday returns today's extraction result, served from the short-TTL
// cache when fresh.
func (h *DrawsHandler) GetToday(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	refreshed, err := h.pipeline.RefreshToday(c.Request.Context(), lottery)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, refreshed.Extracted)
}

// Refresh runs extract → resolve → merge and reports what changed.
func (h *DrawsHandler) Refresh(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	result, err := h.pipeline.RefreshToday(c.Request.Context(), lottery)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ManualRecordRequest is the body of a manual correction.
type ManualRecordRequest struct {
	Date   string `json:"date" binding:"required"`
	Hour   string `json:"hour" binding:"required"`
	Entity string `json:"entity" binding:"required"`
}

// AddManual appends a manual correction record. An occupied (date, hour)
// slot is a conflict regardless of entity.
func (h *DrawsHandler) AddManual(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	var req ManualRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.pipeline.AddManualRecord(c.Request.Context(), lottery, req.Date, req.Hour, req.Entity)
	if errors.Is(err, storage.ErrSlotOccupied) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "recorded"})
}

// BackfillRequest configures a bulk historical load.
type BackfillRequest struct {
	MaxPages int  `json:"max_pages"`
	Force    bool `json:"force"`
}

// Backfill drives a paginated historical load through the merge path.
func (h *DrawsHandler) Backfill(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.pipeline.Backfill(c.Request.Context(), lottery, req.MaxPages, req.Force)
	if errors.Is(err, services.ErrBackfillRateLimited) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetStats returns the read-side history aggregate.
func (h *DrawsHandler) GetStats(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	stats, err := h.pipeline.Stats(c.Request.Context(), lottery)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// InvalidateCache drops the today and score caches. History is untouched.
func (h *DrawsHandler) InvalidateCache(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	if err := h.pipeline.InvalidateCaches(c.Request.Context(), lottery); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// lotteryParam validates the :lottery path segment, writing the error
// response itself on failure.
func lotteryParam(c *gin.Context) (models.LotteryID, bool) {
	lottery, err := models.ParseLotteryID(c.Param("lottery"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return lottery, true
}
