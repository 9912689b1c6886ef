package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"animalitos-analytics/internal/models"
	"animalitos-analytics/internal/services"
)

type PredictionsHandler struct {
	pipeline *services.Pipeline
}

func NewPredictionsHandler(pipeline *services.Pipeline) *PredictionsHandler {
	return &PredictionsHandler{pipeline: pipeline}
}

// GetPredictions returns the scored ranking for a lottery. Weight
// overrides come in as ?recent=&total=&absence= (all three or none);
// ?fallback=ai consults the supplementary predictor when history is too
// thin for statistical scoring.
func (h *PredictionsHandler) GetPredictions(c *gin.Context) {
	lottery, ok := lotteryParam(c)
	if !ok {
		return
	}

	weights, ok := weightsQuery(c)
	if !ok {
		return
	}

	var prediction services.Prediction
	var err error
	if c.Query("fallback") == "ai" {
		prediction, err = h.pipeline.PredictWithFallback(c.Request.Context(), lottery, weights)
	} else {
		prediction, err = h.pipeline.Predict(c.Request.Context(), lottery, weights)
	}

	if errors.Is(err, services.ErrInsufficientHistory) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prediction)
}

// weightsQuery parses optional weight overrides. Missing all three means
// defaults (nil); a partial or malformed set is a client error.
func weightsQuery(c *gin.Context) (*models.Weights, bool) {
	rawRecent, rawTotal, rawAbsence := c.Query("recent"), c.Query("total"), c.Query("absence")
	if rawRecent == "" && rawTotal == "" && rawAbsence == "" {
		return nil, true
	}
	if rawRecent == "" || rawTotal == "" || rawAbsence == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weight overrides require recent, total and absence together"})
		return nil, false
	}

	var weights models.Weights
	for _, f := range []struct {
		raw string
		dst *float64
	}{
		{rawRecent, &weights.Recent},
		{rawTotal, &weights.Total},
		{rawAbsence, &weights.Absence},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "weights must be non-negative numbers"})
			return nil, false
		}
		*f.dst = v
	}
	return &weights, true
}
