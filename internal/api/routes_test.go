package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animalitos-analytics/internal/analysis"
	"animalitos-analytics/internal/cache"
	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/config"
	"animalitos-analytics/internal/database"
	"animalitos-analytics/internal/models"
	"animalitos-analytics/internal/scraper"
	"animalitos-analytics/internal/services"
	"animalitos-analytics/internal/storage"
)

type apiEnv struct {
	router  *gin.Engine
	history *storage.HistoryStore
	redis   *miniredis.Miniredis
}

func setupAPI(t *testing.T, sourcePage string) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sourcePage == "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sourcePage))
	}))
	t.Cleanup(source.Close)

	store := storage.NewRedisStore(client)
	history := storage.NewHistoryStore(store, logger)
	todayCache := cache.NewTodayCache(store, logger, 3*time.Minute)
	scoreCache := cache.NewScoreCache(store, logger, 10*time.Minute)

	cat := catalog.New()
	resolver := catalog.NewResolver(cat)
	fetchClient := scraper.NewFetchClient(nil, 5*time.Second, 1, logger)
	parsers := []scraper.PageParser{scraper.NewResultsParser("default", cat, 200)}
	extractor := scraper.NewExtractor(fetchClient, parsers, resolver, todayCache, config.ScraperConfig{
		Sources: []config.SourceConfig{{Name: "test-site", URL: source.URL}},
	}, logger)

	cfg := &config.Config{
		Analysis: config.AnalysisConfig{MinHistoryRecords: 10},
		Scoring:  config.ScoringConfig{RecentWeight: 0.5, TotalWeight: 0.3, AbsenceWeight: 0.2},
		Backfill: config.BackfillConfig{MaxPages: 10, MinInterval: "168h"},
	}

	pipeline := services.NewPipeline(extractor, history, analysis.NewAnalyzer(cat), analysis.NewScorer(cat), resolver, scoreCache, nil, cfg, logger)

	router := gin.New()
	SetupRoutes(router, &database.RedisClient{Client: client}, pipeline)

	return &apiEnv{router: router, history: history, redis: mr}
}

func (e *apiEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func seedRecords(t *testing.T, env *apiEnv, n int) {
	t.Helper()
	entities := []string{"leon", "tigre", "vaca", "gallina", "caballo"}
	records := make([]models.DrawRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.DrawRecord{
			Date:       time.Now().AddDate(0, 0, -i).Format("2006-01-02"),
			Hour:       "09:00",
			EntityID:   entities[i%len(entities)],
			Source:     models.SourcePrimary,
			RecordedAt: time.Now().UnixMilli(),
		})
	}
	_, err := env.history.MergeNewRecords(context.Background(), models.LotteryLottoActivo, records)
	require.NoError(t, err)
}

const sourceFixture = `<html><body><h2>LOTTO ACTIVO</h2>
<div>05 León - 09:00 AM</div>
<div>10 Tigre - 10:00 AM</div>
</body></html>`

func TestHealthEndpoint(t *testing.T) {
	env := setupAPI(t, "")

	w := env.request(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthDegradedWhenRedisDown(t *testing.T) {
	env := setupAPI(t, "")
	env.redis.Close()

	w := env.request(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}

func TestUnknownLotteryIs404(t *testing.T) {
	env := setupAPI(t, "")

	w := env.request(t, http.MethodGet, "/api/v1/draws/el-gordo", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHistory(t *testing.T) {
	env := setupAPI(t, "")
	seedRecords(t, env, 8)

	w := env.request(t, http.MethodGet, "/api/v1/draws/lotto-activo", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Lottery string              `json:"lottery"`
		Records []models.DrawRecord `json:"records"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "lotto-activo", resp.Lottery)
	assert.Equal(t, 8, resp.Count)

	w = env.request(t, http.MethodGet, "/api/v1/draws/lotto-activo?limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)

	w = env.request(t, http.MethodGet, "/api/v1/draws/lotto-activo?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	env := setupAPI(t, sourceFixture)

	w := env.request(t, http.MethodPost, "/api/v1/draws/lotto-activo/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RunID string `json:"run_id"`
		Added int    `json:"added"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 2, resp.Added)
}

func TestTodayEndpoint(t *testing.T) {
	env := setupAPI(t, sourceFixture)

	w := env.request(t, http.MethodGet, "/api/v1/draws/lotto-activo/today", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ExtractionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Draws, 2)
	assert.Equal(t, models.SourcePrimary, resp.Source)
}

func TestManualRecordEndpoint(t *testing.T) {
	env := setupAPI(t, "")

	body := `{"date":"2024-03-01","hour":"09:00","entity":"León"}`
	w := env.request(t, http.MethodPost, "/api/v1/draws/lotto-activo/manual", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Same slot, different entity: conflict.
	body = `{"date":"2024-03-01","hour":"09:00","entity":"Tigre"}`
	w = env.request(t, http.MethodPost, "/api/v1/draws/lotto-activo/manual", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.request(t, http.MethodPost, "/api/v1/draws/lotto-activo/manual", `{"date":"2024-03-02"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPost, "/api/v1/draws/lotto-activo/manual", `{"date":"bad","hour":"09:00","entity":"León"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackfillRateLimitedEndpoint(t *testing.T) {
	env := setupAPI(t, "")
	require.NoError(t, env.history.MarkBackfill(context.Background(), models.LotteryLottoActivo, time.Now()))

	w := env.request(t, http.MethodPost, "/api/v1/draws/lotto-activo/backfill", `{"max_pages":1}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	env := setupAPI(t, "")
	seedRecords(t, env, 5)

	w := env.request(t, http.MethodGet, "/api/v1/draws/lotto-activo/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.HistoryStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 5, stats.TotalEntries)
}

func TestPredictionsEndpoint(t *testing.T) {
	env := setupAPI(t, "")
	seedRecords(t, env, 15)

	w := env.request(t, http.MethodGet, "/api/v1/predictions/lotto-activo", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entities    []models.ScoredEntity `json:"entities"`
		HistorySize int                   `json:"history_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Entities, 37)
	assert.Equal(t, 15, resp.HistorySize)
}

func TestPredictionsInsufficientHistory(t *testing.T) {
	env := setupAPI(t, "")
	seedRecords(t, env, 3)

	w := env.request(t, http.MethodGet, "/api/v1/predictions/lotto-activo", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// AI fallback requested but no predictor configured: the
	// statistical error stands.
	w = env.request(t, http.MethodGet, "/api/v1/predictions/lotto-activo?fallback=ai", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPredictionsWeightOverrides(t *testing.T) {
	env := setupAPI(t, "")
	seedRecords(t, env, 15)

	w := env.request(t, http.MethodGet, "/api/v1/predictions/lotto-activo?recent=0.2&total=0.2&absence=0.6", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Weights models.Weights `json:"weights"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.Weights{Recent: 0.2, Total: 0.2, Absence: 0.6}, resp.Weights)

	// Partial override set.
	w = env.request(t, http.MethodGet, "/api/v1/predictions/lotto-activo?recent=0.2", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Negative weight.
	w = env.request(t, http.MethodGet, "/api/v1/predictions/lotto-activo?recent=-1&total=0.2&absence=0.6", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheInvalidationEndpoint(t *testing.T) {
	env := setupAPI(t, "")

	w := env.request(t, http.MethodDelete, "/api/v1/cache/lotto-activo", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodDelete, "/api/v1/cache/el-gordo", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
