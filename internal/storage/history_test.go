package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animalitos-analytics/internal/models"
)

// setupTestStore creates a Store backed by miniredis.
func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), s
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func record(date, hour, entityID string) models.DrawRecord {
	return models.DrawRecord{
		Date:       date,
		Hour:       hour,
		EntityID:   entityID,
		Source:     models.SourcePrimary,
		RecordedAt: time.Now().UnixMilli(),
	}
}

func TestMergeNewRecordsIsIdempotent(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	batch := []models.DrawRecord{
		record("2024-01-01", "09:00", "leon"),
		record("2024-01-01", "10:00", "tigre"),
	}

	first, err := h.MergeNewRecords(ctx, models.LotteryLottoActivo, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Added)

	second, err := h.MergeNewRecords(ctx, models.LotteryLottoActivo, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)

	records, err := h.GetHistory(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestMergeDedupKeyIncludesEntity(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	// Same slot, different entities: both persist under automatic merge.
	result, err := h.MergeNewRecords(ctx, models.LotteryLottoActivo, []models.DrawRecord{
		record("2024-01-01", "09:00", "leon"),
		record("2024-01-01", "09:00", "tigre"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)

	records, err := h.GetHistory(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestGetHistorySortedDescending(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	_, err := h.MergeNewRecords(ctx, models.LotteryLottoActivo, []models.DrawRecord{
		record("2024-01-01", "09:00", "leon"),
		record("2024-01-02", "08:00", "tigre"),
		record("2024-01-01", "13:00", "vaca"),
		record("2024-01-02", "10:00", "rana"),
	})
	require.NoError(t, err)

	records, err := h.GetHistory(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "rana", records[0].EntityID)
	assert.Equal(t, "tigre", records[1].EntityID)
	assert.Equal(t, "vaca", records[2].EntityID)
	assert.Equal(t, "leon", records[3].EntityID)
}

func TestHistoriesAreSeparatePerLottery(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	_, err := h.MergeNewRecords(ctx, models.LotteryLottoActivo, []models.DrawRecord{record("2024-01-01", "09:00", "leon")})
	require.NoError(t, err)

	records, err := h.GetHistory(ctx, models.LotteryLaGranjita)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAddManualRecordExclusivePerSlot(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	leon := models.Entity{ID: "leon", Name: "León", Code: "05"}
	tigre := models.Entity{ID: "tigre", Name: "Tigre", Code: "10"}

	require.NoError(t, h.AddManualRecord(ctx, models.LotteryLottoActivo, "2024-01-01", "09:00", leon))

	// A different entity at the same slot is still rejected.
	err := h.AddManualRecord(ctx, models.LotteryLottoActivo, "2024-01-01", "09:00", tigre)
	assert.ErrorIs(t, err, ErrSlotOccupied)

	records, err := h.GetHistory(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "leon", records[0].EntityID)
	assert.Equal(t, models.SourceManual, records[0].Source)
}

func TestManualRejectedOnMergedSlot(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	_, err := h.MergeNewRecords(ctx, models.LotteryLottoActivo, []models.DrawRecord{record("2024-01-01", "09:00", "leon")})
	require.NoError(t, err)

	err = h.AddManualRecord(ctx, models.LotteryLottoActivo, "2024-01-01", "09:00", models.Entity{ID: "tigre"})
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestGetStats(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	empty, err := h.GetStats(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalEntries)

	r1 := record("2024-01-05", "09:00", "leon")
	r1.RecordedAt = 1000
	r2 := record("2024-01-01", "10:00", "tigre")
	r2.RecordedAt = 2000
	r2.Source = models.SourceSecondary

	_, err = h.MergeNewRecords(ctx, models.LotteryLottoActivo, []models.DrawRecord{r1, r2})
	require.NoError(t, err)

	stats, err := h.GetStats(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, "2024-01-01", stats.DateRange.From)
	assert.Equal(t, "2024-01-05", stats.DateRange.To)
	assert.Equal(t, []string{"primary", "secondary"}, stats.Sources)
	assert.Equal(t, time.UnixMilli(2000), stats.LastUpdate)
}

func TestCorruptHistoryFailsOpenToEmpty(t *testing.T) {
	store, mr := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	require.NoError(t, mr.Set("history:lotto-activo", "{not json"))

	records, err := h.GetHistory(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	assert.Empty(t, records)

	// The store stays usable: a merge replaces the corrupt blob.
	result, err := h.MergeNewRecords(ctx, models.LotteryLottoActivo, []models.DrawRecord{record("2024-01-01", "09:00", "leon")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
}

func TestBackfillMarker(t *testing.T) {
	store, _ := setupTestStore(t)
	h := NewHistoryStore(store, testLogger())
	ctx := context.Background()

	last, err := h.LastBackfill(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, h.MarkBackfill(ctx, models.LotteryLottoActivo, at))

	last, err = h.LastBackfill(ctx, models.LotteryLottoActivo)
	require.NoError(t, err)
	assert.True(t, at.Equal(last))
}

func TestRedisStoreNotFound(t *testing.T) {
	store, _ := setupTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
