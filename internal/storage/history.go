package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"animalitos-analytics/internal/models"
)

// ErrSlotOccupied reports a manual insert into a (date, hour) slot that
// already holds a record.
var ErrSlotOccupied = errors.New("storage: slot already occupied")

const (
	historyKeyPrefix  = "history:"
	backfillKeyPrefix = "backfill_marker:"
)

// HistoryStore is the append-only, deduplicated draw history per lottery.
// Records are never edited or deleted; every write is a full
// replace-on-write of the serialized collection, and the read-modify-write
// cycle is guarded by a per-lottery mutex.
type HistoryStore struct {
	store  Store
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[models.LotteryID]*sync.Mutex
}

// NewHistoryStore builds a history store over the given KV store.
func NewHistoryStore(store Store, logger *logrus.Logger) *HistoryStore {
	return &HistoryStore{
		store:  store,
		logger: logger,
		locks:  make(map[models.LotteryID]*sync.Mutex),
	}
}

func (h *HistoryStore) lock(lottery models.LotteryID) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[lottery]
	if !ok {
		l = &sync.Mutex{}
		h.locks[lottery] = l
	}
	return l
}

// GetHistory returns the full persisted collection for a lottery, sorted
// descending by (date, hour). An unparsable blob is treated as empty
// history: the corpus is rebuildable by extraction and backfill, so the
// store fails open rather than crashing.
func (h *HistoryStore) GetHistory(ctx context.Context, lottery models.LotteryID) ([]models.DrawRecord, error) {
	raw, err := h.store.Get(ctx, historyKeyPrefix+string(lottery))
	if errors.Is(err, ErrNotFound) {
		return []models.DrawRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", lottery, err)
	}

	var records []models.DrawRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		h.logger.WithFields(logrus.Fields{
			"lottery": lottery,
			"error":   err,
		}).Warn("Corrupt history blob, treating as empty")
		return []models.DrawRecord{}, nil
	}

	sortHistory(records)
	return records, nil
}

// MergeNewRecords inserts every candidate whose (date, hour, entity)
// triple is not already on record. The collection is re-sorted once after
// the batch and persisted as a whole.
func (h *HistoryStore) MergeNewRecords(ctx context.Context, lottery models.LotteryID, candidates []models.DrawRecord) (models.MergeResult, error) {
	l := h.lock(lottery)
	l.Lock()
	defer l.Unlock()

	records, err := h.GetHistory(ctx, lottery)
	if err != nil {
		return models.MergeResult{}, err
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.DedupKey()] = struct{}{}
	}

	added := 0
	for _, c := range candidates {
		key := c.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, c)
		added++
	}

	if added == 0 {
		return models.MergeResult{Added: 0}, nil
	}

	sortHistory(records)
	if err := h.persist(ctx, lottery, records); err != nil {
		return models.MergeResult{}, err
	}

	h.logger.WithFields(logrus.Fields{
		"lottery": lottery,
		"added":   added,
		"total":   len(records),
	}).Info("Merged new draw records")

	return models.MergeResult{Added: added}, nil
}

// AddManualRecord appends a manual correction. Manual inserts are
// exclusive per (date, hour) slot: ErrSlotOccupied is returned without
// mutation when any record, whatever its entity, already fills the slot.
func (h *HistoryStore) AddManualRecord(ctx context.Context, lottery models.LotteryID, date, hour string, entity models.Entity) error {
	l := h.lock(lottery)
	l.Lock()
	defer l.Unlock()

	records, err := h.GetHistory(ctx, lottery)
	if err != nil {
		return err
	}

	slot := date + "|" + hour
	for _, r := range records {
		if r.SlotKey() == slot {
			return fmt.Errorf("%w: %s %s in %s", ErrSlotOccupied, date, hour, lottery)
		}
	}

	records = append(records, models.DrawRecord{
		Date:       date,
		Hour:       hour,
		EntityID:   entity.ID,
		Source:     models.SourceManual,
		RecordedAt: time.Now().UnixMilli(),
	})
	sortHistory(records)

	if err := h.persist(ctx, lottery, records); err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"lottery": lottery,
		"date":    date,
		"hour":    hour,
		"entity":  entity.ID,
	}).Info("Added manual draw record")

	return nil
}

// GetStats computes the read-side aggregate over a lottery's history.
func (h *HistoryStore) GetStats(ctx context.Context, lottery models.LotteryID) (models.HistoryStats, error) {
	records, err := h.GetHistory(ctx, lottery)
	if err != nil {
		return models.HistoryStats{}, err
	}

	stats := models.HistoryStats{TotalEntries: len(records)}
	if len(records) == 0 {
		return stats, nil
	}

	sources := make(map[models.RecordSource]struct{})
	var lastUpdate int64
	minDate, maxDate := records[0].Date, records[0].Date
	for _, r := range records {
		sources[r.Source] = struct{}{}
		// ISO dates compare lexicographically.
		if r.Date < minDate {
			minDate = r.Date
		}
		if r.Date > maxDate {
			maxDate = r.Date
		}
		if r.RecordedAt > lastUpdate {
			lastUpdate = r.RecordedAt
		}
	}

	stats.DateRange = models.DateRange{From: minDate, To: maxDate}
	for src := range sources {
		stats.Sources = append(stats.Sources, string(src))
	}
	sort.Strings(stats.Sources)
	stats.LastUpdate = time.UnixMilli(lastUpdate)
	return stats, nil
}

// LastBackfill returns when the last bulk historical load ran, or the
// zero time if none is on record.
func (h *HistoryStore) LastBackfill(ctx context.Context, lottery models.LotteryID) (time.Time, error) {
	raw, err := h.store.Get(ctx, backfillKeyPrefix+string(lottery))
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read backfill marker for %s: %w", lottery, err)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return ts, nil
}

// MarkBackfill records a completed bulk historical load.
func (h *HistoryStore) MarkBackfill(ctx context.Context, lottery models.LotteryID, at time.Time) error {
	return h.store.Set(ctx, backfillKeyPrefix+string(lottery), at.Format(time.RFC3339), 0)
}

func (h *HistoryStore) persist(ctx context.Context, lottery models.LotteryID, records []models.DrawRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("serialize history for %s: %w", lottery, err)
	}
	// History never expires.
	if err := h.store.Set(ctx, historyKeyPrefix+string(lottery), string(data), 0); err != nil {
		return fmt.Errorf("persist history for %s: %w", lottery, err)
	}
	return nil
}

// sortHistory orders records descending by (date, hour); both fields are
// fixed-width so string comparison is chronological.
func sortHistory(records []models.DrawRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].Hour > records[j].Hour
	})
}
